package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/basegraphhq/researchd/common/llm"
	coredb "github.com/basegraphhq/researchd/core/db"
	"github.com/basegraphhq/researchd/internal/agentrunner"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/progress"
	"github.com/basegraphhq/researchd/internal/supervisor"
	"github.com/basegraphhq/researchd/internal/tools"
)

type fixedClient struct {
	content string
}

func (c *fixedClient) Model() string { return "fixed-test-model" }

func (c *fixedClient) ChatWithTools(context.Context, llm.AgentRequest) (*llm.AgentResponse, error) {
	return &llm.AgentResponse{Content: c.content, FinishReason: "stop"}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }
func (stubEmbedder) Dimensions() int                                  { return 1 }

func TestSupervisorUpsertsFeedbackOnEachCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := coredb.New(ctx, coredb.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	defer database.Close()

	store := memory.NewStore(database, stubEmbedder{})
	sess := store.Session("sess-" + t.Name())
	registry := tools.NewRegistry(ctx, tools.Config{}, sess, "supervisor")
	executor := tools.NewExecutor(registry, sess, "supervisor", nil, nil, 0)

	client := &fixedClient{content: "stay the course"}
	runner := agentrunner.New(client, executor, nil, 5, "supervisor")
	prog := progress.New()
	events := make(chan progress.Event, 4)
	prog.Subscribe(events)

	// A 1-second interval keeps this test fast while still exercising the
	// real ticker loop rather than calling the review cycle directly.
	task := supervisor.New(runner, "You supervise a research team; leave brief feedback.", sess, prog, 1)
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-events:
		if ev.Kind != progress.KindSupervisorUpdate {
			t.Fatalf("event kind = %q, want %q", ev.Kind, progress.KindSupervisorUpdate)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a supervisor_update event")
	}
	cancel()
	<-done

	feedback, ok, err := sess.Latest(context.Background(), memory.KindFeedback)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !ok {
		t.Fatal("Latest() found no feedback record after a supervisor cycle")
	}
	if feedback.Content != "stay the course" {
		t.Fatalf("feedback content = %q, want %q", feedback.Content, "stay the course")
	}
}
