package phases_test

import (
	"context"
	"testing"

	"github.com/basegraphhq/researchd/common/llm"
	coredb "github.com/basegraphhq/researchd/core/db"
	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/agentrunner"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/phases"
	"github.com/basegraphhq/researchd/internal/tools"
)

// scriptedClient replays a fixed sequence of responses, repeating the last
// one once the script runs out.
type scriptedClient struct {
	responses []llm.AgentResponse
	calls     int
}

func (c *scriptedClient) Model() string { return "scripted-test-model" }

func (c *scriptedClient) ChatWithTools(context.Context, llm.AgentRequest) (*llm.AgentResponse, error) {
	resp := c.responses[c.calls]
	if c.calls < len(c.responses)-1 {
		c.calls++
	}
	return &resp, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (stubEmbedder) Dimensions() int                                  { return 2 }

func newTestSession(t *testing.T) *memory.Session {
	t.Helper()
	database, err := coredb.New(context.Background(), coredb.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return memory.NewStore(database, stubEmbedder{}).Session("sess-" + t.Name())
}

// newRoster builds one agent per role, each backed by its own scripted
// response sequence and a registry with only the memory tools.
func newRoster(t *testing.T, sess *memory.Session, scripts map[string][]llm.AgentResponse) phases.Roster {
	t.Helper()
	ctx := context.Background()

	roster := phases.Roster{}
	for role, responses := range scripts {
		registry := tools.NewRegistry(ctx, tools.Config{}, sess, role)
		executor := tools.NewExecutor(registry, sess, role, nil, nil, 0)
		runner := agentrunner.New(&scriptedClient{responses: responses}, executor, nil, 5, role)
		roster[role] = &phases.Agent{
			Def: agentdef.Definition{
				Role:         role,
				DisplayName:  role,
				SystemPrompt: "you are " + role,
			},
			Runner: runner,
		}
	}
	return roster
}

func say(content string) llm.AgentResponse {
	return llm.AgentResponse{Content: content, FinishReason: "stop"}
}
