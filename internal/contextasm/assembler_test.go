package contextasm_test

import (
	"context"
	"strings"
	"testing"

	coredb "github.com/basegraphhq/researchd/core/db"
	"github.com/basegraphhq/researchd/internal/contextasm"
	"github.com/basegraphhq/researchd/internal/memory"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }
func (stubEmbedder) Dimensions() int                                  { return 1 }

func newTestSession(t *testing.T) *memory.Session {
	t.Helper()
	ctx := context.Background()
	database, err := coredb.New(ctx, coredb.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return memory.NewStore(database, stubEmbedder{}).Session("sess-" + t.Name())
}

func TestAssembleOmitsEmptySections(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	asm := contextasm.New(sess)

	result, err := asm.Assemble(ctx, "You are a careful researcher.")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if strings.Contains(result, "Plan:") || strings.Contains(result, "Discoveries so far:") {
		t.Fatalf("Assemble() = %q, want no plan/discoveries sections when none exist", result)
	}
	if !strings.Contains(result, "You are a careful researcher.") {
		t.Fatal("Assemble() missing the agent system prompt")
	}
}

func TestAssembleOrdersSectionsAndCapsDiscoveries(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	if _, err := sess.Store(ctx, memory.KindPlan, "plan text", "lead_planner", nil); err != nil {
		t.Fatalf("Store() plan error = %v", err)
	}
	if _, err := sess.UpsertSingle(ctx, memory.KindFeedback, "feedback text", "supervisor", nil); err != nil {
		t.Fatalf("UpsertSingle() feedback error = %v", err)
	}
	for i := 0; i < 15; i++ {
		if _, err := sess.Store(ctx, memory.KindDiscovery, "discovery", "web_researcher", nil); err != nil {
			t.Fatalf("Store() discovery %d error = %v", i, err)
		}
	}

	asm := contextasm.New(sess)
	result, err := asm.Assemble(ctx, "system prompt")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	planIdx := strings.Index(result, "Plan:")
	feedbackIdx := strings.Index(result, "Supervisor feedback:")
	discoveriesIdx := strings.Index(result, "Discoveries so far:")
	promptIdx := strings.Index(result, "system prompt")

	if !(planIdx < feedbackIdx && feedbackIdx < discoveriesIdx && discoveriesIdx < promptIdx) {
		t.Fatalf("Assemble() sections out of order: plan=%d feedback=%d discoveries=%d prompt=%d",
			planIdx, feedbackIdx, discoveriesIdx, promptIdx)
	}

	if count := strings.Count(result, "- [web_researcher] discovery"); count != 10 {
		t.Fatalf("Assemble() included %d discoveries, want capped at 10", count)
	}
}
