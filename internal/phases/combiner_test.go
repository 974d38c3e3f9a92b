package phases_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/phases"
)

func testDefs(t *testing.T) *agentdef.Set {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	doc := `agents:
  - {role: lead_planner, display_name: Lead Planner, system_prompt: p}
  - {role: plan_critic, display_name: Plan Critic, system_prompt: p}
  - {role: supervisor, display_name: Supervisor, system_prompt: p}
  - {role: advocate, display_name: Advocate, system_prompt: p}
  - {role: skeptic, display_name: Skeptic, system_prompt: p}
  - {role: synthesiser, display_name: Synthesiser, system_prompt: p}
  - {role: refiner, display_name: Refiner, system_prompt: p}
  - {role: writer, display_name: Writer, system_prompt: p}
  - {role: document_critic, display_name: Document Critic, system_prompt: p}
  - {role: summariser, display_name: Summariser, system_prompt: p}
  - {role: web_researcher, display_name: Web Researcher, system_prompt: p}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing agents fixture: %v", err)
	}
	defs, err := agentdef.Load(path)
	if err != nil {
		t.Fatalf("loading agents fixture: %v", err)
	}
	return defs
}

func TestCombineFormatsStanzasAndSkipsErroredSlots(t *testing.T) {
	combiner := phases.NewCombiner(testDefs(t), nil, 0)

	results := []phases.WorkerResult{
		{WorkerRole: "web_researcher", Question: "What changed?", Answer: "Quite a lot."},
		{WorkerRole: "unknown_role", Question: "q", Err: fmt.Errorf("worker died")},
	}
	got := combiner.Combine(context.Background(), "the query", results)

	if !strings.HasPrefix(got, "# Research Results for: the query\n") {
		t.Fatalf("missing title, got:\n%s", got)
	}
	if !strings.Contains(got, "## Web Researcher\n") {
		t.Fatal("worker stanza missing display name heading")
	}
	if !strings.Contains(got, "**Question:** What changed?") {
		t.Fatal("worker stanza missing question line")
	}
	if !strings.Contains(got, "Quite a lot.") {
		t.Fatal("worker stanza missing answer")
	}
	if strings.Contains(got, "worker died") || strings.Contains(got, "unknown_role") {
		t.Fatal("errored slot leaked into combined output")
	}
}
