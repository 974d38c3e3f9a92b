package research_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/basegraphhq/researchd/common/id"
	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/core/config"
	coredb "github.com/basegraphhq/researchd/core/db"
	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/progress"
	"github.com/basegraphhq/researchd/internal/research"
	"github.com/basegraphhq/researchd/internal/tools"
)

// roleClient routes each model call to a per-role response script by
// matching a role marker embedded in the system prompt. Workers receive
// assembled context ending in their own system prompt, so the marker is
// present for them too.
type roleClient struct {
	mu      sync.Mutex
	scripts map[string][]llm.AgentResponse
	counts  map[string]int
}

func (c *roleClient) Model() string { return "role-scripted-model" }

func (c *roleClient) ChatWithTools(_ context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	system := ""
	if len(req.Messages) > 0 {
		system = req.Messages[0].Content
	}
	for role, responses := range c.scripts {
		if !strings.Contains(system, "ROLE:"+role+" ") {
			continue
		}
		i := c.counts[role]
		if i >= len(responses) {
			i = len(responses) - 1
		}
		c.counts[role]++
		resp := responses[i]
		return &resp, nil
	}
	return nil, fmt.Errorf("no script for system prompt %q", system)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (stubEmbedder) Dimensions() int                                  { return 2 }

func writeAgentsFixture(t *testing.T) *agentdef.Set {
	t.Helper()
	roles := []string{
		"lead_planner", "plan_critic", "supervisor", "advocate", "skeptic",
		"synthesiser", "refiner", "writer", "document_critic", "summariser",
		"web_researcher", "data_specialist",
	}
	var sb strings.Builder
	sb.WriteString("agents:\n")
	for _, role := range roles {
		fmt.Fprintf(&sb, "  - {role: %s, display_name: %s, system_prompt: 'ROLE:%s agent.'}\n", role, role, role)
	}
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("writing agents fixture: %v", err)
	}
	defs, err := agentdef.Load(path)
	if err != nil {
		t.Fatalf("loading agents fixture: %v", err)
	}
	return defs
}

func newOrchestrator(t *testing.T, client llm.AgentClient) (*research.Orchestrator, *memory.Store) {
	t.Helper()
	if err := id.Init(1); err != nil {
		t.Fatalf("id.Init: %v", err)
	}
	database, err := coredb.New(context.Background(), coredb.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := memory.NewStore(database, stubEmbedder{})

	cfg := config.OrchestratorConfig{
		MinWorkerCount:                 1,
		MaxWorkerCount:                 10,
		MaxPlanIterations:              3,
		MaxRefinementIterations:        5,
		MaxDocumentIterations:          3,
		MaxDebateRounds:                2,
		MaxToolTurns:                   5,
		SummarisationThreshold:         5000,
		SummarisationThresholdResearch: 10000,
		SupervisorIntervalSeconds:      60,
	}
	return research.New(cfg, writeAgentsFixture(t), store, client, tools.Config{}), store
}

func say(content string) llm.AgentResponse {
	return llm.AgentResponse{Content: content, FinishReason: "stop"}
}

func happyPathScripts() map[string][]llm.AgentResponse {
	return map[string][]llm.AgentResponse{
		"lead_planner": {say(`Split by angle.
[{"question": "What changed?", "worker_role": "web_researcher"},
 {"question": "What do the numbers say?", "worker_role": "data_specialist"}]`)},
		"plan_critic":     {say("APPROVED")},
		"supervisor":      {say("Keep going.")},
		"web_researcher":  {say("Changes documented at [Source: Example](https://example.com/a).")},
		"data_specialist": {say("Revenue grew 12% per [Source: Stats](https://stats.test/q).")},
		"advocate":        {say("Well evidenced.")},
		"skeptic":         {say("No blocking concerns.")},
		"synthesiser":     {say("APPROVED")},
		"refiner":         {say("unused")},
		"writer": {say(`Findings show change [Source: Example](https://example.com/a) and growth
[Source: Stats](https://stats.test/q).`)},
		"document_critic": {say("APPROVED")},
		"summariser":      {say("unused")},
	}
}

func TestResearchHappyPath(t *testing.T) {
	client := &roleClient{scripts: happyPathScripts(), counts: map[string]int{}}
	orch, _ := newOrchestrator(t, client)

	prog := progress.New()
	events := make(chan progress.Event, 128)
	prog.Subscribe(events)

	doc, err := orch.Research(context.Background(), "what happened to X?", prog)
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if !strings.Contains(doc, "## References") {
		t.Fatalf("document missing References section:\n%s", doc)
	}
	for _, url := range []string{"https://example.com/a", "https://stats.test/q"} {
		if !strings.Contains(doc, url) {
			t.Fatalf("document missing cited url %s", url)
		}
	}

	close(events)
	var kinds []progress.Kind
	counts := map[progress.Kind]int{}
	for ev := range events {
		kinds = append(kinds, ev.Kind)
		counts[ev.Kind]++
	}

	if counts[progress.KindPlanApproved] != 1 {
		t.Fatalf("plan_approved events = %d, want 1", counts[progress.KindPlanApproved])
	}
	if counts[progress.KindDispatchingWorkers] != 1 {
		t.Fatalf("dispatching_workers events = %d, want 1", counts[progress.KindDispatchingWorkers])
	}
	if counts[progress.KindWorkerDone] != 2 {
		t.Fatalf("worker_done events = %d, want 2", counts[progress.KindWorkerDone])
	}
	if counts[progress.KindDone] != 1 {
		t.Fatalf("done events = %d, want 1", counts[progress.KindDone])
	}
	if len(kinds) == 0 || kinds[len(kinds)-1] != progress.KindDone {
		t.Fatalf("last event = %v, want done; sequence %v", kinds[len(kinds)-1], kinds)
	}
	order := []progress.Kind{
		progress.KindPlanning, progress.KindPlanApproved, progress.KindDispatchingWorkers,
		progress.KindCombining, progress.KindDebate, progress.KindWriting,
		progress.KindFinalising, progress.KindDone,
	}
	last := -1
	for _, want := range order {
		found := -1
		for i, k := range kinds {
			if k == want && i > last {
				found = i
				break
			}
		}
		if found < 0 {
			t.Fatalf("event %v missing or out of order in %v", want, kinds)
		}
		last = found
	}
}

func TestResearchWorkerErrorStillProducesDocument(t *testing.T) {
	scripts := happyPathScripts()
	scripts["lead_planner"] = []llm.AgentResponse{say(`Plan.
[{"question": "q1", "worker_role": "web_researcher"},
 {"question": "q2", "worker_role": "nonexistent_role"}]`)}
	client := &roleClient{scripts: scripts, counts: map[string]int{}}
	orch, _ := newOrchestrator(t, client)

	prog := progress.New()
	events := make(chan progress.Event, 128)
	prog.Subscribe(events)

	doc, err := orch.Research(context.Background(), "query", prog)
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	if doc == "" {
		t.Fatal("Research() returned an empty document")
	}

	close(events)
	workerDone := 0
	for ev := range events {
		if ev.Kind == progress.KindWorkerDone {
			workerDone++
		}
	}
	// Even the errored worker's slot emits worker_done.
	if workerDone != 2 {
		t.Fatalf("worker_done events = %d, want 2", workerDone)
	}
}

func TestResearchSessionIsolation(t *testing.T) {
	client := &roleClient{scripts: happyPathScripts(), counts: map[string]int{}}
	orch, store := newOrchestrator(t, client)

	if _, err := orch.Research(context.Background(), "session A", nil); err != nil {
		t.Fatalf("session A error = %v", err)
	}

	// A fresh session's search must never surface another session's rows.
	sessB := store.Session("unrelated-session")
	results, err := sessB.Search(context.Background(), "session A", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("session B search returned %d rows from session A", len(results))
	}
}
