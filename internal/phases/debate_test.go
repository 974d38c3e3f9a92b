package phases_test

import (
	"context"
	"testing"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/internal/phases"
	"github.com/basegraphhq/researchd/internal/progress"
)

func TestDebateApprovedInFirstRound(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"advocate":    {say("The evidence is strong.")},
		"skeptic":     {say("No major concerns.")},
		"synthesiser": {say("APPROVED")},
	})

	prog := progress.New()
	events := make(chan progress.Event, 8)
	prog.Subscribe(events)

	ctl := phases.NewDebateController(roster, prog, 2)
	verdict, err := ctl.Run(context.Background(), "# Research Results for: x")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !verdict.Approved {
		t.Fatal("verdict.Approved = false, want true")
	}

	close(events)
	rounds := 0
	for ev := range events {
		if ev.Kind == progress.KindDebate {
			rounds++
		}
	}
	if rounds != 1 {
		t.Fatalf("debate rounds emitted = %d, want 1", rounds)
	}
}

func TestDebateReturnsRefineVerdictAfterCap(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"advocate":    {say("Strengths.")},
		"skeptic":     {say("Concerns.")},
		"synthesiser": {say("REFINE: missing quantitative data")},
	})

	ctl := phases.NewDebateController(roster, nil, 2)
	verdict, err := ctl.Run(context.Background(), "combined")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if verdict.Approved {
		t.Fatal("verdict.Approved = true, want false")
	}
	if verdict.Gaps != "missing quantitative data" {
		t.Fatalf("verdict.Gaps = %q, want the directive body", verdict.Gaps)
	}
}

func TestRefinementConvergesWhenSynthesiserApprovesRevision(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"advocate": {say("Strengths.")},
		"skeptic":  {say("Concerns.")},
		"synthesiser": {
			say("REFINE: missing quantitative data"),
			say("APPROVED"),
		},
		"refiner": {say("Revised text with the numbers filled in.")},
	})

	prog := progress.New()
	events := make(chan progress.Event, 16)
	prog.Subscribe(events)

	debate := phases.NewDebateController(roster, prog, 1)
	verdict, err := debate.Run(context.Background(), "combined")
	if err != nil {
		t.Fatalf("debate Run() error = %v", err)
	}

	ctl := phases.NewRefinementController(roster, debate, prog, 5)
	revised, iterations, err := ctl.Run(context.Background(), "combined", verdict)
	if err != nil {
		t.Fatalf("refinement Run() error = %v", err)
	}
	if iterations != 1 {
		t.Fatalf("iterations = %d, want 1", iterations)
	}
	if revised != "Revised text with the numbers filled in." {
		t.Fatalf("revised = %q, want the refiner's output", revised)
	}

	close(events)
	refining := 0
	for ev := range events {
		if ev.Kind == progress.KindRefining {
			refining++
		}
	}
	if refining != 1 {
		t.Fatalf("refining events = %d, want 1", refining)
	}
}

func TestRefinementCapReturnsLastRevision(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"advocate":    {say("Strengths.")},
		"skeptic":     {say("Concerns.")},
		"synthesiser": {say("REFINE: still not enough")},
		"refiner":     {say("Revision A.")},
	})

	debate := phases.NewDebateController(roster, nil, 1)
	ctl := phases.NewRefinementController(roster, debate, nil, 2)
	revised, iterations, err := ctl.Run(context.Background(), "combined",
		phases.DebateVerdict{Approved: false, Gaps: "missing data"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if iterations != 2 {
		t.Fatalf("iterations = %d, want the cap of 2", iterations)
	}
	if revised != "Revision A." {
		t.Fatalf("revised = %q, want the refiner's last output", revised)
	}
}
