package phases_test

import (
	"context"
	"testing"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/internal/phases"
	"github.com/basegraphhq/researchd/internal/progress"
)

func TestDocumentApprovedFirstPass(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"writer":          {say("A thorough document.")},
		"document_critic": {say("APPROVED")},
	})

	ctl := phases.NewDocumentController(roster, nil, 3)
	doc, err := ctl.Run(context.Background(), "query", "research")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if doc != "A thorough document." {
		t.Fatalf("doc = %q, want the writer's first draft", doc)
	}
}

func TestDocumentIterationCapShipsLastDraft(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"writer": {
			say("Draft one."),
			say("Draft two."),
		},
		"document_critic": {say("IMPROVEMENTS NEEDED: always unhappy.")},
	})

	prog := progress.New()
	events := make(chan progress.Event, 8)
	prog.Subscribe(events)

	ctl := phases.NewDocumentController(roster, prog, 2)
	doc, err := ctl.Run(context.Background(), "query", "research")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if doc != "Draft two." {
		t.Fatalf("doc = %q, want the second draft shipped regardless", doc)
	}

	close(events)
	writing := 0
	for ev := range events {
		if ev.Kind == progress.KindWriting {
			writing++
		}
	}
	if writing != 2 {
		t.Fatalf("writing events = %d, want 2", writing)
	}
}

func TestDocumentRedraftAddressesCritique(t *testing.T) {
	sess := newTestSession(t)
	roster := newRoster(t, sess, map[string][]llm.AgentResponse{
		"writer": {
			say("Draft one."),
			say("Draft two, citations added."),
		},
		"document_critic": {
			say("IMPROVEMENTS NEEDED: add citations."),
			say("APPROVED"),
		},
	})

	ctl := phases.NewDocumentController(roster, nil, 3)
	doc, err := ctl.Run(context.Background(), "query", "research")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if doc != "Draft two, citations added." {
		t.Fatalf("doc = %q, want the redrafted version", doc)
	}
}
