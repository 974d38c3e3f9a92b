package progress_test

import (
	"testing"

	"github.com/basegraphhq/researchd/internal/progress"
)

func TestEmitDeliversToEverySubscriber(t *testing.T) {
	ch := progress.New()
	a := make(chan progress.Event, 1)
	b := make(chan progress.Event, 1)
	ch.Subscribe(a)
	ch.Subscribe(b)

	ch.Emit(progress.Event{Kind: progress.KindDone})

	for _, sub := range []chan progress.Event{a, b} {
		select {
		case ev := <-sub:
			if ev.Kind != progress.KindDone {
				t.Fatalf("got %v, want done", ev.Kind)
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestEmitNeverBlocksWithoutConsumers(t *testing.T) {
	ch := progress.New()
	// No subscribers at all.
	ch.Emit(progress.Event{Kind: progress.KindPlanning, Iteration: 1})

	// A full subscriber drops the event rather than stalling the producer.
	full := make(chan progress.Event, 1)
	full <- progress.Event{Kind: progress.KindPlanning}
	ch.Subscribe(full)
	ch.Emit(progress.Event{Kind: progress.KindDone})

	if len(full) != 1 {
		t.Fatalf("full subscriber length = %d, want the original 1", len(full))
	}
}
