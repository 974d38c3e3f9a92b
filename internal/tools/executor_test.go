package tools_test

import (
	"context"
	"strings"
	"testing"
	"time"

	coredb "github.com/basegraphhq/researchd/core/db"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/tools"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (stubEmbedder) Dimensions() int                                  { return 2 }

func newTestExecutor(t *testing.T, allowed []string) *tools.Executor {
	t.Helper()
	ctx := context.Background()
	database, err := coredb.New(ctx, coredb.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := memory.NewStore(database, stubEmbedder{})
	sess := store.Session("sess-" + t.Name())

	registry := tools.NewRegistry(ctx, tools.Config{}, sess, "web_researcher")
	return tools.NewExecutor(registry, sess, "web_researcher", allowed, nil, 0)
}

func TestDispatchUnknownToolReturnsTextNotError(t *testing.T) {
	ctx := context.Background()
	exec := newTestExecutor(t, nil)

	result, err := exec.Dispatch(ctx, "not_a_real_tool", "{}")
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil (unknown tool is a text result)", err)
	}
	if !strings.Contains(result, "unknown tool") {
		t.Fatalf("Dispatch() result = %q, want it to mention unknown tool", result)
	}
}

func TestDispatchUnknownToolWinsOverPermissionCheck(t *testing.T) {
	ctx := context.Background()
	exec := newTestExecutor(t, []string{"memory_store"})

	result, err := exec.Dispatch(ctx, "not_a_real_tool", "{}")
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	if !strings.Contains(result, "unknown tool") {
		t.Fatalf("Dispatch() result = %q, want unknown tool (not a permission error) for an unregistered name", result)
	}
	if strings.Contains(result, "not permitted") {
		t.Fatalf("Dispatch() result = %q, misreported an unregistered name as a permission error", result)
	}
}

func TestDispatchDeniesToolOutsideAllowedSet(t *testing.T) {
	ctx := context.Background()
	exec := newTestExecutor(t, []string{"memory_store"})

	result, err := exec.Dispatch(ctx, "memory_search", "{}")
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	if !strings.Contains(result, "not permitted") {
		t.Fatalf("Dispatch() result = %q, want it to mention not permitted", result)
	}
}

func TestDispatchDelaysAreMonotonicallyNonDecreasing(t *testing.T) {
	ctx := context.Background()
	exec := newTestExecutor(t, nil)

	schedule := []time.Duration{0, 100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond}
	var gaps []time.Duration
	for i := range schedule {
		start := time.Now()
		if _, err := exec.Dispatch(ctx, "memory_get_discoveries", "{}"); err != nil {
			t.Fatalf("Dispatch() iteration %d error = %v", i, err)
		}
		gaps = append(gaps, time.Since(start))
	}

	// The first call should be near-immediate; later calls should take at
	// least as long as the configured schedule (allowing scheduler jitter).
	if gaps[0] > 50*time.Millisecond {
		t.Fatalf("first call gap = %v, want near-zero delay", gaps[0])
	}
	for i := 1; i < len(gaps); i++ {
		if gaps[i] < schedule[i] {
			t.Fatalf("call %d took %v, want at least the scheduled %v", i+1, gaps[i], schedule[i])
		}
		if gaps[i] < gaps[i-1] {
			t.Fatalf("call %d took %v, less than call %d's %v", i+1, gaps[i], i, gaps[i-1])
		}
	}
}

func TestDispatchMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	exec := newTestExecutor(t, nil)

	result, err := exec.Dispatch(ctx, "memory_store", `{"kind":"discovery","content":"found something"}`)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(result, "stored discovery") {
		t.Fatalf("Dispatch() result = %q, want confirmation of stored discovery", result)
	}
}
