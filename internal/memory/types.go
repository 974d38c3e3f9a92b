// Package memory implements the Shared Memory Store: the typed,
// content-addressed coordination substrate that every agent in a research
// session reads from and writes into. It is backed by an embedded SQLite
// database (core/db) and an in-process cosine-similarity vector index —
// see DESIGN.md for why the vector index is
// implemented in Go rather than as a loadable SQLite extension.
package memory

import "fmt"

// Kind enumerates the memory record kinds.
type Kind string

const (
	KindDiscovery    Kind = "discovery"
	KindInsight      Kind = "insight"
	KindDeadend      Kind = "deadend"
	KindFeedback     Kind = "feedback"
	KindPlan         Kind = "plan"
	KindContext      Kind = "context"
	KindQueryResult  Kind = "query_result"
)

// Record is the Shared Memory Store's coordination unit.
type Record struct {
	ID        int64
	QueryID   string
	Kind      Kind
	Content   string
	CreatedBy string
	CreatedAt int64
	Metadata  map[string]any
}

// ScoredRecord pairs a Record with its cosine distance from a search query
//. Distance is non-negative; lower is closer.
type ScoredRecord struct {
	Record
	Distance float32
}

// ErrEmbedderUnavailable is returned by Store/UpsertSingle when the
// embedding call fails. The record is never partially inserted when this
// is returned.
type ErrEmbedderUnavailable struct {
	Cause error
}

func (e *ErrEmbedderUnavailable) Error() string {
	return fmt.Sprintf("memory: embedder unavailable: %v", e.Cause)
}

func (e *ErrEmbedderUnavailable) Unwrap() error {
	return e.Cause
}

// ErrInvariant reports a violated store invariant, e.g. a memory row with
// no matching vector row. Fatal to the caller.
type ErrInvariant struct {
	Detail string
}

func (e *ErrInvariant) Error() string {
	return fmt.Sprintf("memory: invariant violated: %s", e.Detail)
}
