// Package phases implements the Phase Controllers: the plan loop,
// execution fan-out, debate rounds, refinement loop, document loop, and
// reference extraction that together drive one research session from
// query to finished document.
package phases

import (
	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/agentrunner"
)

// Agent pairs a role's static definition with the Agent Runner configured
// for it (tool permissions, turn budget, model client already bound).
type Agent struct {
	Def    agentdef.Definition
	Runner *agentrunner.Runner
}

// Roster is the full set of configured agents for one research session,
// keyed by role.
type Roster map[string]*Agent

// SubQuestion is one planner-assigned unit of work for a worker.
type SubQuestion struct {
	Question   string `json:"question"`
	WorkerRole string `json:"worker_role"`
}

// WorkerResult is what one Agent Runner produced for its sub-question
//. Discarded after the document is written.
type WorkerResult struct {
	WorkerRole string
	Question   string
	Answer     string
	Err        error // non-nil if the worker's task failed; slot is skipped
}
