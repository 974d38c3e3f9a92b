// Package contextasm implements the Context Assembler: it builds the
// user-turn content handed to an Agent Runner by concatenating the shared
// memory session's current state in a fixed order, so every agent sees the
// same shape of context regardless of which phase invoked it.
package contextasm

import (
	"context"
	"fmt"
	"strings"

	"github.com/basegraphhq/researchd/internal/memory"
)

const (
	maxDiscoveries = 10
	maxDeadends    = 5
)

const (
	bannerStart = "=== RESEARCH CONTEXT ==="
	bannerEnd   = "=== END CONTEXT ==="
)

// Assembler builds prompt context from one session's memory.
type Assembler struct {
	sess *memory.Session
}

// New binds an Assembler to a research session's memory.
func New(sess *memory.Session) *Assembler {
	return &Assembler{sess: sess}
}

// Assemble concatenates, in order: the opening banner, the latest plan
// record, the latest feedback record, up to maxDiscoveries newest
// discoveries, up to maxDeadends newest dead ends, the closing banner, then
// the agent's own system prompt. The result is meant to be used as
// the Agent Runner's system-turn content; the sub-question itself is kept
// separate and passed as the user turn, so callers do
// runner.Run(ctx, assembler.Assemble(ctx, systemPrompt), subQuestion). Any
// section with nothing to show is omitted entirely rather than emitted
// empty.
func (a *Assembler) Assemble(ctx context.Context, systemPrompt string) (string, error) {
	var sb strings.Builder
	sb.WriteString(bannerStart)
	sb.WriteString("\n\n")

	if plan, ok, err := a.sess.Latest(ctx, memory.KindPlan); err != nil {
		return "", fmt.Errorf("loading plan: %w", err)
	} else if ok {
		fmt.Fprintf(&sb, "Plan:\n%s\n\n", plan.Content)
	}

	if feedback, ok, err := a.sess.Latest(ctx, memory.KindFeedback); err != nil {
		return "", fmt.Errorf("loading feedback: %w", err)
	} else if ok {
		fmt.Fprintf(&sb, "Supervisor feedback:\n%s\n\n", feedback.Content)
	}

	discoveries, err := a.sess.ByKind(ctx, memory.KindDiscovery)
	if err != nil {
		return "", fmt.Errorf("loading discoveries: %w", err)
	}
	if len(discoveries) > 0 {
		sb.WriteString("Discoveries so far:\n")
		for i, d := range discoveries {
			if i >= maxDiscoveries {
				break
			}
			fmt.Fprintf(&sb, "- [%s] %s\n", d.CreatedBy, d.Content)
		}
		sb.WriteString("\n")
	}

	deadends, err := a.sess.ByKind(ctx, memory.KindDeadend)
	if err != nil {
		return "", fmt.Errorf("loading dead ends: %w", err)
	}
	if len(deadends) > 0 {
		sb.WriteString("Dead ends already ruled out:\n")
		for i, d := range deadends {
			if i >= maxDeadends {
				break
			}
			fmt.Fprintf(&sb, "- [%s] %s\n", d.CreatedBy, d.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(bannerEnd)
	sb.WriteString("\n\n")
	sb.WriteString(systemPrompt)

	return sb.String(), nil
}
