package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/basegraphhq/researchd/internal/progress"
)

// DefaultMaxDebateRounds is the default debate-round cap.
const DefaultMaxDebateRounds = 2

// DebateVerdict is the synthesiser's final call for one round.
type DebateVerdict struct {
	Approved bool
	Gaps     string // populated when Approved is false, the REFINE directive's body
}

// DebateController runs advocate/skeptic/synthesiser rounds over combined
// research output.
type DebateController struct {
	roster     Roster
	prog       *progress.Channel
	maxRounds  int
}

// NewDebateController builds a Debate Controller. maxRounds <= 0 uses
// DefaultMaxDebateRounds.
func NewDebateController(roster Roster, prog *progress.Channel, maxRounds int) *DebateController {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxDebateRounds
	}
	return &DebateController{roster: roster, prog: prog, maxRounds: maxRounds}
}

// Run debates combined over up to maxRounds rounds and returns the final
// verdict. Debate agents may call the tool executor, in particular to
// re-search and verify a disputed claim.
func (d *DebateController) Run(ctx context.Context, combined string) (DebateVerdict, error) {
	advocate := d.roster["advocate"]
	skeptic := d.roster["skeptic"]
	synthesiser := d.roster["synthesiser"]

	var verdict DebateVerdict
	for round := 1; round <= d.maxRounds; round++ {
		d.emit(progress.Event{Kind: progress.KindDebate, Round: round})

		strengths, err := advocate.Runner.Run(ctx, advocate.Def.SystemPrompt, combined)
		if err != nil {
			return verdict, fmt.Errorf("debate controller: advocate round %d: %w", round, err)
		}

		concernsPrompt := fmt.Sprintf("Research results:\n%s\n\nAdvocate's case:\n%s", combined, strengths.Content)
		concerns, err := skeptic.Runner.Run(ctx, skeptic.Def.SystemPrompt, concernsPrompt)
		if err != nil {
			return verdict, fmt.Errorf("debate controller: skeptic round %d: %w", round, err)
		}

		synthPrompt := fmt.Sprintf(
			"Research results:\n%s\n\nAdvocate:\n%s\n\nSkeptic:\n%s",
			combined, strengths.Content, concerns.Content)
		synthResp, err := synthesiser.Runner.Run(ctx, synthesiser.Def.SystemPrompt, synthPrompt)
		if err != nil {
			return verdict, fmt.Errorf("debate controller: synthesiser round %d: %w", round, err)
		}

		verdict = parseVerdict(synthResp.Content)
		if verdict.Approved {
			return verdict, nil
		}
	}

	return verdict, nil
}

// Synthesise re-runs only the synthesiser agent against revised text,
// without another advocate/skeptic round — used by the Refinement
// Controller, which re-checks "the debate's synthesiser", not the full
// debate, on each refined iteration.
func (d *DebateController) Synthesise(ctx context.Context, revised string) (DebateVerdict, error) {
	synthesiser := d.roster["synthesiser"]
	resp, err := synthesiser.Runner.Run(ctx, synthesiser.Def.SystemPrompt, revised)
	if err != nil {
		return DebateVerdict{}, fmt.Errorf("debate controller: re-synthesising revision: %w", err)
	}
	return parseVerdict(resp.Content), nil
}

func parseVerdict(content string) DebateVerdict {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "APPROVED") {
		return DebateVerdict{Approved: true}
	}
	gaps := strings.TrimSpace(strings.TrimPrefix(trimmed, "REFINE:"))
	return DebateVerdict{Approved: false, Gaps: gaps}
}

func (d *DebateController) emit(ev progress.Event) {
	if d.prog != nil {
		d.prog.Emit(ev)
	}
}
