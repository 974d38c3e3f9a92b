package phases

import (
	"context"
	"fmt"

	"github.com/basegraphhq/researchd/internal/progress"
)

// DefaultMaxRefinementIterations is the default refinement-loop cap.
const DefaultMaxRefinementIterations = 5

// RefinementController closes gaps the debate's synthesiser identified,
// re-running the synthesiser on each revision until it approves or the
// iteration cap is hit.
type RefinementController struct {
	roster        Roster
	debate        *DebateController
	prog          *progress.Channel
	maxIterations int
}

// NewRefinementController builds a Refinement Controller. maxIterations <=
// 0 uses DefaultMaxRefinementIterations.
func NewRefinementController(roster Roster, debate *DebateController, prog *progress.Channel, maxIterations int) *RefinementController {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxRefinementIterations
	}
	return &RefinementController{roster: roster, debate: debate, prog: prog, maxIterations: maxIterations}
}

// Run is invoked iff the debate's final verdict was not APPROVED. It
// returns the (possibly revised) research text and the iteration count
// used. The refiner agent may call memory_search and research tools to
// close gaps.
func (rc *RefinementController) Run(ctx context.Context, combined string, verdict DebateVerdict) (string, int, error) {
	refiner := rc.roster["refiner"]
	current := combined

	for iteration := 1; iteration <= rc.maxIterations; iteration++ {
		rc.emit(progress.Event{Kind: progress.KindRefining, Iteration: iteration})

		prompt := fmt.Sprintf("Research results:\n%s\n\nSynthesiser verdict: REFINE: %s\n\nRevise the research results to close these gaps. Return the full revised text.",
			current, verdict.Gaps)
		revised, err := refiner.Runner.Run(ctx, refiner.Def.SystemPrompt, prompt)
		if err != nil {
			return current, iteration, fmt.Errorf("refinement controller: iteration %d: %w", iteration, err)
		}
		current = revised.Content

		newVerdict, err := rc.debate.Synthesise(ctx, current)
		if err != nil {
			return current, iteration, fmt.Errorf("refinement controller: re-running synthesiser at iteration %d: %w", iteration, err)
		}
		if newVerdict.Approved {
			return current, iteration, nil
		}
		verdict = newVerdict
	}

	return current, rc.maxIterations, nil
}

func (rc *RefinementController) emit(ev progress.Event) {
	if rc.prog != nil {
		rc.prog.Emit(ev)
	}
}
