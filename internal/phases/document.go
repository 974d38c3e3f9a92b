package phases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basegraphhq/researchd/internal/progress"
)

// DefaultMaxDocumentIterations is the default writer-critique loop cap.
const DefaultMaxDocumentIterations = 3

// DocumentController drives the writer and document-critic pair until the
// critic approves or the iteration cap is hit, at which point the most
// recent draft ships regardless.
type DocumentController struct {
	roster        Roster
	prog          *progress.Channel
	maxIterations int
}

// NewDocumentController builds a Document Controller. maxIterations <= 0
// uses DefaultMaxDocumentIterations.
func NewDocumentController(roster Roster, prog *progress.Channel, maxIterations int) *DocumentController {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxDocumentIterations
	}
	return &DocumentController{roster: roster, prog: prog, maxIterations: maxIterations}
}

// Run produces the long-form document from the approved research text. A
// writer failure with no earlier draft is fatal; a critic failure falls
// back to the most recent draft rather than killing the run.
func (dc *DocumentController) Run(ctx context.Context, query, research string) (string, error) {
	writer := dc.roster["writer"]
	critic := dc.roster["document_critic"]

	var draft string
	var critique string

	for iteration := 1; iteration <= dc.maxIterations; iteration++ {
		dc.emit(progress.Event{Kind: progress.KindWriting, Iteration: iteration})

		prompt := fmt.Sprintf("Original query: %s\n\nApproved research:\n%s", query, research)
		if critique != "" {
			prompt = fmt.Sprintf("%s\n\nPrevious draft:\n%s\n\nCritique to address:\n%s", prompt, draft, critique)
		}

		written, err := writer.Runner.Run(ctx, writer.Def.SystemPrompt, prompt)
		if err != nil {
			if draft != "" {
				slog.WarnContext(ctx, "document controller: writer failed, shipping previous draft",
					"iteration", iteration, "error", err)
				return draft, nil
			}
			return "", fmt.Errorf("document controller: writer iteration %d: %w", iteration, err)
		}
		draft = written.Content

		review, err := critic.Runner.Run(ctx, critic.Def.SystemPrompt,
			fmt.Sprintf("Original query: %s\n\nDocument:\n%s", query, draft))
		if err != nil {
			slog.WarnContext(ctx, "document controller: critic failed, accepting current draft",
				"iteration", iteration, "error", err)
			return draft, nil
		}

		if strings.HasPrefix(strings.TrimSpace(review.Content), "APPROVED") {
			return draft, nil
		}
		critique = review.Content
	}

	// Cap exhausted: the latest draft is used regardless of the critic's
	// last verdict.
	return draft, nil
}

func (dc *DocumentController) emit(ev progress.Event) {
	if dc.prog != nil {
		dc.prog.Emit(ev)
	}
}
