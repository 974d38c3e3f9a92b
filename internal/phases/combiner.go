package phases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/summarizer"
)

// DefaultSummarisationThresholdResearch is the default aggregate length
// (characters) above which the Combiner summarises each worker answer
// before merging.
const DefaultSummarisationThresholdResearch = 10000

// Combiner merges worker results into one markdown block.
type Combiner struct {
	defs      *agentdef.Set
	summarize *summarizer.Summarizer
	threshold int
}

// NewCombiner builds a Combiner. threshold <= 0 uses
// DefaultSummarisationThresholdResearch.
func NewCombiner(defs *agentdef.Set, summarize *summarizer.Summarizer, threshold int) *Combiner {
	if threshold <= 0 {
		threshold = DefaultSummarisationThresholdResearch
	}
	return &Combiner{defs: defs, summarize: summarize, threshold: threshold}
}

// Combine merges results into a single markdown document titled
// `# Research Results for: <query>` with one stanza per worker, in the
// order results were given. Errored slots are skipped entirely.
func (c *Combiner) Combine(ctx context.Context, query string, results []WorkerResult) string {
	aggregateLen := 0
	for _, r := range results {
		if r.Err == nil {
			aggregateLen += len(r.Answer)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research Results for: %s\n\n", query)

	for _, r := range results {
		if r.Err != nil {
			continue
		}
		answer := r.Answer
		if aggregateLen > c.threshold && c.summarize != nil {
			if shorter, err := c.summarize.Summarize(ctx, answer); err != nil {
				slog.WarnContext(ctx, "combiner: summarisation failed, keeping original answer",
					"role", r.WorkerRole, "error", err)
			} else {
				answer = shorter
			}
		}

		displayName := r.WorkerRole
		if def, ok := c.defs.Get(r.WorkerRole); ok && def.DisplayName != "" {
			displayName = def.DisplayName
		}

		fmt.Fprintf(&sb, "## %s\n\n**Question:** %s\n\n%s\n\n", displayName, r.Question, answer)
	}

	return sb.String()
}
