package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/progress"
)

// DefaultMaxPlanIterations is the default plan-critique loop cap.
const DefaultMaxPlanIterations = 3

// PlanController drives the draft -> critique -> (approved | refine) state
// machine.
type PlanController struct {
	roster           Roster
	sess             *memory.Session
	prog             *progress.Channel
	maxIterations    int
	minWorkerCount   int
	maxWorkerCount   int
}

// NewPlanController builds a Plan Controller. maxIterations <= 0 uses
// DefaultMaxPlanIterations.
func NewPlanController(roster Roster, sess *memory.Session, prog *progress.Channel, maxIterations, minWorkerCount, maxWorkerCount int) *PlanController {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxPlanIterations
	}
	return &PlanController{
		roster:         roster,
		sess:           sess,
		prog:           prog,
		maxIterations:  maxIterations,
		minWorkerCount: minWorkerCount,
		maxWorkerCount: maxWorkerCount,
	}
}

// Run drives the plan loop for query and persists the final plan as a
// `plan` memory record. Boundary behaviour: zero sub-questions
// from the planner yields a synthetic single sub-question equal to the
// original query.
func (p *PlanController) Run(ctx context.Context, query string) ([]SubQuestion, error) {
	planner := p.roster["lead_planner"]
	critic := p.roster["plan_critic"]

	userTurn := fmt.Sprintf(
		"Research query: %s\n\nAssign between %d and %d sub-questions to worker roles.",
		query, p.minWorkerCount, p.maxWorkerCount)

	var lastGood []SubQuestion
	var lastStrategy string
	var critique string

	for iteration := 1; iteration <= p.maxIterations; iteration++ {
		p.emit(progress.Event{Kind: progress.KindPlanning, Iteration: iteration})

		draftTurn := userTurn
		if critique != "" {
			draftTurn = fmt.Sprintf("%s\n\nPrevious plan:\n%s\n\nCritique to address:\n%s",
				userTurn, lastStrategy, critique)
		}

		draft, err := planner.Runner.Run(ctx, planner.Def.SystemPrompt, draftTurn)
		if err != nil {
			return nil, fmt.Errorf("plan controller: planner call: %w", err)
		}

		entries, ok := extractSubQuestions(draft.Content)
		if ok {
			lastGood = entries
			lastStrategy = draft.Content
		} else {
			slog.WarnContext(ctx, "plan controller: planner output unparseable, retrying with clarification",
				"iteration", iteration)
			critique = "Your previous reply did not contain a valid JSON array of {question, worker_role} objects. Reply again with the strategy paragraph followed by that JSON array."
			continue
		}

		critiqueResp, err := critic.Runner.Run(ctx, critic.Def.SystemPrompt,
			fmt.Sprintf("Query: %s\n\nStrategy and plan:\n%s", query, draft.Content))
		if err != nil {
			return nil, fmt.Errorf("plan controller: critic call: %w", err)
		}

		if strings.HasPrefix(strings.TrimSpace(critiqueResp.Content), "APPROVED") {
			if len(lastGood) == 0 {
				lastGood = []SubQuestion{{Question: query, WorkerRole: firstWorkerRole(p.roster)}}
			}
			return p.finalize(ctx, lastGood, lastStrategy)
		}
		critique = critiqueResp.Content
	}

	// Iteration cap exhausted: the most recent well-formed plan wins.
	if len(lastGood) == 0 {
		lastGood = []SubQuestion{{Question: query, WorkerRole: firstWorkerRole(p.roster)}}
		lastStrategy = "iteration cap exhausted with no parseable plan; falling back to a single sub-question"
	}
	return p.finalize(ctx, lastGood, lastStrategy)
}

func (p *PlanController) finalize(ctx context.Context, entries []SubQuestion, strategy string) ([]SubQuestion, error) {
	if len(entries) == 0 {
		entries = []SubQuestion{{Question: strategy, WorkerRole: firstWorkerRole(p.roster)}}
	}
	if p.maxWorkerCount > 0 && len(entries) > p.maxWorkerCount {
		entries = entries[:p.maxWorkerCount]
	}

	planJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("plan controller: marshalling final plan: %w", err)
	}
	record := fmt.Sprintf("%s\n\n%s", strategy, string(planJSON))
	if _, err := p.sess.Store(ctx, memory.KindPlan, record, "lead_planner", nil); err != nil {
		return nil, fmt.Errorf("plan controller: persisting plan: %w", err)
	}

	p.emit(progress.Event{Kind: progress.KindPlanApproved})
	return entries, nil
}

func (p *PlanController) emit(ev progress.Event) {
	if p.prog != nil {
		p.prog.Emit(ev)
	}
}

func firstWorkerRole(roster Roster) string {
	for role, agent := range roster {
		switch role {
		case "lead_planner", "plan_critic", "supervisor", "advocate", "skeptic",
			"synthesiser", "refiner", "writer", "document_critic", "summariser":
			continue
		default:
			return agent.Def.Role
		}
	}
	return "web_researcher"
}

// extractSubQuestions finds the first balanced top-level JSON array in text
// and parses it as a []SubQuestion.
func extractSubQuestions(text string) ([]SubQuestion, bool) {
	raw, ok := firstBalancedArray(text)
	if !ok {
		return nil, false
	}
	var entries []SubQuestion
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// firstBalancedArray scans text for the first `[ ... ]` span whose brackets
// are balanced, respecting string literals so a `]` or `[` inside a quoted
// value doesn't end the scan early.
func firstBalancedArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
