// Package supervisor implements the Supervisor Task: a background
// loop that periodically reviews a research session's plan and findings
// and leaves upsert-not-append feedback for the active workers to read on
// their next context assembly. It is best-effort — a failure in any one
// cycle is logged and the loop continues; the supervisor never fails the
// research run it is watching.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/basegraphhq/researchd/common/logger"
	"github.com/basegraphhq/researchd/internal/agentrunner"
	"github.com/basegraphhq/researchd/internal/contextasm"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/progress"
)

// DefaultIntervalSeconds is the default poll cadence.
const DefaultIntervalSeconds = 15

// Task runs the supervisor's periodic review loop until ctx is cancelled.
type Task struct {
	runner       *agentrunner.Runner
	systemPrompt string
	asm          *contextasm.Assembler
	sess         *memory.Session
	prog         *progress.Channel
	interval     time.Duration
}

// New builds a supervisor Task. systemPrompt is the supervisor role's
// configured prompt, same as every other agent in the roster.
// intervalSeconds <= 0 uses DefaultIntervalSeconds.
func New(runner *agentrunner.Runner, systemPrompt string, sess *memory.Session, prog *progress.Channel, intervalSeconds int) *Task {
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultIntervalSeconds
	}
	return &Task{
		runner:       runner,
		systemPrompt: systemPrompt,
		asm:          contextasm.New(sess),
		sess:         sess,
		prog:         prog,
		interval:     time.Duration(intervalSeconds) * time.Second,
	}
}

// Run blocks, performing one review cycle every interval, until ctx is
// cancelled. Intended to be launched with `go task.Run(ctx)` alongside the
// Execution Controller's worker fan-out; cancelling ctx when workers finish
// stops the loop between a sleep and the next model call.
func (t *Task) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{AgentRole: "supervisor", Component: "researchd.supervisor"})

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.reviewOnce(ctx)
		}
	}
}

func (t *Task) reviewOnce(ctx context.Context) {
	content, err := t.asm.Assemble(ctx, t.systemPrompt)
	if err != nil {
		slog.WarnContext(ctx, "supervisor failed to assemble context, skipping cycle", "error", err)
		return
	}

	result, err := t.runner.Run(ctx, content, "Review progress and leave feedback for the team.")
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.WarnContext(ctx, "supervisor review cycle failed, will retry next interval", "error", err)
		return
	}

	if _, err := t.sess.UpsertSingle(ctx, memory.KindFeedback, result.Content, "supervisor", nil); err != nil {
		slog.WarnContext(ctx, "supervisor failed to record feedback", "error", err)
		return
	}

	if t.prog != nil {
		t.prog.Emit(progress.Event{Kind: progress.KindSupervisorUpdate, Detail: result.Content})
	}
}
