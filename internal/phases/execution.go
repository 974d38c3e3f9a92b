package phases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/basegraphhq/researchd/internal/contextasm"
	"github.com/basegraphhq/researchd/internal/progress"
	"github.com/basegraphhq/researchd/internal/supervisor"
)

// ExecutionController spawns one Agent Runner per sub-question plus a
// Supervisor task, and collects results as they arrive.
type ExecutionController struct {
	roster     Roster
	supervisor *supervisor.Task
	prog       *progress.Channel
}

// NewExecutionController builds an Execution Controller.
func NewExecutionController(roster Roster, sup *supervisor.Task, prog *progress.Channel) *ExecutionController {
	return &ExecutionController{roster: roster, supervisor: sup, prog: prog}
}

// Run dispatches one worker task per sub-question plus the supervisor
// task, waits for every worker to terminate (debate must not start while
// any worker task is live), then cancels the supervisor. A worker that
// errors contributes a skipped slot, not a pipeline failure.
func (e *ExecutionController) Run(ctx context.Context, assemblers map[string]*contextasm.Assembler, questions []SubQuestion) []WorkerResult {
	e.emit(progress.Event{Kind: progress.KindDispatchingWorkers, Count: len(questions)})

	supCtx, cancelSupervisor := context.WithCancel(ctx)
	if e.supervisor != nil {
		go e.supervisor.Run(supCtx)
	}
	defer cancelSupervisor()

	results := make([]WorkerResult, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(i int, q SubQuestion) {
			defer wg.Done()
			results[i] = e.runWorker(ctx, assemblers, q)
			e.emit(progress.Event{Kind: progress.KindWorkerDone, Role: q.WorkerRole})
		}(i, q)
	}
	wg.Wait()

	return results
}

func (e *ExecutionController) runWorker(ctx context.Context, assemblers map[string]*contextasm.Assembler, q SubQuestion) WorkerResult {
	agent, ok := e.roster[q.WorkerRole]
	if !ok {
		return WorkerResult{WorkerRole: q.WorkerRole, Question: q.Question,
			Err: fmt.Errorf("no agent definition for worker role %q", q.WorkerRole)}
	}

	asm := assemblers[q.WorkerRole]
	content, err := asm.Assemble(ctx, agent.Def.SystemPrompt)
	if err != nil {
		return WorkerResult{WorkerRole: q.WorkerRole, Question: q.Question, Err: err}
	}

	result, err := agent.Runner.Run(ctx, content, q.Question)
	if err != nil {
		slog.WarnContext(ctx, "worker task failed, slot skipped", "role", q.WorkerRole, "error", err)
		return WorkerResult{WorkerRole: q.WorkerRole, Question: q.Question, Err: err}
	}

	return WorkerResult{WorkerRole: q.WorkerRole, Question: q.Question, Answer: result.Content}
}

func (e *ExecutionController) emit(ev progress.Event) {
	if e.prog != nil {
		e.prog.Emit(ev)
	}
}
