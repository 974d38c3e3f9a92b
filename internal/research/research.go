// Package research is the orchestrator's public entry point: one Research
// call drives a query through planning, parallel worker execution with a
// live supervisor, debate, optional refinement, document writing, and
// reference extraction, emitting progress events along the way.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/basegraphhq/researchd/common"
	"github.com/basegraphhq/researchd/common/id"
	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/common/logger"
	"github.com/basegraphhq/researchd/core/config"
	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/agentrunner"
	"github.com/basegraphhq/researchd/internal/contextasm"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/phases"
	"github.com/basegraphhq/researchd/internal/progress"
	"github.com/basegraphhq/researchd/internal/summarizer"
	"github.com/basegraphhq/researchd/internal/supervisor"
	"github.com/basegraphhq/researchd/internal/tools"
)

// Orchestrator owns the long-lived collaborators shared by every research
// session: the memory store, the model and summariser clients, agent
// definitions, and tool configuration. One Orchestrator serves the whole
// process; per-session state (memory session, tool registries, roster)
// is built fresh inside each Research call.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	defs     *agentdef.Set
	store    *memory.Store
	client   llm.AgentClient
	toolsCfg tools.Config
}

// New wires an Orchestrator from its collaborators. The store must already
// be connected; client is the chat transport every agent role shares.
func New(cfg config.OrchestratorConfig, defs *agentdef.Set, store *memory.Store, client llm.AgentClient, toolsCfg tools.Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, defs: defs, store: store, client: client, toolsCfg: toolsCfg}
}

// ErrStage wraps a failure with the pipeline stage it happened in, so the
// caller knows how far the run got before dying.
type ErrStage struct {
	Stage string
	Err   error
}

func (e *ErrStage) Error() string { return fmt.Sprintf("research failed during %s: %v", e.Stage, e.Err) }
func (e *ErrStage) Unwrap() error { return e.Err }

// Research runs one full session for query, streaming progress events into
// prog (which may be nil), and returns the finished document. The session's
// memory is cleared before any other work and, when export is enabled, a
// snapshot is written after the document is finalised.
func (o *Orchestrator) Research(ctx context.Context, query string, prog *progress.Channel) (document string, err error) {
	queryID := newSessionID()

	sc := logger.StartSpan(ctx, "research.session")
	defer sc.End()
	defer func() {
		if err != nil {
			sc.RecordError(err)
		}
	}()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{QueryID: queryID, Component: "researchd.orchestrator"})
	slog.InfoContext(ctx, "research session starting", "query", logger.Truncate(query, 200))

	sess := o.store.Session(queryID)
	if err := sess.Clear(ctx); err != nil {
		return "", &ErrStage{Stage: "session setup", Err: err}
	}

	roster, closeRoster := o.buildRoster(ctx, sess)
	defer closeRoster()

	// Plan.
	planCtl := phases.NewPlanController(roster, sess, prog,
		o.cfg.MaxPlanIterations, o.cfg.MinWorkerCount, o.cfg.MaxWorkerCount)
	questions, err := planCtl.Run(ctx, query)
	if err != nil {
		return "", &ErrStage{Stage: "planning", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &ErrStage{Stage: "planning", Err: err}
	}

	// Execute: workers fan out, the supervisor watches alongside them.
	supAgent := roster["supervisor"]
	supTask := supervisor.New(supAgent.Runner, supAgent.Def.SystemPrompt, sess, prog, o.cfg.SupervisorIntervalSeconds)

	assemblers := make(map[string]*contextasm.Assembler, len(questions))
	for _, q := range questions {
		assemblers[q.WorkerRole] = contextasm.New(sess)
	}

	execCtl := phases.NewExecutionController(roster, supTask, prog)
	results := execCtl.Run(ctx, assemblers, questions)
	if err := ctx.Err(); err != nil {
		return "", &ErrStage{Stage: "execution", Err: err}
	}

	// Combine.
	emit(prog, progress.Event{Kind: progress.KindCombining})
	combiner := phases.NewCombiner(o.defs, summarizer.New(o.client), o.cfg.SummarisationThresholdResearch)
	combined := combiner.Combine(ctx, query, results)

	// Debate, then refine if the synthesiser is not satisfied.
	debateCtl := phases.NewDebateController(roster, prog, o.cfg.MaxDebateRounds)
	verdict, err := debateCtl.Run(ctx, combined)
	if err != nil {
		return "", &ErrStage{Stage: "debate", Err: err}
	}
	if !verdict.Approved {
		refineCtl := phases.NewRefinementController(roster, debateCtl, prog, o.cfg.MaxRefinementIterations)
		refined, iterations, err := refineCtl.Run(ctx, combined, verdict)
		if err != nil {
			return "", &ErrStage{Stage: "refinement", Err: err}
		}
		slog.InfoContext(ctx, "refinement finished", "iterations", iterations)
		combined = refined
	}
	if err := ctx.Err(); err != nil {
		return "", &ErrStage{Stage: "debate", Err: err}
	}

	// Write the document and append the source list.
	docCtl := phases.NewDocumentController(roster, prog, o.cfg.MaxDocumentIterations)
	document, err = docCtl.Run(ctx, query, combined)
	if err != nil {
		return "", &ErrStage{Stage: "writing", Err: err}
	}

	emit(prog, progress.Event{Kind: progress.KindFinalising})
	document = phases.AppendReferences(document)

	if o.cfg.ExportMemories {
		if err := o.export(ctx, sess, query); err != nil {
			slog.WarnContext(ctx, "memory export failed", "error", err)
		}
	}

	emit(prog, progress.Event{Kind: progress.KindDone})
	slog.InfoContext(ctx, "research session complete", "document_bytes", len(document))
	return document, nil
}

// buildRoster constructs one tool registry, executor, and runner per agent
// role. Registries are per-role so memory_store writes carry their author
// and the progressive tool-call delay paces each agent independently; the
// returned closer shuts every registry's MCP subprocesses down when the
// session ends.
func (o *Orchestrator) buildRoster(ctx context.Context, sess *memory.Session) (phases.Roster, func()) {
	summ := summarizer.New(o.client)

	roster := phases.Roster{}
	var registries []*tools.Registry
	for _, role := range o.defs.Roles() {
		def, _ := o.defs.Get(role)

		registry := tools.NewRegistry(ctx, o.toolsCfg, sess, role)
		registries = append(registries, registry)

		executor := tools.NewExecutor(registry, sess, role, def.AllowedToolNames, summ, o.cfg.SummarisationThreshold)
		runner := agentrunner.New(o.client, executor, def.AllowedToolNames, o.cfg.MaxToolTurns, role)
		roster[role] = &phases.Agent{Def: def, Runner: runner}
	}

	closeAll := func() {
		for _, r := range registries {
			if err := r.Close(); err != nil {
				slog.Warn("closing tool registry", "error", err)
			}
		}
	}
	return roster, closeAll
}

func (o *Orchestrator) export(ctx context.Context, sess *memory.Session, query string) error {
	dir := o.cfg.ExportDir
	if dir == "" {
		dir = "exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	slug, err := common.Slugify(logger.Truncate(query, 60), sess.QueryID())
	if err != nil {
		slug = sess.QueryID()
	}
	name := fmt.Sprintf("%s-%s.md", time.Now().UTC().Format("20060102T150405Z"), slug)
	return sess.Export(ctx, filepath.Join(dir, name))
}

// newSessionID builds the session's query id: a time-ordered snowflake
// plus a short random suffix, unique even across processes sharing a
// snowflake node id.
func newSessionID() string {
	return fmt.Sprintf("%d-%s", id.New(), uuid.NewString()[:8])
}

func emit(prog *progress.Channel, ev progress.Event) {
	if prog != nil {
		prog.Emit(ev)
	}
}

// IsCancelled reports whether err means the session was cancelled by the
// host rather than failing on its own.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
