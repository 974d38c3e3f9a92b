package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/internal/memory"
)

// progressiveDelaySchedule is the inter-call pacing the Tool Executor
// applies between successive calls made through the same Executor (the
// count is kept per Executor and carries over between Run calls): the first
// call is immediate, each subsequent call waits longer, capped at the final
// entry.
var progressiveDelaySchedule = []time.Duration{
	0,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	1500 * time.Millisecond,
}

// Summarizer compresses an over-threshold tool result down to a shorter
// text summary. Implemented by internal/summarizer; declared here to
// avoid a package cycle (tools must not import summarizer, which itself
// calls an AgentClient that tools doesn't need to know about).
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Executor dispatches tool calls for one agent turn loop, applying the
// permission check, progressive delay, and summarisation/audit steps
// uniformly regardless of the tool's backing transport.
type Executor struct {
	registry   *Registry
	sess       *memory.Session
	role       string
	allowed    map[string]bool // nil means every registered tool is permitted
	summarizer Summarizer
	threshold  int // result length above which non-memory results are summarised

	mu        sync.Mutex
	callCount int
}

// NewExecutor builds a Tool Executor bound to one agent's permitted tool
// set. allowedNames may be nil to permit every registered tool (used by
// agents without an explicit allowed_tool_names list).
func NewExecutor(registry *Registry, sess *memory.Session, role string, allowedNames []string, summarizer Summarizer, threshold int) *Executor {
	var allowed map[string]bool
	if allowedNames != nil {
		allowed = make(map[string]bool, len(allowedNames))
		for _, n := range allowedNames {
			allowed[n] = true
		}
	}
	return &Executor{
		registry:   registry,
		sess:       sess,
		role:       role,
		allowed:    allowed,
		summarizer: summarizer,
		threshold:  threshold,
	}
}

// Dispatch executes one tool call: permission check, progressive delay,
// transport call, conditional summarisation, and audit logging. It never
// returns a Go error for anything the calling agent did wrong (unknown
// tool, not permitted, malformed arguments, transport failure) — those are
// all rendered as text so the agent's turn loop can react to them.
// A non-nil error return means either ctx was cancelled during the
// inter-call delay or the memory audit write itself failed, which is a
// store-level fault, not an agent-facing one.
func (e *Executor) Dispatch(ctx context.Context, toolName, arguments string) (string, error) {
	e.mu.Lock()
	delay := progressiveDelaySchedule[len(progressiveDelaySchedule)-1]
	if e.callCount < len(progressiveDelaySchedule) {
		delay = progressiveDelaySchedule[e.callCount]
	}
	e.callCount++
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	result, toolType, success := e.invoke(ctx, toolName, arguments)

	if success && !IsMemoryTool(toolName) && e.summarizer != nil && e.threshold > 0 && len(result) > e.threshold {
		summary, err := e.summarizer.Summarize(ctx, result)
		if err != nil {
			slog.WarnContext(ctx, "tool result summarisation failed, keeping original text", "tool", toolName, "error", err)
		} else {
			result = summary
		}
	}

	if e.sess != nil {
		if err := e.sess.RecordToolCall(ctx, e.role, toolType, toolName, arguments, result, success); err != nil {
			return result, fmt.Errorf("recording tool call audit: %w", err)
		}
	}

	return result, nil
}

// Definitions returns the LLM-facing definitions of every tool this
// executor's agent may call. allowedNames overrides the executor's own
// allowed set when non-nil, so a runner can hand the model a narrower menu
// than the executor would permit at dispatch time.
func (e *Executor) Definitions(allowedNames []string) []llm.Tool {
	allowed := e.allowed
	if allowedNames != nil {
		allowed = make(map[string]bool, len(allowedNames))
		for _, n := range allowedNames {
			allowed[n] = true
		}
	}
	return e.registry.Definitions(allowed)
}

func (e *Executor) invoke(ctx context.Context, toolName, arguments string) (result string, toolType string, success bool) {
	// Unknown-tool comes before the permission check: a hallucinated name
	// must read back as "unknown tool" so the model corrects the name
	// rather than assuming the tool exists but is off-limits.
	tool, ok := e.registry.Lookup(toolName)
	if !ok {
		err := &ErrUnknownTool{Name: toolName}
		return err.Error(), "unknown", false
	}

	if e.allowed != nil && !e.allowed[toolName] {
		err := &ErrToolNotPermitted{Name: toolName, AgentRole: e.role}
		return err.Error(), string(tool.Type), false
	}

	text, err := tool.Invoke(ctx, arguments)
	if err != nil {
		return fmt.Sprintf("tool %q failed: %v", toolName, err), string(tool.Type), false
	}
	return text, string(tool.Type), true
}
