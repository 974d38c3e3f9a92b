package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/internal/memory"
)

// Registry holds every tool available to agents in one research session:
// builtins, user-declared HTTP tools, and the tools discovered from
// configured MCP servers.
type Registry struct {
	tools   map[string]Tool
	closers []func() error
}

// Config wires the process-level tool configuration into a Registry.
type Config struct {
	Web         WebConfig
	HTTPTools   []HTTPToolSpec
	MCPServers  []MCPServerSpec
}

// NewRegistry assembles the full tool registry for one research session.
// sess is the session-scoped memory handle the memory tools bind to; role
// tags memory_store writes with their author. A misbehaving MCP server is
// logged and skipped rather than failing registry construction — one
// unreachable server should never prevent every other agent from getting
// its tools.
func NewRegistry(ctx context.Context, cfg Config, sess *memory.Session, role string) *Registry {
	r := &Registry{tools: map[string]Tool{}}

	for _, t := range registerBuiltinWebTools(cfg.Web) {
		r.add(t)
	}
	for _, t := range registerMemoryTools(sess, role) {
		r.add(t)
	}
	for _, t := range registerHTTPTools(cfg.HTTPTools) {
		r.add(t)
	}
	for _, spec := range cfg.MCPServers {
		discovered, closeFn, err := registerMCPServer(ctx, spec)
		if err != nil {
			slog.WarnContext(ctx, "mcp server unavailable, skipping", "server", spec.Name, "error", err)
			continue
		}
		for _, t := range discovered {
			r.add(t)
		}
		r.closers = append(r.closers, closeFn)
	}

	return r
}

func (r *Registry) add(t Tool) {
	r.tools[t.Name()] = t
}

// Definitions returns every registered tool's LLM-facing definition,
// filtered to allowed if non-nil.
func (r *Registry) Definitions(allowed map[string]bool) []llm.Tool {
	defs := make([]llm.Tool, 0, len(r.tools))
	for name, t := range r.tools {
		if allowed != nil && !allowed[name] {
			continue
		}
		defs = append(defs, t.Definition)
	}
	return defs
}

// Lookup returns the registered tool by name, and whether it exists.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// IsMemoryTool reports whether name is one of the eight memory tools,
// which are exempt from the summarisation step applied to other tool
// results.
func IsMemoryTool(name string) bool {
	switch name {
	case "memory_store", "memory_search",
		"memory_get_discoveries", "memory_get_insights", "memory_get_deadends",
		"memory_get_feedback", "memory_get_plan", "memory_get_context":
		return true
	default:
		return false
	}
}

// Close shuts down every MCP subprocess the registry started.
func (r *Registry) Close() error {
	var firstErr error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing mcp server: %w", err)
		}
	}
	return firstErr
}
