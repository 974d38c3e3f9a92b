// Package tools implements the Tool Executor: a registry of builtin,
// user-declared HTTP, and MCP tools, dispatched through a single Dispatch
// entry point that applies permission checks, a progressive inter-call
// delay, transport-error containment, and audit logging.
package tools

import (
	"context"
	"fmt"

	"github.com/basegraphhq/researchd/common/llm"
)

// Type distinguishes how a registered tool reaches its backing transport.
type Type string

const (
	TypeBuiltin Type = "builtin"
	TypeHTTP    Type = "http"
	TypeMCP     Type = "mcp"
)

// Tool is a single registered, invocable tool.
type Tool struct {
	Definition llm.Tool
	Type       Type
	// Invoke executes the tool against its raw JSON arguments string and
	// returns the text result the model will see. It must never panic;
	// transport failures are reported as a returned error and turned into
	// a text result by the executor, never surfaced as a Go panic.
	Invoke func(ctx context.Context, arguments string) (string, error)
}

// Name returns the tool's registered name.
func (t Tool) Name() string { return t.Definition.Name }

// ErrUnknownTool is returned (and rendered as a fixed text result) when an
// agent calls a tool name the registry does not recognise.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ErrToolNotPermitted is returned when an agent calls a tool outside its
// declared allowed_tool_names set.
type ErrToolNotPermitted struct {
	Name      string
	AgentRole string
}

func (e *ErrToolNotPermitted) Error() string {
	return fmt.Sprintf("tool %q is not permitted for agent role %q", e.Name, e.AgentRole)
}
