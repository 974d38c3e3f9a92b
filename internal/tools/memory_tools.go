package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/internal/memory"
)

// registerMemoryTools wires the eight memory-manipulation tools onto
// a session-scoped Shared Memory Store handle. Unlike web/http/mcp tools,
// these are never summarised: they go through the same Dispatch path,
// including the progressive delay, but the executor exempts memory tool
// names from the summarisation step.
func registerMemoryTools(sess *memory.Session, role string) []Tool {
	return []Tool{
		memoryStoreTool(sess, role),
		memorySearchTool(sess),
		memoryGetTool(sess, "memory_get_discoveries", memory.KindDiscovery, "discoveries"),
		memoryGetTool(sess, "memory_get_insights", memory.KindInsight, "insights"),
		memoryGetTool(sess, "memory_get_deadends", memory.KindDeadend, "dead ends"),
		memoryGetTool(sess, "memory_get_feedback", memory.KindFeedback, "supervisor feedback"),
		memoryGetTool(sess, "memory_get_plan", memory.KindPlan, "the research plan"),
		memoryGetTool(sess, "memory_get_context", memory.KindContext, "context notes"),
	}
}

type memoryStoreParams struct {
	Kind    string `json:"kind" jsonschema:"required,enum=discovery,enum=insight,enum=deadend,description=The kind of memory record to store."`
	Content string `json:"content" jsonschema:"required,description=The text to remember for the rest of this research session."`
}

func memoryStoreTool(sess *memory.Session, role string) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "memory_store",
			Description: "Record a discovery, insight, or dead end for other agents in this research session to see.",
			Parameters:  llm.GenerateSchema[memoryStoreParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[memoryStoreParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			kind := memory.Kind(strings.ToLower(params.Kind))
			switch kind {
			case memory.KindDiscovery, memory.KindInsight, memory.KindDeadend:
			default:
				return fmt.Sprintf("Error: kind must be one of discovery, insight, deadend (got %q)", params.Kind), nil
			}
			if strings.TrimSpace(params.Content) == "" {
				return "Error: content is required", nil
			}
			id, err := sess.Store(ctx, kind, params.Content, role, nil)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("stored %s #%d", kind, id), nil
		},
	}
}

type memorySearchParams struct {
	Query string `json:"query" jsonschema:"required,description=Natural language text to search for in this session's memory."`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default 5)."`
}

func memorySearchTool(sess *memory.Session) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "memory_search",
			Description: "Search this research session's memory by similarity to a natural-language query.",
			Parameters:  llm.GenerateSchema[memorySearchParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[memorySearchParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			if strings.TrimSpace(params.Query) == "" {
				return "Error: query is required", nil
			}
			limit := params.Limit
			if limit <= 0 {
				limit = 5
			}
			results, err := sess.Search(ctx, params.Query, limit)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "no matching memory records", nil
			}
			var sb strings.Builder
			for _, r := range results {
				fmt.Fprintf(&sb, "[%s #%d, distance=%.3f] %s\n", r.Kind, r.ID, r.Distance, r.Content)
			}
			return sb.String(), nil
		},
	}
}

type memoryGetParams struct{}

func memoryGetTool(sess *memory.Session, name string, kind memory.Kind, label string) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        name,
			Description: fmt.Sprintf("List every %s recorded so far in this research session, newest first.", label),
			Parameters:  llm.GenerateSchema[memoryGetParams](),
		},
		Invoke: func(ctx context.Context, _ string) (string, error) {
			records, err := sess.ByKind(ctx, kind)
			if err != nil {
				return "", err
			}
			if len(records) == 0 {
				return fmt.Sprintf("no %s recorded yet", label), nil
			}
			var sb strings.Builder
			for _, r := range records {
				fmt.Fprintf(&sb, "[#%d by %s] %s\n", r.ID, r.CreatedBy, r.Content)
			}
			return sb.String(), nil
		},
	}
}
