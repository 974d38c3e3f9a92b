package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment, enabling zero-touch
// logging where a session's identity (query_id, agent_role, phase) is
// automatically included in every log statement emitted while that context
// is in scope, without threading a logger value through every call.
type LogFields struct {
	QueryID    string // owning research session
	AgentRole  string // role of the agent currently running (planner, worker, supervisor, ...)
	WorkerRole string // sub-question worker role, when applicable
	Phase      string // plan / execute / debate / refine / document
	Component  string // component name, e.g. "researchd.agentrunner"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.QueryID != "" {
		result.QueryID = new.QueryID
	}
	if new.AgentRole != "" {
		result.AgentRole = new.AgentRole
	}
	if new.WorkerRole != "" {
		result.WorkerRole = new.WorkerRole
	}
	if new.Phase != "" {
		result.Phase = new.Phase
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or model output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
