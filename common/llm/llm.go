// Package llm wraps the chat-completion transports (OpenAI, Anthropic) behind
// a single tool-calling interface so the rest of the orchestrator never
// imports a provider SDK directly.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Provider selects which model transport a Config resolves to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds the connection details for one model transport.
type Config struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Model    string
}

// AgentClient is the model-side collaborator: it drives a single
// tool-calling turn and reports back whatever text/tool-calls the model produced.
// Every agent role (planner, worker, supervisor, debate agents, writer, ...) is
// driven through the same interface — the Agent Runner is polymorphic only over
// which AgentDefinition and AgentClient it was constructed with.
type AgentClient interface {
	ChatWithTools(ctx context.Context, req AgentRequest) (*AgentResponse, error)
	Model() string
}

// AgentRequest contains the messages and tools for an agent turn.
type AgentRequest struct {
	Messages    []Message
	Tools       []Tool
	MaxTokens   int
	Temperature *float64
}

// Message represents a conversation message.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Name       string // optional participant name (user messages only)
	Content    string
	ToolCalls  []ToolCall // assistant messages that requested tool calls
	ToolCallID string     // tool-result messages: which call this answers
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  any // JSON schema
}

// ToolCall is a single invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// AgentResponse is what came back from one model turn.
type AgentResponse struct {
	Content          string
	ToolCalls        []ToolCall
	FinishReason     string // "stop", "tool_calls", "length"
	PromptTokens     int
	CompletionTokens int
}

// NewAgentClient builds the AgentClient for cfg.Provider. Workers, the
// supervisor, and every phase controller receive an AgentClient at
// construction time — there is no process-global client.
func NewAgentClient(cfg Config) (AgentClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderOpenAI, "":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// ParseToolArguments unmarshals a tool call's JSON arguments into T.
func ParseToolArguments[T any](arguments string) (T, error) {
	var result T
	if err := json.Unmarshal([]byte(arguments), &result); err != nil {
		return result, fmt.Errorf("parse tool arguments: %w", err)
	}
	return result, nil
}

// GenerateSchemaFrom reflects a JSON schema from an instance value, for tool
// definitions whose parameter type isn't known until the tool is registered
// (HTTP/MCP tools built from user-declared templates).
func GenerateSchemaFrom(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

// GenerateSchema reflects a JSON schema for a compile-time known type, for the
// builtin tools whose parameter struct is fixed in code.
func GenerateSchema[T any]() any {
	var v T
	return GenerateSchemaFrom(v)
}

// SanitizeName converts a free-form display name into OpenAI's
// ^[a-zA-Z0-9_-]{1,64}$ participant-name constraint, producing a value
// suitable for `Message.Name`.
func SanitizeName(name string) string {
	sanitized := nameInvalidChars.ReplaceAllString(name, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

// IsRetryable reports whether a ModelTransport failure from an AgentClient
// call should be retried once: context cancellation is never retryable; for
// OpenAI API errors, rate limits and 5xx responses are and every other
// status (bad request, auth) is not; any other error, including every error
// from the Anthropic transport, is treated as a retryable network failure.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context ended")
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry", "status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode, "error_type", apiErr.Type, "error_code", apiErr.Code)
			return false
		}
	}

	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

// Temp builds a *float64 temperature from a literal, so callers can write
// llm.Temp(0) for deterministic critic/synthesiser turns without a local var.
func Temp(t float64) *float64 {
	return &t
}
