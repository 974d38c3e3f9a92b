// Package agentrunner implements the Agent Runner: the single-agent
// tool-calling turn loop shared by every worker, the planner, the
// supervisor, and every phase-controller role. One Runner call is one
// disposable conversation with a fresh message history per call; each
// agent gets its own context window rather than threading one shared
// history through the whole pipeline.
package agentrunner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/common/logger"
	"github.com/basegraphhq/researchd/internal/tools"
)

// DefaultMaxToolTurns is the default ceiling on tool-call round trips within
// one Run call.
const DefaultMaxToolTurns = 5

// Runner drives one agent's tool-calling conversation to completion.
type Runner struct {
	client       llm.AgentClient
	executor     *tools.Executor
	allowedNames []string
	maxToolTurns int
	role         string
}

// New builds a Runner bound to one agent role's model client, tool
// executor, and turn budget. maxToolTurns <= 0 uses DefaultMaxToolTurns.
func New(client llm.AgentClient, executor *tools.Executor, allowedNames []string, maxToolTurns int, role string) *Runner {
	if maxToolTurns <= 0 {
		maxToolTurns = DefaultMaxToolTurns
	}
	return &Runner{
		client:       client,
		executor:     executor,
		allowedNames: allowedNames,
		maxToolTurns: maxToolTurns,
		role:         role,
	}
}

// Result is what one Run call produces.
type Result struct {
	Content          string
	Turns            int
	PromptTokens     int
	CompletionTokens int
	HitTurnLimit     bool
}

// Run drives systemPrompt + userContent through the tool-calling loop until
// the model stops requesting tools or the turn budget is exhausted, at
// which point the loop forces one final tool-free synthesis call.
func (r *Runner) Run(ctx context.Context, systemPrompt, userContent string) (Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{AgentRole: r.role, Component: "researchd.agentrunner"})

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}

	defs := r.executor.Definitions(r.allowedNames)

	var result Result
	for turn := 1; ; turn++ {
		if turn > r.maxToolTurns {
			result.HitTurnLimit = true
			content, err := r.synthesize(ctx, messages)
			if err != nil {
				return result, err
			}
			result.Content = content
			result.Turns = turn - 1
			return result, nil
		}

		resp, err := r.chat(ctx, messages, defs)
		if err != nil {
			return result, fmt.Errorf("agent runner chat turn %d: %w", turn, err)
		}
		result.PromptTokens += resp.PromptTokens
		result.CompletionTokens += resp.CompletionTokens

		if len(resp.ToolCalls) == 0 {
			result.Content = resp.Content
			result.Turns = turn
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tool calls execute in the order the model issued them — the
		// executor's progressive delay and the memory store's ordering
		// invariants both depend on call order being preserved.
		for _, tc := range resp.ToolCalls {
			toolResult, err := r.executor.Dispatch(ctx, tc.Name, tc.Arguments)
			if err != nil {
				return result, fmt.Errorf("dispatching tool %s: %w", tc.Name, err)
			}
			slog.DebugContext(ctx, "tool call completed", "tool", tc.Name, "turn", turn)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    toolResult,
				ToolCallID: tc.ID,
			})
		}
	}
}

// chat issues one model turn, retrying exactly once on a retryable
// transport failure before giving up.
func (r *Runner) chat(ctx context.Context, messages []llm.Message, defs []llm.Tool) (*llm.AgentResponse, error) {
	resp, err := r.client.ChatWithTools(ctx, llm.AgentRequest{Messages: messages, Tools: defs})
	if err == nil {
		return resp, nil
	}
	if !llm.IsRetryable(ctx, err) {
		return nil, err
	}

	slog.WarnContext(ctx, "agent runner retrying model call once", "error", err)
	return r.client.ChatWithTools(ctx, llm.AgentRequest{Messages: messages, Tools: defs})
}

// synthesize forces a final tool-free completion when the turn budget runs
// out mid-conversation.
func (r *Runner) synthesize(ctx context.Context, messages []llm.Message) (string, error) {
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: "You have reached the maximum number of tool calls for this task. Write your final answer now using only what you have already found.",
	})
	resp, err := r.client.ChatWithTools(ctx, llm.AgentRequest{Messages: messages, Tools: nil})
	if err != nil {
		return "", fmt.Errorf("forced synthesis: %w", err)
	}
	return resp.Content, nil
}
