// Package summarizer implements the Summariser: a single-shot,
// tool-free compression agent invoked by the Tool Executor on an
// over-threshold non-memory tool result, and by the Combiner on an
// over-threshold aggregate of worker results. A failed summarisation call
// is never fatal — callers fall back to the original, un-summarised text.
package summarizer

import (
	"context"
	"fmt"

	"github.com/basegraphhq/researchd/common/llm"
)

const systemPrompt = `You compress research material for other AI agents to read. ` +
	`Preserve every concrete fact, number, name, and URL. Discard filler and ` +
	`repetition. Write plain prose, no preamble.`

// Summarizer wraps an AgentClient as a one-shot compressor.
type Summarizer struct {
	client llm.AgentClient
}

// New builds a Summarizer around client.
func New(client llm.AgentClient) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize compresses text into a shorter version, preserving facts. It
// issues exactly one tool-free model call; retries are the caller's
// decision, not this package's.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.ChatWithTools(ctx, llm.AgentRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	return resp.Content, nil
}
