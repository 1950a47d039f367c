package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// defaultMaxTokens bounds a single completion response.
const defaultMaxTokens = 4096

// Complete sends one prompt and returns the model's text response. It
// satisfies the executor's and decomposer's completion contract: a single
// exchange, no streaming, no tool use.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	return out.String(), nil
}
