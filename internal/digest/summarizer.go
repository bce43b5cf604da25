package digest

import (
	"context"
	"fmt"
	"strings"

	"macropulse/internal/llm"
	"macropulse/internal/logging"
)

const systemPrompt = `You are a senior macro analyst writing a daily briefing for portfolio managers. You receive a ranked list of posts from macro commentators and economists. Produce a concise digest that:
- opens with the two or three dominant themes of the window,
- groups related posts under short bold headers,
- cites each post with its Source URL on its own line,
- treats a thread as a single argument, not separate posts,
- closes with what to watch next.
Stay factual. Do not invent data that is not in the posts.`

// Summarizer turns a ranked item list into digest prose via a chat model.
type Summarizer struct {
	Client      llm.ChatClient
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      logging.Logger
}

// Summarize formats the items and asks the model for a digest. An empty
// completion is treated as a failure so the caller never persists a blank
// report.
func (s *Summarizer) Summarize(ctx context.Context, items []Item) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("summarize: no items")
	}

	resp, err := s.Client.ChatCompletion(ctx, llm.ChatCompletionRequest{
		Model: s.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Posts from the reporting window, ranked by engagement:\n\n" + FormatForPrompt(items)},
		},
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize: empty completion")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("summarize: empty completion")
	}

	if s.Logger != nil {
		s.Logger.WithFields(logging.Fields{
			"items":       len(items),
			"summary_len": len(summary),
		}).Info("summary generated")
	}
	return summary, nil
}
