package llm

import (
	"context"
	"log/slog"

	"github.com/xor777/ai-telegram-chatbot/internal/conversation"
)

// Completer adapts a Client to conversation.Completer, prepending the system
// prompt to every request.
type Completer struct {
	client       Client
	systemPrompt string
	logger       *slog.Logger
}

func NewCompleter(client Client, systemPrompt string, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{client: client, systemPrompt: systemPrompt, logger: logger.With("component", "llm")}
}

func (c *Completer) Complete(ctx context.Context, history []conversation.Turn) (string, error) {
	resp, err := c.client.Generate(ctx, BuildMessages(c.systemPrompt, history))
	if err != nil {
		return "", err
	}
	c.logger.Info("LLM response",
		"model", resp.Model,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"total_tokens", resp.TotalTokens)
	return resp.Content, nil
}

// BuildMessages renders a system prompt and history as provider messages.
func BuildMessages(systemPrompt string, history []conversation.Turn) []Message {
	msgs := make([]Message, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	}
	for _, t := range history {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}
