package ai

import (
	"ChatBridge/core"
	"ChatBridge/lib/sl"
	"ChatBridge/storage"
	"context"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

type ChatGPT struct {
	client  *openai.Client
	timeout time.Duration
	log     *slog.Logger
}

func NewChat(conf *core.Config, log *slog.Logger) *ChatGPT {
	config := openai.DefaultConfig(conf.Chat.ApiKey)
	if conf.Chat.BaseURL != "" {
		config.BaseURL = conf.Chat.BaseURL
	}
	return &ChatGPT{
		client:  openai.NewClientWithConfig(config),
		timeout: conf.Chat.Timeout,
		log:     log.With(sl.Module("chat-gpt")),
	}
}

// Complete sends the history to the completion API and returns the text of
// the first choice, or an empty string when the API returned no choices
func (c *ChatGPT) Complete(ctx context.Context, history []storage.Message, profile core.Profile) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, NewRequest(history, profile))
	if err != nil {
		return "", &core.CompletionError{Model: profile.Model, Err: err}
	}

	c.log.With(
		slog.String("model", resp.Model),
		slog.Int("messages", len(history)),
		slog.Int("choices", len(resp.Choices)),
		slog.Int("tokens", resp.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)),
	).Info("chat completion")

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
