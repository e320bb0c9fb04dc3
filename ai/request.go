package ai

import (
	"ChatBridge/core"
	"ChatBridge/storage"

	"github.com/sashabaranov/go-openai"
)

// NewRequest builds a completion request carrying the whole history.
// Zero profile values are left out of the request.
func NewRequest(history []storage.Message, profile core.Profile) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:               profile.Model,
		Messages:            messages,
		Temperature:         profile.Temperature,
		MaxCompletionTokens: profile.MaxTokens,
		ReasoningEffort:     profile.ReasoningEffort,
	}
}
