package core

import "context"

const (
	IntentImage     = "image_generation"
	IntentReasoning = "reasoning"
	IntentDefault   = "default"
)

// Reply is the answer to one user message. ImageURL is set only when an
// image was generated and published.
type Reply struct {
	Text     string
	ImageURL string
	Intent   string
}

type ChatService interface {
	Respond(ctx context.Context, userId, message string) (Reply, error)
}
