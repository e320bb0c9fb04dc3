package storage

import (
	"context"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// ConversationStore keeps one ordered history per user. The first message of
// every history is the system prompt; messages are only ever appended.
type ConversationStore interface {
	GetOrCreate(userId string) ([]Message, error)
	Append(userId string, message Message) error
	Len(userId string) int
	Close() error
}

// Interaction is the audit record of one answered message
type Interaction struct {
	UserId      string    `bson:"user_id"`
	Intent      string    `bson:"intent"`
	UserMessage string    `bson:"user_message"`
	BotResponse string    `bson:"bot_response"`
	ImageURL    string    `bson:"image_url,omitempty"`
	Failed      bool      `bson:"failed"`
	CreatedAt   time.Time `bson:"created_at"`
}

type InteractionRecorder interface {
	Record(ctx context.Context, interaction Interaction) error
	Close() error
}
