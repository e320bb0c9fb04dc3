package ai

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"ChatBridge/core"
	"ChatBridge/holder"
	"ChatBridge/lib/sl"
	"ChatBridge/storage"
)

const (
	ImageFailedReply  = "Oops! Something went wrong. Please try again, and if the issue persists."
	ImageTimeoutReply = "Sorry, the image took too long to generate. Please try again."
)

type Completer interface {
	Complete(ctx context.Context, history []storage.Message, profile core.Profile) (string, error)
}

type ImageSource interface {
	Generate(ctx context.Context, prompt, userId string) (*GeneratedImage, error)
}

type Publisher interface {
	Publish(ctx context.Context, data []byte, fileName string) (string, error)
}

// Assistant answers one message of one user: it keeps the conversation,
// routes the message by intent and turns image pipeline failures into a
// fallback reply
type Assistant struct {
	contexts  *holder.ContextManager
	completer Completer
	images    ImageSource
	publisher Publisher
	recorder  storage.InteractionRecorder
	profiles  map[string]core.Profile
	log       *slog.Logger
}

func NewAssistant(
	conf *core.Config,
	log *slog.Logger,
	contexts *holder.ContextManager,
	completer Completer,
	images ImageSource,
	publisher Publisher,
	recorder storage.InteractionRecorder,
) *Assistant {
	return &Assistant{
		contexts:  contexts,
		completer: completer,
		images:    images,
		publisher: publisher,
		recorder:  recorder,
		profiles: map[string]core.Profile{
			core.IntentDefault:   conf.DefaultProfile(),
			core.IntentReasoning: conf.ReasoningProfile(),
		},
		log: log.With(sl.Module("assistant")),
	}
}

func (a *Assistant) Respond(ctx context.Context, userId, message string) (core.Reply, error) {
	if strings.TrimSpace(userId) == "" || strings.TrimSpace(message) == "" {
		return core.Reply{}, core.ErrBadRequest
	}

	unlock := a.contexts.Lock(userId)
	defer unlock()

	log := a.log.With(sl.User(userId))
	log.With(sl.Truncate("text", message, 50)).Info("incoming message")

	if _, err := a.contexts.History(userId); err != nil {
		return core.Reply{}, fmt.Errorf("getting user context: %w", err)
	}
	if err := a.contexts.AppendUser(userId, message); err != nil {
		return core.Reply{}, fmt.Errorf("adding user message: %w", err)
	}

	intent := Classify(message)
	reply := core.Reply{Intent: intent.Kind}
	failed := false

	switch intent.Kind {
	case core.IntentImage:
		url, err := a.imageURL(ctx, userId, intent.Prompt)
		if err != nil {
			failed = true
			reply.Text = a.imageFallback(log, err)
		} else {
			reply.ImageURL = url
			reply.Text = ImageTag(url)
		}
	default:
		history, err := a.contexts.History(userId)
		if err != nil {
			return core.Reply{}, fmt.Errorf("getting user context: %w", err)
		}
		profile := a.profiles[intent.Kind]
		text, err := a.completer.Complete(ctx, history, profile)
		if err != nil {
			// the user message stays in the history
			return core.Reply{}, err
		}
		reply.Text = text
	}

	if err := a.contexts.AppendAssistant(userId, reply.Text); err != nil {
		return core.Reply{}, fmt.Errorf("adding assistant message: %w", err)
	}

	log.With(
		slog.String("intent", reply.Intent),
		sl.Truncate("text", reply.Text, 50),
	).Info("outgoing message")

	a.record(ctx, storage.Interaction{
		UserId:      userId,
		Intent:      reply.Intent,
		UserMessage: message,
		BotResponse: reply.Text,
		ImageURL:    reply.ImageURL,
		Failed:      failed,
		CreatedAt:   time.Now(),
	})
	return reply, nil
}

func (a *Assistant) imageURL(ctx context.Context, userId, prompt string) (string, error) {
	image, err := a.images.Generate(ctx, prompt, userId)
	if err != nil {
		return "", err
	}
	return a.publisher.Publish(ctx, image.Data, image.FileName)
}

// imageFallback logs why the image pipeline failed and picks the reply
func (a *Assistant) imageFallback(log *slog.Logger, err error) string {
	var imageErr *core.ImageError
	var publishErr *core.PublishError
	switch {
	case errors.Is(err, core.ErrImageTimeout):
		log.Warn("image generation timed out", sl.Err(err))
		return ImageTimeoutReply
	case errors.Is(err, core.ErrInvalidPrompt):
		log.Warn("invalid image prompt", sl.Err(err))
	case errors.As(err, &imageErr):
		log.With(
			slog.Int("status", imageErr.Status),
			slog.String("body", imageErr.Body),
		).Error("image api failed", sl.Err(err))
	case errors.As(err, &publishErr):
		log.With(slog.String("file", publishErr.FileName)).Error("ftp upload failed", sl.Err(err))
	default:
		log.Error("generating image", sl.Err(err))
	}
	return ImageFailedReply
}

func (a *Assistant) record(ctx context.Context, interaction storage.Interaction) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Record(context.WithoutCancel(ctx), interaction); err != nil {
		a.log.With(sl.User(interaction.UserId)).Warn("recording interaction", sl.Err(err))
	}
}

// ImageTag is the markup returned to web clients for a published image
func ImageTag(url string) string {
	return fmt.Sprintf(`<img class="ai-image" src="%s" alt="Generated Image" />`, html.EscapeString(url))
}
