package storage

import (
	"context"
	"log/slog"

	"ChatBridge/lib/sl"
)

// LogRecorder writes interactions to the application log only
type LogRecorder struct {
	log *slog.Logger
}

func NewLogRecorder(log *slog.Logger) *LogRecorder {
	return &LogRecorder{log: log.With(sl.Module("interactions"))}
}

func (r *LogRecorder) Record(_ context.Context, interaction Interaction) error {
	r.log.With(
		sl.User(interaction.UserId),
		slog.String("intent", interaction.Intent),
		slog.Bool("failed", interaction.Failed),
		slog.String("image", interaction.ImageURL),
		sl.Truncate("text", interaction.BotResponse, 50),
	).Debug("interaction")
	return nil
}

func (r *LogRecorder) Close() error {
	return nil
}
