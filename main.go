package main

import (
	"ChatBridge/ai"
	"ChatBridge/bot"
	"ChatBridge/core"
	"ChatBridge/holder"
	"ChatBridge/lib/sl"
	"ChatBridge/publish"
	"ChatBridge/server"
	"ChatBridge/storage"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	// .env is optional, real environment variables take precedence
	envErr := godotenv.Load()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.Chat.Default.Model),
		slog.String("image_provider", conf.Image.Provider),
		sl.Secret(conf.Chat.ApiKey),
	).Info("starting chat bridge")
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("loading .env", sl.Err(envErr))
	}

	store := storage.NewMemoryStorage(conf.SystemPrompt, conf.Conversation.TTL, conf.Conversation.CleanupInterval)
	contexts := holder.NewContextManager(store, conf.Conversation.LockFree, log)
	defer func() {
		if err := contexts.Close(); err != nil {
			log.Error("closing conversations", sl.Err(err))
		}
	}()

	recorder := newRecorder(conf, log)
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Error("closing interaction recorder", sl.Err(err))
		}
	}()

	backend, err := ai.NewImageBackend(conf)
	if err != nil {
		log.Error("creating image backend", sl.Err(err))
		return
	}

	assistant := ai.NewAssistant(
		conf,
		log,
		contexts,
		ai.NewChat(conf, log),
		ai.NewImageGenerator(backend, conf.Image.Timeout, log),
		publish.NewFTPPublisher(conf, log),
		recorder,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	httpServer := server.NewServer(conf, assistant, log)
	group.Go(func() error {
		return httpServer.Start(ctx)
	})

	if conf.Telegram.Enabled {
		tgBot, err := bot.NewTgBot(conf, log)
		if err != nil {
			log.Error("creating telegram", sl.Err(err))
		} else {
			tgBot.SetChat(assistant)
			group.Go(func() error {
				return tgBot.Start(ctx)
			})
		}
	}

	if err = group.Wait(); err != nil {
		log.Error("stopped with error", sl.Err(err))
	}
	log.Info("shutdown complete")
}

// newRecorder keeps interactions in MongoDB when it is enabled and reachable,
// otherwise in the log
func newRecorder(conf *core.Config, log *slog.Logger) storage.InteractionRecorder {
	if !conf.Mongo.Enabled {
		return storage.NewLogRecorder(log)
	}
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
		conf.Mongo.User, conf.Mongo.Password,
		conf.Mongo.Host, conf.Mongo.Port)
	recorder, err := storage.NewMongoRecorder(mongoURI, conf.Mongo.Database, log)
	if err != nil {
		log.With(
			slog.String("db", conf.Mongo.Database),
			slog.String("user", conf.Mongo.User),
			slog.String("host", conf.Mongo.Host),
		).Error("falling back to log recorder", sl.Err(err))
		return storage.NewLogRecorder(log)
	}
	log.Info("recording interactions to MongoDB")
	return recorder
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
