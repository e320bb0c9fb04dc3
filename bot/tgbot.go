package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ChatBridge/core"
	"ChatBridge/lib/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	errorResponse = "Sorry, I'm not feeling well today. Please try again later."
	helpText      = "Just write me a message and I will answer.\n" +
		"Start it with \"imagine\", \"create an image\" or \"generate an image\" to get a picture.\n" +
		"Start it with \"reason\" when the question needs some thinking.\n" +
		"/help - show this help\n" +
		"/ask - ask something in a group chat, or just reply to my message"
	typingInterval = 5 * time.Second
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TgBot struct {
	api         *tgbotapi.BotAPI
	s           sender
	chat        core.ChatService
	botUsername string
	log         *slog.Logger
	wg          sync.WaitGroup
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.Telegram.ApiKey)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	username := conf.Telegram.Username
	if username == "" {
		username = api.Self.UserName
	}
	return &TgBot{
		api:         api,
		s:           api,
		botUsername: username,
		log:         log.With(sl.Module("tgbot")),
	}, nil
}

// SetChat set chat service
func (t *TgBot) SetChat(chat core.ChatService) {
	t.chat = chat
}

// Start polls for updates until ctx is cancelled and waits for the answers
// in progress
func (t *TgBot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	t.log.With(slog.String("username", t.botUsername)).Info("telegram bot started")

	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			t.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer t.wg.Done()
				t.handleMessage(context.WithoutCancel(ctx), msg)
			}(update.Message)
		}
	}
}

func (t *TgBot) handleMessage(ctx context.Context, incoming *tgbotapi.Message) {
	if incoming.Chat == nil || incoming.From == nil {
		return
	}
	chatId := incoming.Chat.ID
	question := incoming.Text

	if !incoming.IsCommand() && !incoming.Chat.IsPrivate() && !t.isMentioned(incoming.Text) && !t.isReplyToBot(incoming) {
		return
	}
	if incoming.IsCommand() {
		switch incoming.Command() {
		case "help", "start":
			t.plainResponse(chatId, helpText)
			return
		case "ask":
			question = incoming.CommandArguments()
		default:
			return
		}
	}
	if t.botUsername != "" {
		question = strings.ReplaceAll(question, "@"+t.botUsername, "")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return
	}

	userId := fmt.Sprintf("tg-%d", incoming.From.ID)
	t.log.With(
		sl.User(userId),
		slog.String("from", incoming.From.UserName),
		sl.Truncate("text", question, 50),
	).Debug("telegram message")

	t.SendResponse(ctx, chatId, userId, question)
}

// SendResponse keeps the typing indicator on while the reply is composed
func (t *TgBot) SendResponse(ctx context.Context, chatId int64, userId, request string) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			t.sendChatAction(chatId, tgbotapi.ChatTyping)
			select {
			case <-ticker.C:
			case <-done:
				return
			}
		}
	}()

	reply, err := t.chat.Respond(ctx, userId, request)
	close(done)
	if err != nil {
		t.log.With(sl.User(userId)).Error("getting response", sl.Err(err))
		t.plainResponse(chatId, errorResponse)
		return
	}

	if reply.ImageURL != "" {
		t.photoResponse(chatId, reply.ImageURL)
		return
	}
	t.plainResponse(chatId, reply.Text)
}

func (t *TgBot) sendChatAction(chatId int64, action string) {
	if _, err := t.s.Send(tgbotapi.NewChatAction(chatId, action)); err != nil {
		t.log.Debug("sending chat action", sl.Err(err))
	}
}

func (t *TgBot) photoResponse(chatId int64, url string) {
	if _, err := t.s.Send(tgbotapi.NewPhoto(chatId, tgbotapi.FileURL(url))); err != nil {
		t.log.With(slog.String("url", url)).Error("sending photo", sl.Err(err))
		// the link still works when telegram can't fetch it
		t.plainResponse(chatId, url)
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	if _, err := t.s.Send(tgbotapi.NewMessage(chatId, text)); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

// detect if we are mentioned in the message
func (t *TgBot) isMentioned(text string) bool {
	if t.botUsername != "" {
		return strings.Contains(text, "@"+t.botUsername)
	}
	return false
}

// detect if message is a reply to a message from the bot
func (t *TgBot) isReplyToBot(message *tgbotapi.Message) bool {
	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil {
		return message.ReplyToMessage.From.UserName == t.botUsername
	}
	return false
}
