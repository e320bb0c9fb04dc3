package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"ChatBridge/core"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	mu      sync.Mutex
	texts   []string
	photos  []string
	actions int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.texts = append(f.texts, m.Text)
	case tgbotapi.PhotoConfig:
		f.photos = append(f.photos, string(m.File.(tgbotapi.FileURL)))
	case tgbotapi.ChatActionConfig:
		f.actions++
	}
	return tgbotapi.Message{}, nil
}

type fakeChat struct {
	mu      sync.Mutex
	reply   core.Reply
	err     error
	userIds []string
	asked   []string
}

func (f *fakeChat) Respond(_ context.Context, userId, message string) (core.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userIds = append(f.userIds, userId)
	f.asked = append(f.asked, message)
	return f.reply, f.err
}

func newTestBot(chat *fakeChat) (*TgBot, *fakeSender) {
	s := &fakeSender{}
	b := &TgBot{
		s:           s,
		botUsername: "bridge_bot",
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	b.SetChat(chat)
	return b, s
}

func privateMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, UserName: "alice"},
		Chat: &tgbotapi.Chat{ID: 100, Type: "private"},
		Text: text,
	}
}

func groupMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, UserName: "alice"},
		Chat: &tgbotapi.Chat{ID: -200, Type: "group"},
		Text: text,
	}
}

func command(msg *tgbotapi.Message, length int) *tgbotapi.Message {
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	return msg
}

func TestPrivateMessageGetsTextReply(t *testing.T) {
	chat := &fakeChat{reply: core.Reply{Text: "hi there", Intent: core.IntentDefault}}
	b, s := newTestBot(chat)

	b.handleMessage(context.Background(), privateMessage("hello"))

	if len(chat.userIds) != 1 || chat.userIds[0] != "tg-42" || chat.asked[0] != "hello" {
		t.Fatalf("chat called with %v %v", chat.userIds, chat.asked)
	}
	if len(s.texts) != 1 || s.texts[0] != "hi there" {
		t.Fatalf("sent %v", s.texts)
	}
}

func TestImageReplyIsSentAsPhoto(t *testing.T) {
	url := "https://files.example.com/tg-42-1700000000000-acat.png"
	chat := &fakeChat{reply: core.Reply{Text: "<img ...>", ImageURL: url, Intent: core.IntentImage}}
	b, s := newTestBot(chat)

	b.handleMessage(context.Background(), privateMessage("imagine a cat"))

	if len(s.photos) != 1 || s.photos[0] != url {
		t.Fatalf("photos %v", s.photos)
	}
	if len(s.texts) != 0 {
		t.Errorf("unexpected texts %v", s.texts)
	}
}

func TestFailureSendsApology(t *testing.T) {
	chat := &fakeChat{err: errors.New("upstream down")}
	b, s := newTestBot(chat)

	b.handleMessage(context.Background(), privateMessage("hello"))

	if len(s.texts) != 1 || s.texts[0] != errorResponse {
		t.Fatalf("sent %v", s.texts)
	}
}

func TestGroupFiltering(t *testing.T) {
	reply := &tgbotapi.Message{From: &tgbotapi.User{UserName: "bridge_bot"}}
	replied := groupMessage("and what about dogs?")
	replied.ReplyToMessage = reply

	tests := []struct {
		name     string
		msg      *tgbotapi.Message
		wantAsk  string
		wantCall bool
	}{
		{name: "ignored", msg: groupMessage("hello everyone")},
		{name: "mention", msg: groupMessage("@bridge_bot what time is it"), wantAsk: "what time is it", wantCall: true},
		{name: "reply to bot", msg: replied, wantAsk: "and what about dogs?", wantCall: true},
		{name: "ask command", msg: command(groupMessage("/ask reason about life"), 4), wantAsk: "reason about life", wantCall: true},
		{name: "empty ask", msg: command(groupMessage("/ask"), 4)},
		{name: "unknown command", msg: command(groupMessage("/clear"), 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{reply: core.Reply{Text: "ok"}}
			b, _ := newTestBot(chat)

			b.handleMessage(context.Background(), tt.msg)

			if !tt.wantCall {
				if len(chat.asked) != 0 {
					t.Fatalf("chat called with %v", chat.asked)
				}
				return
			}
			if len(chat.asked) != 1 || chat.asked[0] != tt.wantAsk {
				t.Fatalf("chat asked %v, want %q", chat.asked, tt.wantAsk)
			}
		})
	}
}

func TestHelpCommand(t *testing.T) {
	chat := &fakeChat{}
	b, s := newTestBot(chat)

	b.handleMessage(context.Background(), command(privateMessage("/help"), 5))

	if len(chat.asked) != 0 {
		t.Errorf("chat called for /help")
	}
	if len(s.texts) != 1 || s.texts[0] != helpText {
		t.Fatalf("sent %v", s.texts)
	}
}
