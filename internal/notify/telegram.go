package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram pushes reminders to a chat, the one transport that reaches the
// user away from this machine. It only joins the chain when a bot token
// and chat id are configured.
type Telegram struct {
	token  string
	chatID int64

	initOnce sync.Once
	bot      *tgbotapi.BotAPI
	initErr  error
}

// NewTelegram returns nil when the transport is not configured, which
// keeps it out of the chain entirely.
func NewTelegram(token string, chatID int64) *Telegram {
	if token == "" || chatID == 0 {
		return nil
	}
	return &Telegram{token: token, chatID: chatID}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Available() bool { return t.token != "" && t.chatID != 0 }

// init dials the Bot API lazily so an unreachable network at startup
// degrades to the next transport instead of failing chain construction.
func (t *Telegram) init() error {
	t.initOnce.Do(func() {
		t.bot, t.initErr = tgbotapi.NewBotAPI(t.token)
	})
	return t.initErr
}

func (t *Telegram) Send(_ context.Context, msg Message) error {
	if err := t.init(); err != nil {
		return fmt.Errorf("telegram init: %w", err)
	}
	text := msg.Title
	if msg.Subtitle != "" {
		text += "\n" + msg.Subtitle
	}
	if msg.Body != "" {
		text += "\n" + msg.Body
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
