// Package notify delivers operator-facing notices over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ErrNotificationChannel wraps every failure to deliver an operator notice.
var ErrNotificationChannel = errors.New("notification channel failed")

// Notifier sends a Markdown message to a tenant's Telegram chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	Token   string
	APIURL  string        // default https://api.telegram.org
	Timeout time.Duration // default 10s
}

// Telegram sends through the Bot API without polling for updates.
type Telegram struct {
	bot *tele.Bot
}

func NewTelegram(cfg Config) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: telegram token is empty", ErrNotificationChannel)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotificationChannel, err)
	}
	return &Telegram{bot: b}, nil
}

func (t *Telegram) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationChannel, err)
	}
	if _, err := t.bot.Send(&tele.Chat{ID: chatID}, text, tele.ModeMarkdown); err != nil {
		return fmt.Errorf("%w: chat %d: %w", ErrNotificationChannel, chatID, err)
	}
	return nil
}

// Disabled stands in when no bot token is configured.
type Disabled struct{}

func (Disabled) Notify(context.Context, int64, string) error {
	return fmt.Errorf("%w: telegram is not configured", ErrNotificationChannel)
}
