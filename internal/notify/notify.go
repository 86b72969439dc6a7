// Package notify delivers scan alerts to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by Noop and when credentials are missing.
var ErrNotConfigured = errors.New("telegram not configured")

// TestMessage is sent by the alert-test command.
const TestMessage = "<b>TEST SUCCESS</b>"

// Notifier delivers one preformatted HTML message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Noop stands in when no bot is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return ErrNotConfigured }

type TelegramConfig struct {
	Token    string
	ChatID   int64
	Endpoint string // Bot API endpoint format; defaults to tgbotapi.APIEndpoint
	Timeout  time.Duration
}

// Telegram sends HTML messages with link previews disabled. Sends are
// throttled to stay under the Bot API's per-chat limit.
type Telegram struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewTelegram authorizes the bot. It contacts the Bot API once (getMe).
func NewTelegram(cfg TelegramConfig, log zerolog.Logger) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, ErrNotConfigured
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("authorizing telegram bot: %w", err)
	}
	log.Debug().Str("bot", api.Self.UserName).Msg("telegram bot authorized")

	return &Telegram{
		api:     api,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		log:     log,
	}, nil
}

// New returns a Telegram notifier, or Noop when credentials are absent.
func New(cfg TelegramConfig, log zerolog.Logger) (Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return Noop{}, nil
	}
	return NewTelegram(cfg, log)
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	start := time.Now()
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	t.log.Debug().Dur("took", time.Since(start)).Int("length", len(text)).Msg("alert sent")
	return nil
}
