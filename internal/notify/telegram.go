package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"kite-strangle-bot/internal/api"
	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"

	"github.com/tidwall/gjson"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// telegramMaxText is the Bot API limit for a single message.
const telegramMaxText = 4096

type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
}

// Telegram posts status text to one chat through the Bot API.
type Telegram struct {
	cfg    TelegramConfig
	client *api.Client
	retry  *api.RetryConfig
}

var _ interfaces.Notifier = (*Telegram)(nil)

// New returns a Telegram notifier, or a no-op notifier when the bot token
// or chat id is missing.
func New(cfg TelegramConfig) interfaces.Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return Noop{}
	}
	return NewTelegram(cfg)
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{
		cfg: cfg,
		client: api.NewClient(
			api.WithBaseURL(cfg.BaseURL),
			api.WithTimeout(cfg.Timeout),
			// request URLs carry the bot token
			api.WithLogging(false),
		),
		retry: &api.RetryConfig{MaxAttempts: 3, InitialWait: 500 * time.Millisecond, MaxWait: 2 * time.Second},
	}
}

func (t *Telegram) SendText(ctx context.Context, text string) error {
	text = truncateText(text, telegramMaxText)

	req := api.NewRequest(http.MethodPost, "/bot"+t.cfg.BotToken+"/sendMessage").
		WithContext(ctx).
		WithBody(map[string]any{
			"chat_id":                  t.cfg.ChatID,
			"text":                     text,
			"disable_web_page_preview": true,
		})

	resp, err := t.client.DoWithRetry(req, t.retry)
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			if desc := gjson.Get(statusErr.Body, "description").String(); desc != "" {
				return fmt.Errorf("telegram sendMessage: %s: %w", desc, err)
			}
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			// drop the URL, it embeds the bot token
			return fmt.Errorf("telegram sendMessage: %s: %w", urlErr.Op, urlErr.Err)
		}
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if !gjson.GetBytes(resp.Body, "ok").Bool() {
		return fmt.Errorf("telegram sendMessage: %s", gjson.GetBytes(resp.Body, "description").String())
	}

	logger.Debug(ctx, "Telegram message sent", "chat_id", t.cfg.ChatID, "length", len(text))
	return nil
}

// Noop drops every message.
type Noop struct{}

func (Noop) SendText(context.Context, string) error { return nil }

// truncateText caps text at limit characters without splitting a UTF-8 sequence.
func truncateText(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}
