package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

type TelegramConfig struct {
	Logger *slog.Logger
	Bot    *telego.Bot
	ChatID int64
}

func (cfg *TelegramConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Bot == nil {
		return errors.New("bot is required")
	}
	if cfg.ChatID == 0 {
		return errors.New("chat id is required")
	}
	return nil
}

// Telegram sends notifications to the admin chat.
type Telegram struct {
	log *slog.Logger
	cfg TelegramConfig
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Telegram{log: cfg.Logger, cfg: cfg}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	if _, err := t.cfg.Bot.SendMessage(ctx, tu.Message(tu.ID(t.cfg.ChatID), text)); err != nil {
		t.log.Warn("notify: failed to send telegram message", "chat_id", t.cfg.ChatID, "error", err)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
