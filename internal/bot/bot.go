// Package bot is the operator console on Telegram. It only answers the
// configured admin chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/shopspring/decimal"

	"yield-ledger/internal/ledger"
)

// Console is the part of the ledger the operators can see and steer.
type Console interface {
	Paused() bool
	Owner() ledger.Address
	Treasury() ledger.Address
	Tiers() []ledger.PackageTier
	ActiveDeposits() []ledger.DepositView
	UserInfo(account ledger.Address) ledger.AccountInfo
	AvailableRewards(account ledger.Address) decimal.Decimal
	Deposits(account ledger.Address) []ledger.DepositView
	SetPaused(ctx context.Context, caller ledger.Address, paused bool) error
}

type Config struct {
	Logger *slog.Logger
	Bot    *telego.Bot
	Ledger Console
	// AdminChatID is the chat the console answers in. Messages and button
	// presses from any other chat are ignored.
	AdminChatID int64
	// Operator is the ledger address admin actions are made as.
	Operator ledger.Address
	// WarnPercent marks deposits listed by the near-cap view.
	WarnPercent int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Bot == nil {
		return errors.New("bot is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.AdminChatID == 0 {
		return errors.New("admin chat id is required")
	}
	if cfg.Operator.IsZero() {
		return errors.New("operator address is required")
	}
	if cfg.WarnPercent <= 0 || cfg.WarnPercent > 100 {
		cfg.WarnPercent = 90
	}
	return nil
}

type Bot struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bot{log: cfg.Logger, cfg: cfg}, nil
}

func menuKeyboard(paused bool) *telego.InlineKeyboardMarkup {
	toggle := tu.InlineKeyboardButton("⏸ Pause deposits").WithCallbackData("pause")
	if paused {
		toggle = tu.InlineKeyboardButton("▶️ Resume deposits").WithCallbackData("resume")
	}
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📊 Status").WithCallbackData("status"),
			tu.InlineKeyboardButton("⚠️ Near cap").WithCallbackData("near_cap"),
		),
		tu.InlineKeyboardRow(toggle),
	)
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.cfg.Bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}
	handler, err := th.NewBotHandler(b.cfg.Bot, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	handler.Handle(b.onlyAdminMessage(func(ctx *th.Context, message *telego.Message) {
		b.reply(ctx, b.StatusText(), menuKeyboard(b.cfg.Ledger.Paused()))
	}), th.CommandEqual("start"))

	handler.Handle(b.onlyAdminMessage(func(ctx *th.Context, message *telego.Message) {
		b.reply(ctx, b.StatusText(), menuKeyboard(b.cfg.Ledger.Paused()))
	}), th.CommandEqual("status"))

	handler.Handle(b.onlyAdminMessage(func(ctx *th.Context, message *telego.Message) {
		parts := strings.Fields(message.Text)
		if len(parts) < 2 {
			b.reply(ctx, "Usage: /account <address>", nil)
			return
		}
		b.reply(ctx, b.AccountText(ledger.NormalizeAddress(parts[1])), nil)
	}), th.CommandEqual("account"))

	handler.Handle(b.onlyAdminMessage(func(ctx *th.Context, message *telego.Message) {
		b.reply(ctx, b.setPaused(ctx.Context(), true), menuKeyboard(b.cfg.Ledger.Paused()))
	}), th.CommandEqual("pause"))

	handler.Handle(b.onlyAdminMessage(func(ctx *th.Context, message *telego.Message) {
		b.reply(ctx, b.setPaused(ctx.Context(), false), menuKeyboard(b.cfg.Ledger.Paused()))
	}), th.CommandEqual("resume"))

	handler.Handle(b.onlyAdminCallback(func(ctx *th.Context) string {
		return b.StatusText()
	}), th.CallbackDataEqual("status"))

	handler.Handle(b.onlyAdminCallback(func(ctx *th.Context) string {
		return b.NearCapText()
	}), th.CallbackDataEqual("near_cap"))

	handler.Handle(b.onlyAdminCallback(func(ctx *th.Context) string {
		return b.setPaused(ctx.Context(), true)
	}), th.CallbackDataEqual("pause"))

	handler.Handle(b.onlyAdminCallback(func(ctx *th.Context) string {
		return b.setPaused(ctx.Context(), false)
	}), th.CallbackDataEqual("resume"))

	go func() {
		<-ctx.Done()
		handler.Stop()
	}()

	b.log.Info("bot: operator console started", "admin_chat_id", b.cfg.AdminChatID)
	handler.Start()
	b.log.Info("bot: operator console stopped")
	return nil
}

func (b *Bot) onlyAdminMessage(fn func(ctx *th.Context, message *telego.Message)) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if message == nil || message.Chat.ID != b.cfg.AdminChatID {
			if message != nil {
				b.log.Warn("bot: ignoring message from unknown chat", "chat_id", message.Chat.ID)
			}
			return nil
		}
		fn(ctx, message)
		return nil
	}
}

func (b *Bot) onlyAdminCallback(fn func(ctx *th.Context) string) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		defer func() {
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		}()
		if !b.fromAdminChat(callback) {
			b.log.Warn("bot: ignoring callback from unknown chat", "user_id", callback.From.ID)
			return nil
		}
		text := fn(ctx)
		_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(b.cfg.AdminChatID), text).
			WithReplyMarkup(menuKeyboard(b.cfg.Ledger.Paused())))
		if err != nil {
			b.log.Warn("bot: failed to send reply", "error", err)
		}
		return nil
	}
}

// fromAdminChat reports whether the button pressed belongs to a message in
// the admin chat.
func (b *Bot) fromAdminChat(callback *telego.CallbackQuery) bool {
	if callback == nil || callback.Message == nil {
		return false
	}
	return callback.Message.GetChat().ID == b.cfg.AdminChatID
}

func (b *Bot) reply(ctx *th.Context, text string, keyboard *telego.InlineKeyboardMarkup) {
	msg := tu.Message(tu.ID(b.cfg.AdminChatID), text)
	if keyboard != nil {
		msg = msg.WithReplyMarkup(keyboard)
	}
	if _, err := ctx.Bot().SendMessage(ctx.Context(), msg); err != nil {
		b.log.Warn("bot: failed to send reply", "error", err)
	}
}

func (b *Bot) setPaused(ctx context.Context, paused bool) string {
	if err := b.cfg.Ledger.SetPaused(ctx, b.cfg.Operator, paused); err != nil {
		b.log.Error("bot: failed to change paused flag", "paused", paused, "error", err)
		return "❌ " + err.Error()
	}
	if paused {
		return "⏸ Deposits paused."
	}
	return "▶️ Deposits resumed."
}
