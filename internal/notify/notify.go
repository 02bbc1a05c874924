// Package notify delivers operator notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"yield-ledger/internal/ledger"
)

// Notifier sends a short text message to the operators.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Log writes notifications to the logger. It is used when no Telegram bot is
// configured.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, text string) error {
	l.log.Info("notify: " + text)
	return nil
}

// AdminRelay is a ledger.Publisher that forwards admin events to a Notifier.
// Other events are ignored.
type AdminRelay struct {
	Notifier Notifier
}

func (r AdminRelay) Publish(ctx context.Context, events ...ledger.Event) error {
	for _, ev := range events {
		text, ok := AdminEventText(ev)
		if !ok {
			continue
		}
		if err := r.Notifier.Notify(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

// AdminEventText renders an admin event for operators.
func AdminEventText(ev ledger.Event) (string, bool) {
	switch ev.Type {
	case ledger.EventPausedChanged:
		if ev.Paused {
			return fmt.Sprintf("⏸ Deposits paused by %s", ev.Account), true
		}
		return fmt.Sprintf("▶️ Deposits resumed by %s", ev.Account), true
	case ledger.EventTreasuryUpdated:
		return fmt.Sprintf("🏦 Treasury changed to %s by %s", ev.Counterparty, ev.Account), true
	case ledger.EventDailyRateUpdated:
		return fmt.Sprintf("📈 Tier %d daily rate set to %d bps by %s", ev.Tier, ev.RateBps, ev.Account), true
	}
	return "", false
}

// CapWarningText renders the near-cap warning for one deposit.
func CapWarningText(d ledger.DepositView) string {
	return fmt.Sprintf("⚠️ Deposit %s #%d is at %s%% of its cap (%s of %s returned)",
		d.Account, d.Index, d.ProgressToCap.StringFixed(2),
		d.TotalClaimed.Add(d.AvailableRewards).StringFixed(2), d.MaxReturn().StringFixed(2))
}
