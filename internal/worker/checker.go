package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"yield-ledger/internal/cache"
	"yield-ledger/internal/ledger"
	"yield-ledger/internal/metrics"
	"yield-ledger/internal/notify"
)

const (
	DefaultInterval    = time.Hour
	DefaultWarnPercent = 90
	notifiedTTL        = 30 * 24 * time.Hour
)

// DepositSource is the read side of the ledger the watcher needs.
type DepositSource interface {
	ActiveDeposits() []ledger.DepositView
}

type CheckerConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Deposits DepositSource
	Notifier notify.Notifier
	Flags    cache.Flags
	Interval time.Duration
	// WarnPercent is the progress to cap at which a deposit is reported once.
	WarnPercent int
}

func (cfg *CheckerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Deposits == nil {
		return errors.New("deposit source is required")
	}
	if cfg.Notifier == nil {
		return errors.New("notifier is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Flags == nil {
		cfg.Flags = cache.NewMemory(cfg.Clock)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.WarnPercent <= 0 || cfg.WarnPercent > 100 {
		cfg.WarnPercent = DefaultWarnPercent
	}
	return nil
}

// Checker periodically scans active deposits, refreshes the deposit gauges
// and warns operators about deposits close to their cap.
type Checker struct {
	log       *slog.Logger
	cfg       CheckerConfig
	threshold decimal.Decimal
}

func NewChecker(cfg CheckerConfig) (*Checker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Checker{
		log:       cfg.Logger,
		cfg:       cfg,
		threshold: decimal.NewFromInt(int64(cfg.WarnPercent)),
	}, nil
}

// Run checks once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) error {
	c.log.Info("worker: cap watcher started", "interval", c.cfg.Interval, "warn_percent", c.cfg.WarnPercent)

	c.safeCheck(ctx)

	ticker := c.cfg.Clock.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("worker: cap watcher stopped")
			return nil
		case <-ticker.Chan():
			c.safeCheck(ctx)
		}
	}
}

func (c *Checker) safeCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("worker: cap check panicked", "panic", r)
		}
	}()
	c.Check(ctx)
}

// Check runs one scan and returns how many warnings were sent.
func (c *Checker) Check(ctx context.Context) int {
	start := c.cfg.Clock.Now()
	deposits := c.cfg.Deposits.ActiveDeposits()

	locked := decimal.Zero
	for _, d := range deposits {
		locked = locked.Add(d.Amount)
	}
	metrics.ActiveDeposits.Set(float64(len(deposits)))
	metrics.TotalValueLocked.Set(locked.InexactFloat64())

	sent := 0
	for _, d := range deposits {
		if d.ProgressToCap.LessThan(c.threshold) {
			continue
		}
		ok, err := c.warn(ctx, d)
		if err != nil {
			c.log.Warn("worker: failed to send cap warning", "account", d.Account, "index", d.Index, "error", err)
			metrics.CapNotificationsTotal.WithLabelValues("error").Inc()
			continue
		}
		if ok {
			sent++
			metrics.CapNotificationsTotal.WithLabelValues("sent").Inc()
		}
	}

	c.log.Debug("worker: cap check finished", "active", len(deposits), "warnings", sent,
		"duration", c.cfg.Clock.Since(start))
	return sent
}

// warn notifies about d unless that was already done. The marker is written
// only after a successful send so a failed send is retried on the next tick.
func (c *Checker) warn(ctx context.Context, d ledger.DepositView) (bool, error) {
	key := fmt.Sprintf("cap_notified_%s_%d", d.Account, d.Index)
	seen, err := c.cfg.Flags.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}
	if err := c.cfg.Notifier.Notify(ctx, notify.CapWarningText(d)); err != nil {
		return false, err
	}
	if err := c.cfg.Flags.Set(ctx, key, notifiedTTL); err != nil {
		c.log.Warn("worker: failed to store notification marker", "key", key, "error", err)
	}
	c.log.Info("worker: cap warning sent", "account", d.Account, "index", d.Index, "progress", d.ProgressToCap.String())
	return true, nil
}
