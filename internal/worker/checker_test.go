package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-ledger/internal/ledger"
	"yield-ledger/internal/logger"
)

const day = 24 * time.Hour

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("chat unavailable")
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestLedger(t *testing.T) (*ledger.Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	e, err := ledger.New(ledger.Config{
		Logger: logger.NewTest(),
		Clock:  clock,
		Admin:  ledger.DefaultAdminConfig("0xowner", "0xtreasury"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Deposit(ctx, "0xa", decimal.NewFromInt(1000), ledger.ZeroAddress)
	require.NoError(t, err)
	_, err = e.Deposit(ctx, "0xb", decimal.NewFromInt(500), ledger.ZeroAddress)
	require.NoError(t, err)
	return e, clock
}

func TestWorker_Checker(t *testing.T) {
	t.Parallel()

	t.Run("warns once per deposit past the threshold", func(t *testing.T) {
		t.Parallel()
		e, clock := newTestLedger(t)
		n := &recordingNotifier{}
		c, err := NewChecker(CheckerConfig{Logger: logger.NewTest(), Clock: clock, Deposits: e, Notifier: n})
		require.NoError(t, err)
		ctx := context.Background()

		assert.Equal(t, 0, c.Check(ctx))

		// Diamond at 2.5% a day reaches 90% of its cap after 72 days.
		clock.Advance(72 * day)
		assert.Equal(t, 1, c.Check(ctx))
		assert.Equal(t, 0, c.Check(ctx))
		require.Equal(t, 1, n.count())
		assert.Contains(t, n.messages[0], "0xa #0")

		// Gold at 2% a day needs 90 days.
		clock.Advance(18 * day)
		assert.Equal(t, 1, c.Check(ctx))
		assert.Contains(t, n.messages[1], "0xb #0")
	})

	t.Run("retries after a failed send", func(t *testing.T) {
		t.Parallel()
		e, clock := newTestLedger(t)
		n := &recordingNotifier{fail: true}
		c, err := NewChecker(CheckerConfig{Logger: logger.NewTest(), Clock: clock, Deposits: e, Notifier: n})
		require.NoError(t, err)
		ctx := context.Background()

		clock.Advance(72 * day)
		assert.Equal(t, 0, c.Check(ctx))

		n.mu.Lock()
		n.fail = false
		n.mu.Unlock()
		assert.Equal(t, 1, c.Check(ctx))
	})

	t.Run("skips deposits that reached their cap and were claimed", func(t *testing.T) {
		t.Parallel()
		e, clock := newTestLedger(t)
		n := &recordingNotifier{}
		c, err := NewChecker(CheckerConfig{Logger: logger.NewTest(), Clock: clock, Deposits: e, Notifier: n})
		require.NoError(t, err)
		ctx := context.Background()

		clock.Advance(80 * day)
		_, err = e.ClaimRewards(ctx, "0xa")
		require.NoError(t, err)
		assert.Len(t, e.ActiveDeposits(), 1)
		assert.Equal(t, 0, c.Check(ctx))
	})

	t.Run("runs at start and stops with the context", func(t *testing.T) {
		t.Parallel()
		e, clock := newTestLedger(t)
		clock.Advance(72 * day)
		n := &recordingNotifier{}
		c, err := NewChecker(CheckerConfig{
			Logger:   logger.NewTest(),
			Clock:    clock,
			Deposits: e,
			Notifier: n,
			Interval: time.Hour,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
		assert.Equal(t, 1, n.count())

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("checker did not stop")
		}
	})
}

func TestWorker_CheckerConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := CheckerConfig{Logger: logger.NewTest()}
	require.EqualError(t, cfg.Validate(), "deposit source is required")

	cfg.Deposits = stubSource{}
	cfg.Notifier = &recordingNotifier{}
	cfg.WarnPercent = 150
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultWarnPercent, cfg.WarnPercent)
	assert.NotNil(t, cfg.Flags)
}

type stubSource struct{}

func (stubSource) ActiveDeposits() []ledger.DepositView { return nil }
