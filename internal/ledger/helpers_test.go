package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-ledger/internal/logger"
)

const (
	testOwner    Address = "0xowner"
	testTreasury Address = "0xtreasury"
)

var testEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func newTestEngine(t *testing.T, opts ...func(*Config)) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	cfg := Config{
		Logger: logger.NewTest(),
		Clock:  clock,
		Admin:  DefaultAdminConfig(testOwner, testTreasury),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e, clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "expected %s, got %s %v", want, got, msgAndArgs)
}

func mustDeposit(t *testing.T, e *Engine, account Address, amount string, referrer Address) DepositID {
	t.Helper()
	id, err := e.Deposit(context.Background(), account, dec(amount), referrer)
	require.NoError(t, err)
	return id
}

type failingCommitter struct {
	mu   sync.Mutex
	fail bool
	seen []ChangeSet
}

func (c *failingCommitter) Commit(_ context.Context, cs ChangeSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection reset")
	}
	c.seen = append(c.seen, cs)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturePublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newTestLogger() *slog.Logger {
	return logger.NewTest()
}
