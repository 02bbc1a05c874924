package store

import (
	"context"

	"yield-ledger/internal/ledger"
)

// Store persists committed ledger operations and rebuilds the ledger state
// at startup.
type Store interface {
	ledger.Committer
	Load(ctx context.Context) (ledger.State, error)
	// ReferralHistory returns the latest credits paid to referrer, newest
	// first.
	ReferralHistory(ctx context.Context, referrer ledger.Address, limit int) ([]ledger.ReferralCredit, error)
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
