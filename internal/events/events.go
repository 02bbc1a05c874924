// Package events fans committed ledger events out to subscribers and keeps a
// short history of the most recent ones.
package events

import (
	"context"
	"errors"

	"yield-ledger/internal/ledger"
)

// DefaultRecent is how many events are kept for Recent.
const DefaultRecent = 500

// Feed is a ledger.Publisher that can also replay the latest events.
type Feed interface {
	ledger.Publisher
	// Recent returns up to n events, newest first.
	Recent(ctx context.Context, n int) ([]ledger.Event, error)
}

// Fanout publishes to every publisher in order. All of them are tried; the
// errors are joined.
type Fanout []ledger.Publisher

func (f Fanout) Publish(ctx context.Context, events ...ledger.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
