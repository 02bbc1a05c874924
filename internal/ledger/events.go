package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventDeposited         EventType = "Deposited"
	EventReferralPaid      EventType = "ReferralPaid"
	EventRewardsClaimed    EventType = "RewardsClaimed"
	EventReferralWithdrawn EventType = "ReferralWithdrawn"
	EventTreasuryUpdated   EventType = "TreasuryUpdated"
	EventPausedChanged     EventType = "PausedChanged"
	EventDailyRateUpdated  EventType = "DailyRateUpdated"
)

// Event is the record of one observable effect of a committed operation.
//
// Account is the actor: the depositor, the claimer, the credited referrer or
// the owner for admin events. Counterparty is the deposit's referrer for
// Deposited, the depositor for ReferralPaid and the new treasury for
// TreasuryUpdated.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Type         EventType       `json:"type"`
	Account      Address         `json:"account"`
	Counterparty Address         `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Tier         int             `json:"tier,omitempty"`
	Level        int             `json:"level,omitempty"`
	DepositIndex int             `json:"deposit_index,omitempty"`
	RateBps      int64           `json:"rate_bps,omitempty"`
	Paused       bool            `json:"paused,omitempty"`
	Time         time.Time       `json:"time"`
}

// Publisher receives events after their operation has been committed.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }
