package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralTransaction is one commission credit produced by a deposit.
type ReferralTransaction struct {
	ID               uint            `gorm:"primaryKey"`
	ReferrerID       uint            `gorm:"not null;index"`
	InvitedAccountID uint            `gorm:"not null;index"`
	Level            int             `gorm:"not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	CreatedAt        time.Time
}
