package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID              uint            `gorm:"primaryKey"`
	Address         string          `gorm:"size:128;uniqueIndex;not null"`
	ReferrerID      *uint           `gorm:"index"`
	TotalInvested   decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	TotalWithdrawn  decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	ReferralBalance decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	Level1Referrals int64           `gorm:"not null"`
	Level2Referrals int64           `gorm:"not null"`
	Level3Referrals int64           `gorm:"not null"`
	Level4Referrals int64           `gorm:"not null"`
	Level5Referrals int64           `gorm:"not null"`
	DepositCount    int             `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Account) ReferralsByLevel() [5]int64 {
	return [5]int64{a.Level1Referrals, a.Level2Referrals, a.Level3Referrals, a.Level4Referrals, a.Level5Referrals}
}

func (a *Account) SetReferralsByLevel(levels [5]int64) {
	a.Level1Referrals = levels[0]
	a.Level2Referrals = levels[1]
	a.Level3Referrals = levels[2]
	a.Level4Referrals = levels[3]
	a.Level5Referrals = levels[4]
}

// Deposit rows are keyed by (account, index); only TotalClaimed and Active
// are ever updated.
type Deposit struct {
	ID           uint            `gorm:"primaryKey"`
	AccountID    uint            `gorm:"not null;uniqueIndex:idx_deposits_account_index"`
	Index        int             `gorm:"column:deposit_index;not null;uniqueIndex:idx_deposits_account_index"`
	Amount       decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	Tier         int             `gorm:"not null"`
	DailyRateBps int64           `gorm:"not null"`
	StartTime    time.Time       `gorm:"not null"`
	TotalClaimed decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	Active       bool            `gorm:"not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
