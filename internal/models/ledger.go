package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminSettingID is the primary key of the single admin_settings row.
const AdminSettingID = 1

type AdminSetting struct {
	ID        uint   `gorm:"primaryKey"`
	Owner     string `gorm:"size:128;not null"`
	Treasury  string `gorm:"size:128;not null"`
	Paused    bool   `gorm:"not null"`
	UpdatedAt time.Time
}

type PackageTier struct {
	Index        int             `gorm:"column:tier_index;primaryKey;autoIncrement:false"`
	Name         string          `gorm:"size:32;not null"`
	MinAmount    decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	MaxAmount    decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	DailyRateBps int64           `gorm:"not null"`
	UpdatedAt    time.Time
}

// LedgerEvent is the append-only audit trail of committed operations.
type LedgerEvent struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Type         string          `gorm:"size:32;not null;index"`
	Account      string          `gorm:"size:128;not null;index"`
	Counterparty string          `gorm:"size:128"`
	Amount       decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	Payload      []byte          `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"not null;index"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Account{},
		&Deposit{},
		&ReferralTransaction{},
		&AdminSetting{},
		&PackageTier{},
		&LedgerEvent{},
	}
}
