package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"yield-ledger/internal/ledger"
	"yield-ledger/internal/models"
)

type PostgresConfig struct {
	Logger *slog.Logger
	DB     *gorm.DB
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("gorm db is required")
	}
	return nil
}

type Postgres struct {
	log *slog.Logger
	db  *gorm.DB
}

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Postgres{log: cfg.Logger, db: cfg.DB}, nil
}

// Commit writes one change set in a single transaction. Touched account rows
// are locked in address order.
func (s *Postgres) Commit(ctx context.Context, cs ledger.ChangeSet) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cs.Admin != nil {
			if err := saveAdmin(tx, *cs.Admin); err != nil {
				return err
			}
		}

		ids := make(map[ledger.Address]uint, len(cs.Accounts))
		accounts := slices.Clone(cs.Accounts)
		slices.SortFunc(accounts, func(a, b ledger.AccountInfo) int { return cmp.Compare(a.Address, b.Address) })
		for _, a := range accounts {
			if err := saveAccount(tx, a, ids); err != nil {
				return err
			}
		}

		for _, d := range cs.Deposits {
			if err := saveDeposit(tx, d, ids); err != nil {
				return err
			}
		}

		if len(cs.Credits) > 0 {
			rows := make([]models.ReferralTransaction, 0, len(cs.Credits))
			for _, c := range cs.Credits {
				referrerID, err := accountID(tx, c.Referrer, ids)
				if err != nil {
					return err
				}
				invitedID, err := accountID(tx, c.From, ids)
				if err != nil {
					return err
				}
				rows = append(rows, models.ReferralTransaction{
					ReferrerID:       referrerID,
					InvitedAccountID: invitedID,
					Level:            c.Level,
					Amount:           c.Amount,
					CreatedAt:        c.Time,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert referral transactions: %w", err)
			}
		}

		if len(cs.Events) > 0 {
			rows := make([]models.LedgerEvent, 0, len(cs.Events))
			for _, ev := range cs.Events {
				payload, err := json.Marshal(ev)
				if err != nil {
					return fmt.Errorf("failed to marshal event: %w", err)
				}
				rows = append(rows, models.LedgerEvent{
					ID:           ev.ID,
					Type:         string(ev.Type),
					Account:      ev.Account.String(),
					Counterparty: ev.Counterparty.String(),
					Amount:       ev.Amount,
					Payload:      payload,
					CreatedAt:    ev.Time,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert ledger events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return convertErr(err)
	}

	s.log.Debug("store: change set committed", "op", cs.Op, "accounts", len(cs.Accounts),
		"deposits", len(cs.Deposits), "events", len(cs.Events), "duration", time.Since(start))
	return nil
}

func saveAdmin(tx *gorm.DB, admin ledger.AdminConfig) error {
	setting := models.AdminSetting{
		ID:       models.AdminSettingID,
		Owner:    admin.Owner.String(),
		Treasury: admin.Treasury.String(),
		Paused:   admin.Paused,
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&setting).Error; err != nil {
		return fmt.Errorf("failed to save admin settings: %w", err)
	}

	tiers := make([]models.PackageTier, len(admin.Tiers))
	for i, t := range admin.Tiers {
		tiers[i] = models.PackageTier{
			Index:        i,
			Name:         t.Name,
			MinAmount:    t.Min,
			MaxAmount:    t.Max,
			DailyRateBps: t.DailyRateBps,
		}
	}
	if len(tiers) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tier_index"}},
		UpdateAll: true,
	}).Create(&tiers).Error; err != nil {
		return fmt.Errorf("failed to save package tiers: %w", err)
	}
	return nil
}

func saveAccount(tx *gorm.DB, a ledger.AccountInfo, ids map[ledger.Address]uint) error {
	var row models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("address = ?", a.Address.String()).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.Account{Address: a.Address.String()}
	case err != nil:
		return fmt.Errorf("failed to lock account %s: %w", a.Address, err)
	}

	if !a.Referrer.IsZero() && row.ReferrerID == nil {
		referrerID, err := accountID(tx, a.Referrer, ids)
		if err != nil {
			return err
		}
		row.ReferrerID = &referrerID
	}
	row.TotalInvested = a.TotalInvested
	row.TotalWithdrawn = a.TotalWithdrawn
	row.ReferralBalance = a.ReferralBalance
	row.SetReferralsByLevel(a.ReferralsByLevel)
	row.DepositCount = a.DepositCount

	if err := tx.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save account %s: %w", a.Address, err)
	}
	ids[a.Address] = row.ID
	return nil
}

func saveDeposit(tx *gorm.DB, d ledger.Deposit, ids map[ledger.Address]uint) error {
	id, err := accountID(tx, d.Account, ids)
	if err != nil {
		return err
	}
	row := models.Deposit{
		AccountID:    id,
		Index:        d.Index,
		Amount:       d.Amount,
		Tier:         d.Tier,
		DailyRateBps: d.DailyRateBps,
		StartTime:    d.StartTime,
		TotalClaimed: d.TotalClaimed,
		Active:       d.Active,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "deposit_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_claimed", "active", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save deposit %s/%d: %w", d.Account, d.Index, err)
	}
	return nil
}

func accountID(tx *gorm.DB, addr ledger.Address, ids map[ledger.Address]uint) (uint, error) {
	if id, ok := ids[addr]; ok {
		return id, nil
	}
	var row models.Account
	if err := tx.Select("id").Where("address = ?", addr.String()).Take(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to resolve account %s: %w", addr, err)
	}
	ids[addr] = row.ID
	return row.ID, nil
}

// Load reads the full ledger state. The admin part is left empty when no
// settings were ever committed.
func (s *Postgres) Load(ctx context.Context) (ledger.State, error) {
	db := s.db.WithContext(ctx)
	var st ledger.State

	var setting models.AdminSetting
	err := db.Take(&setting, models.AdminSettingID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return ledger.State{}, fmt.Errorf("failed to load admin settings: %w", convertErr(err))
	default:
		var tiers []models.PackageTier
		if err := db.Order("tier_index").Find(&tiers).Error; err != nil {
			return ledger.State{}, fmt.Errorf("failed to load package tiers: %w", convertErr(err))
		}
		st.Admin = ledger.AdminConfig{
			Owner:    ledger.Address(setting.Owner),
			Treasury: ledger.Address(setting.Treasury),
			Paused:   setting.Paused,
		}
		for _, t := range tiers {
			st.Admin.Tiers = append(st.Admin.Tiers, ledger.PackageTier{
				Name:         t.Name,
				Min:          t.MinAmount,
				Max:          t.MaxAmount,
				DailyRateBps: t.DailyRateBps,
			})
		}
	}

	var accounts []models.Account
	if err := db.Order("id").Find(&accounts).Error; err != nil {
		return ledger.State{}, fmt.Errorf("failed to load accounts: %w", convertErr(err))
	}
	addrs := make(map[uint]ledger.Address, len(accounts))
	for _, a := range accounts {
		addrs[a.ID] = ledger.Address(a.Address)
	}
	for _, a := range accounts {
		info := ledger.AccountInfo{
			Address:          ledger.Address(a.Address),
			TotalInvested:    a.TotalInvested,
			TotalWithdrawn:   a.TotalWithdrawn,
			ReferralBalance:  a.ReferralBalance,
			ReferralsByLevel: a.ReferralsByLevel(),
			DepositCount:     a.DepositCount,
		}
		if a.ReferrerID != nil {
			info.Referrer = addrs[*a.ReferrerID]
		}
		st.Accounts = append(st.Accounts, info)
	}

	var deposits []models.Deposit
	if err := db.Order("account_id, deposit_index").Find(&deposits).Error; err != nil {
		return ledger.State{}, fmt.Errorf("failed to load deposits: %w", convertErr(err))
	}
	for _, d := range deposits {
		st.Deposits = append(st.Deposits, ledger.Deposit{
			Account:      addrs[d.AccountID],
			Index:        d.Index,
			Amount:       d.Amount,
			Tier:         d.Tier,
			DailyRateBps: d.DailyRateBps,
			StartTime:    d.StartTime.UTC(),
			TotalClaimed: d.TotalClaimed,
			Active:       d.Active,
		})
	}

	s.log.Info("store: state loaded", "accounts", len(st.Accounts), "deposits", len(st.Deposits))
	return st, nil
}

// ReferralHistory returns the commissions credited to referrer, newest first.
func (s *Postgres) ReferralHistory(ctx context.Context, referrer ledger.Address, limit int) ([]ledger.ReferralCredit, error) {
	var rows []struct {
		Invited string
		models.ReferralTransaction
	}
	err := s.db.WithContext(ctx).
		Table("referral_transactions").
		Select("referral_transactions.*, invited.address AS invited").
		Joins("JOIN accounts referrer ON referrer.id = referral_transactions.referrer_id").
		Joins("JOIN accounts invited ON invited.id = referral_transactions.invited_account_id").
		Where("referrer.address = ?", referrer.String()).
		Order("referral_transactions.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load referral history: %w", convertErr(err))
	}
	out := make([]ledger.ReferralCredit, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.ReferralCredit{
			Referrer: referrer,
			From:     ledger.Address(r.Invited),
			Level:    r.Level,
			Amount:   r.Amount,
			Time:     r.CreatedAt,
		})
	}
	return out, nil
}
