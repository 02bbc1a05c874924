package ledger

import (
	"context"
	"fmt"
)

// AdminConfig is the owner-controlled part of the ledger state.
type AdminConfig struct {
	Owner    Address
	Treasury Address
	Paused   bool
	Tiers    []PackageTier
}

func DefaultAdminConfig(owner, treasury Address) AdminConfig {
	return AdminConfig{
		Owner:    owner,
		Treasury: treasury,
		Tiers:    DefaultTiers(),
	}
}

func (c AdminConfig) clone() AdminConfig {
	c.Tiers = append([]PackageTier(nil), c.Tiers...)
	return c
}

func (e *Engine) authorize(caller Address) error {
	if caller.IsZero() || caller != e.admin.Owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// SetPaused toggles the deposit gate. Claims and referral withdrawals are not
// affected.
func (e *Engine) SetPaused(ctx context.Context, caller Address, paused bool) (err error) {
	done := e.begin(OpSetPaused)
	defer func() { done(err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(caller); err != nil {
		return err
	}

	var j journal
	prev := e.admin.Paused
	e.admin.Paused = paused
	j.record(func() { e.admin.Paused = prev })

	return e.commit(ctx, &j, e.adminChangeSet(OpSetPaused, Event{
		Type:    EventPausedChanged,
		Account: caller,
		Paused:  paused,
	}))
}

func (e *Engine) SetTreasury(ctx context.Context, caller Address, treasury Address) (err error) {
	done := e.begin(OpSetTreasury)
	defer func() { done(err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(caller); err != nil {
		return err
	}
	if treasury.IsZero() {
		return fmt.Errorf("%w: treasury", ErrInvalidAddress)
	}

	var j journal
	prev := e.admin.Treasury
	e.admin.Treasury = treasury
	j.record(func() { e.admin.Treasury = prev })

	return e.commit(ctx, &j, e.adminChangeSet(OpSetTreasury, Event{
		Type:         EventTreasuryUpdated,
		Account:      caller,
		Counterparty: treasury,
	}))
}

// SetDailyRate changes the rate of one tier for deposits created afterwards.
// Existing deposits keep the rate they were opened with.
func (e *Engine) SetDailyRate(ctx context.Context, caller Address, tier int, rateBps int64) (err error) {
	done := e.begin(OpSetDailyRate)
	defer func() { done(err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(caller); err != nil {
		return err
	}
	if tier < 0 || tier >= len(e.admin.Tiers) {
		return fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	if rateBps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRate, rateBps)
	}

	var j journal
	prev := e.admin.Tiers[tier].DailyRateBps
	e.admin.Tiers[tier].DailyRateBps = rateBps
	j.record(func() { e.admin.Tiers[tier].DailyRateBps = prev })

	return e.commit(ctx, &j, e.adminChangeSet(OpSetDailyRate, Event{
		Type:    EventDailyRateUpdated,
		Account: caller,
		Tier:    tier,
		RateBps: rateBps,
	}))
}

func (e *Engine) adminChangeSet(op string, ev Event) ChangeSet {
	admin := e.admin.clone()
	return ChangeSet{
		Op:     op,
		Admin:  &admin,
		Events: []Event{e.stamp(ev)},
	}
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admin.Paused
}

func (e *Engine) Owner() Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admin.Owner
}

func (e *Engine) Treasury() Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admin.Treasury
}

// DailyRate returns the rate, in hundredths of a percent, new deposits in tier
// would receive.
func (e *Engine) DailyRate(tier int) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tier < 0 || tier >= len(e.admin.Tiers) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	return e.admin.Tiers[tier].DailyRateBps, nil
}

func (e *Engine) Tiers() []PackageTier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PackageTier(nil), e.admin.Tiers...)
}
