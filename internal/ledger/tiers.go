package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	MaxReferralDepth = 5

	// Daily rates are stored in hundredths of a percent: 250 is 2.5% per day.
	rateDenominator = 10_000
)

var (
	MinDeposit    = decimal.NewFromInt(5)
	MaxDeposit    = decimal.NewFromInt(3000)
	MinWithdrawal = decimal.NewFromInt(5)

	capMultiplier = decimal.NewFromInt(2)
	hundred       = decimal.NewFromInt(100)
)

type PackageTier struct {
	Name         string
	Min          decimal.Decimal
	Max          decimal.Decimal
	DailyRateBps int64
}

func (t PackageTier) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(t.Min) && amount.LessThanOrEqual(t.Max)
}

// DailyRatePercent returns the rate as a percentage, e.g. 2.5.
func (t PackageTier) DailyRatePercent() decimal.Decimal {
	return decimal.New(t.DailyRateBps, -2)
}

func DefaultTiers() []PackageTier {
	return []PackageTier{
		{Name: "Starter", Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(19), DailyRateBps: 100},
		{Name: "Bronze", Min: decimal.NewFromInt(20), Max: decimal.NewFromInt(49), DailyRateBps: 150},
		{Name: "Silver", Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(499), DailyRateBps: 180},
		{Name: "Gold", Min: decimal.NewFromInt(500), Max: decimal.NewFromInt(999), DailyRateBps: 200},
		{Name: "Diamond", Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(3000), DailyRateBps: 250},
	}
}

type ReferralLevel struct {
	Level   int
	Percent int64
}

var referralLevels = [MaxReferralDepth]ReferralLevel{
	{Level: 1, Percent: 15},
	{Level: 2, Percent: 6},
	{Level: 3, Percent: 4},
	{Level: 4, Percent: 3},
	{Level: 5, Percent: 2},
}

func ReferralLevels() [MaxReferralDepth]ReferralLevel {
	return referralLevels
}

// Commission returns the level's share of a gross deposit amount.
func (l ReferralLevel) Commission(amount decimal.Decimal) decimal.Decimal {
	return quo(amount.Mul(decimal.NewFromInt(l.Percent)), hundred)
}

// tierIndex scans low to high and returns the first tier containing amount.
func tierIndex(tiers []PackageTier, amount decimal.Decimal) (int, error) {
	if amount.LessThan(MinDeposit) || amount.GreaterThan(MaxDeposit) {
		return 0, fmt.Errorf("%w: %s outside [%s, %s]", ErrInvalidAmount, amount, MinDeposit, MaxDeposit)
	}
	for i, t := range tiers {
		if t.Contains(amount) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s does not fit any package", ErrInvalidAmount, amount)
}

// validateTiers checks that ranges are ordered, disjoint and positive-rated.
func validateTiers(tiers []PackageTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: empty tier table", ErrIntegrity)
	}
	for i, t := range tiers {
		if t.Min.GreaterThan(t.Max) {
			return fmt.Errorf("%w: tier %d has min above max", ErrIntegrity, i)
		}
		if t.DailyRateBps <= 0 {
			return fmt.Errorf("%w: tier %d", ErrInvalidRate, i)
		}
		if i > 0 && !t.Min.GreaterThan(tiers[i-1].Max) {
			return fmt.Errorf("%w: tier %d overlaps tier %d", ErrIntegrity, i, i-1)
		}
	}
	return nil
}
