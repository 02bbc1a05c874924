package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Precision is the number of fractional digits kept for token amounts,
	// one atomic unit of an 18-decimal token.
	Precision = 18

	secondsPerDay = 24 * 60 * 60
)

var accrualDenominator = decimal.NewFromInt(rateDenominator * secondsPerDay)

// quo divides and truncates toward zero at Precision digits.
func quo(x, y decimal.Decimal) decimal.Decimal {
	q, _ := x.QuoRem(y, Precision)
	return q
}

func truncate(x decimal.Decimal) decimal.Decimal {
	return x.Truncate(Precision)
}

// Accrue returns the rewards claimable on d at now: everything earned since
// the start at the frozen daily rate, minus what was already claimed, limited
// to the 200% cap. Accrual is continuous with one-second resolution.
func Accrue(d Deposit, now time.Time) decimal.Decimal {
	if !d.Active {
		return decimal.Zero
	}
	elapsed := int64(now.Sub(d.StartTime) / time.Second)
	if elapsed <= 0 {
		return decimal.Zero
	}

	earned := quo(d.Amount.Mul(decimal.NewFromInt(d.DailyRateBps)).Mul(decimal.NewFromInt(elapsed)), accrualDenominator)
	unclaimed := earned.Sub(d.TotalClaimed)
	if unclaimed.IsNegative() {
		return decimal.Zero
	}
	remaining := d.MaxReturn().Sub(d.TotalClaimed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(unclaimed, remaining)
}

// ProgressToCap is (claimed + available) as a percentage of the cap, at most 100.
func ProgressToCap(amount, totalClaimed, available decimal.Decimal) decimal.Decimal {
	maxReturn := amount.Mul(capMultiplier)
	if !maxReturn.IsPositive() {
		return decimal.Zero
	}
	pct := totalClaimed.Add(available).Mul(hundred).DivRound(maxReturn, 2)
	return decimal.Min(pct, hundred)
}
