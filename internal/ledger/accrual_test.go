package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func diamond(amount string) Deposit {
	return Deposit{
		Account:      "0xa",
		Amount:       dec(amount),
		Tier:         4,
		DailyRateBps: 250,
		StartTime:    testEpoch,
		TotalClaimed: decimal.Zero,
		Active:       true,
	}
}

func TestLedger_Accrue(t *testing.T) {
	t.Parallel()

	t.Run("pays the daily rate per elapsed day", func(t *testing.T) {
		t.Parallel()
		d := diamond("1000")
		assertDecimal(t, "25", Accrue(d, testEpoch.Add(day)))
		assertDecimal(t, "12.5", Accrue(d, testEpoch.Add(12*time.Hour)))
		assertDecimal(t, "0", Accrue(d, testEpoch))
	})

	t.Run("accrues per second", func(t *testing.T) {
		t.Parallel()
		d := diamond("864")
		// 864 * 2.5% / 86400 per second
		assertDecimal(t, "0.00025", Accrue(d, testEpoch.Add(time.Second)))
		assertDecimal(t, "0.00025", Accrue(d, testEpoch.Add(time.Second+999*time.Millisecond)))
	})

	t.Run("returns zero before the start", func(t *testing.T) {
		t.Parallel()
		assertDecimal(t, "0", Accrue(diamond("1000"), testEpoch.Add(-day)))
	})

	t.Run("subtracts prior claims", func(t *testing.T) {
		t.Parallel()
		d := diamond("1000")
		d.TotalClaimed = dec("20")
		assertDecimal(t, "5", Accrue(d, testEpoch.Add(day)))

		d.TotalClaimed = dec("30")
		assertDecimal(t, "0", Accrue(d, testEpoch.Add(day)))
	})

	t.Run("is limited by the cap", func(t *testing.T) {
		t.Parallel()
		d := diamond("1000")
		assertDecimal(t, "2000", Accrue(d, testEpoch.Add(80*day)))
		assertDecimal(t, "2000", Accrue(d, testEpoch.Add(100*day)))

		d.TotalClaimed = dec("1990")
		assertDecimal(t, "10", Accrue(d, testEpoch.Add(365*day)))
	})

	t.Run("returns zero once inactive", func(t *testing.T) {
		t.Parallel()
		d := diamond("1000")
		d.TotalClaimed = dec("2000")
		d.Active = false
		assertDecimal(t, "0", Accrue(d, testEpoch.Add(1000*day)))
	})

	t.Run("is monotonically non-decreasing while active", func(t *testing.T) {
		t.Parallel()
		d := diamond("1234.56")
		d.TotalClaimed = dec("100")
		prev := decimal.Zero
		for h := 0; h < 100*24; h += 7 {
			got := Accrue(d, testEpoch.Add(time.Duration(h)*time.Hour))
			assert.True(t, got.GreaterThanOrEqual(prev), "hour %d: %s < %s", h, got, prev)
			assert.True(t, got.LessThanOrEqual(d.MaxReturn().Sub(d.TotalClaimed)))
			prev = got
		}
	})
}

func TestLedger_ProgressToCap(t *testing.T) {
	t.Parallel()

	assertDecimal(t, "0", ProgressToCap(dec("1000"), decimal.Zero, decimal.Zero))
	assertDecimal(t, "50", ProgressToCap(dec("1000"), dec("500"), dec("500")))
	assertDecimal(t, "33.33", ProgressToCap(dec("300"), dec("200"), decimal.Zero))
	assertDecimal(t, "100", ProgressToCap(dec("1000"), dec("2000"), decimal.Zero))
	assertDecimal(t, "0", ProgressToCap(decimal.Zero, decimal.Zero, decimal.Zero))
}
