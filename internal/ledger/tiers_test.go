package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Tiers_Lookup(t *testing.T) {
	t.Parallel()

	tiers := DefaultTiers()
	tests := []struct {
		amount string
		want   int
	}{
		{"5", 0},
		{"19", 0},
		{"20", 1},
		{"49", 1},
		{"50", 2},
		{"499", 2},
		{"500", 3},
		{"999", 3},
		{"1000", 4},
		{"3000", 4},
	}
	for _, tt := range tests {
		got, err := tierIndex(tiers, dec(tt.amount))
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got, tt.amount)
	}
}

func TestLedger_Tiers_LookupRejects(t *testing.T) {
	t.Parallel()

	tiers := DefaultTiers()
	for _, amount := range []string{"0", "-5", "4.99", "19.5", "49.99", "999.5", "3000.01", "10000"} {
		_, err := tierIndex(tiers, dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}

func TestLedger_Tiers_DefaultTableIsValid(t *testing.T) {
	t.Parallel()

	tiers := DefaultTiers()
	require.NoError(t, validateTiers(tiers))
	require.Len(t, tiers, 5)
	assertDecimal(t, "2.5", tiers[4].DailyRatePercent())
	assertDecimal(t, "1", tiers[0].DailyRatePercent())
}

func TestLedger_Tiers_Validate(t *testing.T) {
	t.Parallel()

	t.Run("rejects overlapping ranges", func(t *testing.T) {
		t.Parallel()
		tiers := DefaultTiers()
		tiers[1].Min = dec("19")
		assert.ErrorIs(t, validateTiers(tiers), ErrIntegrity)
	})

	t.Run("rejects a zero rate", func(t *testing.T) {
		t.Parallel()
		tiers := DefaultTiers()
		tiers[2].DailyRateBps = 0
		assert.ErrorIs(t, validateTiers(tiers), ErrInvalidRate)
	})

	t.Run("rejects an empty table", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, validateTiers(nil), ErrIntegrity)
	})
}

func TestLedger_ReferralLevels(t *testing.T) {
	t.Parallel()

	var total int64
	for i, l := range ReferralLevels() {
		assert.Equal(t, i+1, l.Level)
		total += l.Percent
	}
	assert.Equal(t, int64(30), total)

	levels := ReferralLevels()
	assertDecimal(t, "150", levels[0].Commission(dec("1000")))
	assertDecimal(t, "0.1", levels[4].Commission(dec("5")))
	assertDecimal(t, "0.000000000000000001", levels[0].Commission(dec("0.00000000000000001")))
}
