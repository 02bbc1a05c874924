package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies an account. Addresses are compared in their normalized
// (trimmed, lower-case) form.
type Address string

const ZeroAddress Address = ""

func NormalizeAddress(s string) Address {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Trim(strings.TrimPrefix(s, "0x"), "0") == "" {
		return ZeroAddress
	}
	return Address(s)
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return string(a)
}

// DepositID addresses one deposit by its owner and its position in the
// owner's ordered deposit list.
type DepositID struct {
	Account Address
	Index   int
}

type Deposit struct {
	Account      Address
	Index        int
	Amount       decimal.Decimal
	Tier         int
	DailyRateBps int64
	StartTime    time.Time
	TotalClaimed decimal.Decimal
	Active       bool
}

func (d Deposit) ID() DepositID {
	return DepositID{Account: d.Account, Index: d.Index}
}

// MaxReturn is the lifetime claim cap of the deposit.
func (d Deposit) MaxReturn() decimal.Decimal {
	return d.Amount.Mul(capMultiplier)
}

// DepositView is a deposit together with the values derived from it at a
// point in time.
type DepositView struct {
	Deposit
	AvailableRewards decimal.Decimal
	ProgressToCap    decimal.Decimal
}

// AccountInfo is a point-in-time copy of an account record.
type AccountInfo struct {
	Address          Address
	Referrer         Address
	TotalInvested    decimal.Decimal
	TotalWithdrawn   decimal.Decimal
	ReferralBalance  decimal.Decimal
	ReferralsByLevel [MaxReferralDepth]int64
	DepositCount     int
}

// TotalReferrals is the number of descendants across all levels.
func (a AccountInfo) TotalReferrals() int64 {
	var total int64
	for _, n := range a.ReferralsByLevel {
		total += n
	}
	return total
}

// ReferralCredit is one commission payment produced by a cascade.
type ReferralCredit struct {
	Referrer Address
	From     Address
	Level    int
	Amount   decimal.Decimal
	Time     time.Time
}

// State is everything needed to rebuild an engine. Accounts may appear in any
// order; deposits are grouped by account and ordered by index.
type State struct {
	Admin    AdminConfig
	Accounts []AccountInfo
	Deposits []Deposit
}
