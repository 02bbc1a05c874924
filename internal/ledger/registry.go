package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DepositRegistry owns every deposit, grouped per account in creation order.
// Records are append-only; only TotalClaimed and Active ever change.
type DepositRegistry struct {
	deposits map[Address][]Deposit
}

func NewDepositRegistry() *DepositRegistry {
	return &DepositRegistry{deposits: make(map[Address][]Deposit)}
}

// Create appends a new active deposit. The amount must lie inside tier.
func (r *DepositRegistry) Create(j *journal, account Address, amount decimal.Decimal, tierIdx int, tier PackageTier, now time.Time) (DepositID, error) {
	if !amount.IsPositive() || !tier.Contains(amount) {
		return DepositID{}, fmt.Errorf("%w: %s not in tier %s", ErrInvalidAmount, amount, tier.Name)
	}

	list := r.deposits[account]
	d := Deposit{
		Account:      account,
		Index:        len(list),
		Amount:       amount,
		Tier:         tierIdx,
		DailyRateBps: tier.DailyRateBps,
		StartTime:    now,
		TotalClaimed: decimal.Zero,
		Active:       true,
	}
	r.deposits[account] = append(list, d)
	j.record(func() {
		if len(list) == 0 {
			delete(r.deposits, account)
			return
		}
		r.deposits[account] = list[:len(list):len(list)]
	})
	return d.ID(), nil
}

// RecordClaim adds claimed to the deposit's running total and retires the
// deposit once the cap is reached.
func (r *DepositRegistry) RecordClaim(j *journal, id DepositID, claimed decimal.Decimal) (Deposit, error) {
	d, err := r.get(id)
	if err != nil {
		return Deposit{}, err
	}
	if !d.Active {
		return Deposit{}, fmt.Errorf("%w: %s/%d", ErrDepositInactive, id.Account, id.Index)
	}

	total := d.TotalClaimed.Add(claimed)
	maxReturn := d.MaxReturn()
	if total.GreaterThan(maxReturn) {
		return Deposit{}, fmt.Errorf("%w: claim on %s/%d exceeds cap", ErrIntegrity, id.Account, id.Index)
	}

	prev := *d
	d.TotalClaimed = total
	if total.Equal(maxReturn) {
		d.Active = false
	}
	j.record(func() { *d = prev })
	return *d, nil
}

// Get returns a copy of one deposit.
func (r *DepositRegistry) Get(id DepositID) (Deposit, error) {
	d, err := r.get(id)
	if err != nil {
		return Deposit{}, err
	}
	return *d, nil
}

func (r *DepositRegistry) get(id DepositID) (*Deposit, error) {
	list := r.deposits[id.Account]
	if id.Index < 0 || id.Index >= len(list) {
		return nil, fmt.Errorf("%w: %s/%d", ErrDepositNotFound, id.Account, id.Index)
	}
	return &list[id.Index], nil
}

// List returns copies of all deposits of account.
func (r *DepositRegistry) List(account Address) []Deposit {
	list := r.deposits[account]
	out := make([]Deposit, len(list))
	copy(out, list)
	return out
}

func (r *DepositRegistry) Count(account Address) int {
	return len(r.deposits[account])
}

// TotalAcrossDeposits sums fn over all deposits of account.
func (r *DepositRegistry) TotalAcrossDeposits(account Address, fn func(Deposit) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range r.deposits[account] {
		total = total.Add(fn(d))
	}
	return total
}

// each calls fn for every deposit; accounts are visited in map order.
func (r *DepositRegistry) each(fn func(Deposit)) {
	for _, list := range r.deposits {
		for _, d := range list {
			fn(d)
		}
	}
}

// restore appends a persisted deposit verbatim; used when rebuilding state.
func (r *DepositRegistry) restore(d Deposit) error {
	list := r.deposits[d.Account]
	if d.Index != len(list) {
		return fmt.Errorf("%w: deposit %s/%d out of order", ErrIntegrity, d.Account, d.Index)
	}
	if d.TotalClaimed.GreaterThan(d.MaxReturn()) {
		return fmt.Errorf("%w: deposit %s/%d claimed above cap", ErrIntegrity, d.Account, d.Index)
	}
	r.deposits[d.Account] = append(list, d)
	return nil
}
