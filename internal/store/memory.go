package store

import (
	"context"
	"slices"
	"sync"

	"yield-ledger/internal/ledger"
)

// Memory keeps committed change sets in process memory. It backs the
// service when it runs without a database.
type Memory struct {
	mu       sync.Mutex
	admin    *ledger.AdminConfig
	order    []ledger.Address
	accounts map[ledger.Address]ledger.AccountInfo
	deposits map[ledger.DepositID]ledger.Deposit
	credits  []ledger.ReferralCredit
	events   []ledger.Event
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.Address]ledger.AccountInfo),
		deposits: make(map[ledger.DepositID]ledger.Deposit),
	}
}

func (m *Memory) Commit(_ context.Context, cs ledger.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cs.Admin != nil {
		admin := *cs.Admin
		admin.Tiers = slices.Clone(cs.Admin.Tiers)
		m.admin = &admin
	}
	for _, a := range cs.Accounts {
		if _, ok := m.accounts[a.Address]; !ok {
			m.order = append(m.order, a.Address)
		}
		m.accounts[a.Address] = a
	}
	for _, d := range cs.Deposits {
		m.deposits[d.ID()] = d
	}
	m.credits = append(m.credits, cs.Credits...)
	m.events = append(m.events, cs.Events...)
	return nil
}

func (m *Memory) Load(context.Context) (ledger.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st ledger.State
	if m.admin != nil {
		st.Admin = *m.admin
		st.Admin.Tiers = slices.Clone(m.admin.Tiers)
	}
	for _, addr := range m.order {
		st.Accounts = append(st.Accounts, m.accounts[addr])
	}
	for _, d := range m.deposits {
		st.Deposits = append(st.Deposits, d)
	}
	return st, nil
}

func (m *Memory) ReferralHistory(_ context.Context, referrer ledger.Address, limit int) ([]ledger.ReferralCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.ReferralCredit
	for i := len(m.credits) - 1; i >= 0 && len(out) < limit; i-- {
		if m.credits[i].Referrer == referrer {
			out = append(out, m.credits[i])
		}
	}
	return out, nil
}

// Events returns every committed event in commit order.
func (m *Memory) Events() []ledger.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}
