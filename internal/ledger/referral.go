package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const noReferrer = -1

// account is an arena slot. referrer is the arena index of the parent, or
// noReferrer.
type account struct {
	addr             Address
	referrer         int
	totalInvested    decimal.Decimal
	totalWithdrawn   decimal.Decimal
	referralBalance  decimal.Decimal
	referralsByLevel [MaxReferralDepth]int64
	depositCount     int
}

func (a *account) info(g *ReferralGraph) AccountInfo {
	info := AccountInfo{
		Address:          a.addr,
		TotalInvested:    a.totalInvested,
		TotalWithdrawn:   a.totalWithdrawn,
		ReferralBalance:  a.referralBalance,
		ReferralsByLevel: a.referralsByLevel,
		DepositCount:     a.depositCount,
	}
	if a.referrer != noReferrer && a.referrer < len(g.accounts) {
		info.Referrer = g.accounts[a.referrer].addr
	}
	return info
}

// ReferralGraph is the arena of accounts. Referrer edges are back-references
// by index; an edge is set once and always points at an account that had
// already deposited, so the graph is acyclic.
type ReferralGraph struct {
	accounts []account
	index    map[Address]int
}

func NewReferralGraph() *ReferralGraph {
	return &ReferralGraph{index: make(map[Address]int)}
}

func (g *ReferralGraph) lookup(addr Address) (int, bool) {
	i, ok := g.index[addr]
	return i, ok
}

func (g *ReferralGraph) at(i int) (*account, error) {
	if i < 0 || i >= len(g.accounts) {
		return nil, fmt.Errorf("%w: account index %d out of range", ErrIntegrity, i)
	}
	return &g.accounts[i], nil
}

// ensure returns the arena index of addr, creating the account if needed.
func (g *ReferralGraph) ensure(j *journal, addr Address) int {
	if i, ok := g.index[addr]; ok {
		return i
	}
	i := len(g.accounts)
	g.accounts = append(g.accounts, account{
		addr:            addr,
		referrer:        noReferrer,
		totalInvested:   decimal.Zero,
		totalWithdrawn:  decimal.Zero,
		referralBalance: decimal.Zero,
	})
	g.index[addr] = i
	j.record(func() {
		delete(g.index, addr)
		g.accounts = g.accounts[:i]
	})
	return i
}

// AttachReferrer records referrer as the parent of the account at idx. It only
// has an effect before the account's first deposit; later calls are ignored.
func (g *ReferralGraph) AttachReferrer(j *journal, idx int, referrer Address) error {
	a, err := g.at(idx)
	if err != nil {
		return err
	}
	if referrer.IsZero() || a.depositCount > 0 || a.referrer != noReferrer {
		return nil
	}
	if referrer == a.addr {
		return ErrSelfReferral
	}
	parent, ok := g.index[referrer]
	if !ok || g.accounts[parent].depositCount == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownReferrer, referrer)
	}

	a.referrer = parent
	j.record(func() { g.accounts[idx].referrer = noReferrer })
	return nil
}

// Cascade credits up to MaxReferralDepth ancestors of the account at idx with
// their level's share of amount and bumps their per-level counters. A chain
// shorter than MaxReferralDepth is normal and stops the walk.
func (g *ReferralGraph) Cascade(j *journal, idx int, amount decimal.Decimal, now time.Time) ([]ReferralCredit, error) {
	a, err := g.at(idx)
	if err != nil {
		return nil, err
	}

	var credits []ReferralCredit
	seen := map[int]bool{idx: true}
	next := a.referrer
	for hop := 0; hop < MaxReferralDepth && next != noReferrer; hop++ {
		if seen[next] {
			return nil, fmt.Errorf("%w: referral cycle at %d", ErrIntegrity, next)
		}
		seen[next] = true

		ancestor, err := g.at(next)
		if err != nil {
			return nil, err
		}
		level := referralLevels[hop]
		credit := level.Commission(amount)

		prevBalance := ancestor.referralBalance
		ai := next
		ancestor.referralBalance = prevBalance.Add(credit)
		ancestor.referralsByLevel[hop]++
		j.record(func() {
			g.accounts[ai].referralBalance = prevBalance
			g.accounts[ai].referralsByLevel[hop]--
		})

		credits = append(credits, ReferralCredit{
			Referrer: ancestor.addr,
			From:     a.addr,
			Level:    level.Level,
			Amount:   credit,
			Time:     now,
		})
		next = ancestor.referrer
	}
	return credits, nil
}

// WithdrawReferral zeroes the commission balance and returns what it held.
func (g *ReferralGraph) WithdrawReferral(j *journal, idx int) (decimal.Decimal, error) {
	a, err := g.at(idx)
	if err != nil {
		return decimal.Zero, err
	}
	balance := a.referralBalance
	if balance.LessThan(MinWithdrawal) {
		return decimal.Zero, fmt.Errorf("%w: referral balance %s", ErrBelowMinimum, balance)
	}
	a.referralBalance = decimal.Zero
	j.record(func() { g.accounts[idx].referralBalance = balance })
	return balance, nil
}

// Info returns a copy of the account, or a zero record for unknown addresses.
func (g *ReferralGraph) Info(addr Address) AccountInfo {
	i, ok := g.index[addr]
	if !ok {
		return AccountInfo{
			Address:         addr,
			TotalInvested:   decimal.Zero,
			TotalWithdrawn:  decimal.Zero,
			ReferralBalance: decimal.Zero,
		}
	}
	return g.accounts[i].info(g)
}

func (g *ReferralGraph) all() []AccountInfo {
	out := make([]AccountInfo, 0, len(g.accounts))
	for i := range g.accounts {
		out = append(out, g.accounts[i].info(g))
	}
	return out
}

// checkAcyclic verifies that every referrer chain ends. Used on restored state
// only; edges created by AttachReferrer cannot form cycles.
func (g *ReferralGraph) checkAcyclic() error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(g.accounts))
	for start := range g.accounts {
		var path []int
		for i := start; i != noReferrer; i = g.accounts[i].referrer {
			if i < 0 || i >= len(g.accounts) {
				return fmt.Errorf("%w: account index %d out of range", ErrIntegrity, i)
			}
			if state[i] == done {
				break
			}
			if state[i] == onPath {
				return fmt.Errorf("%w: referral cycle through %s", ErrIntegrity, g.accounts[i].addr)
			}
			state[i] = onPath
			path = append(path, i)
		}
		for _, i := range path {
			state[i] = done
		}
	}
	return nil
}
