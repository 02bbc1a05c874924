package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"yield-ledger/internal/metrics"
)

const (
	OpDeposit          = "deposit"
	OpClaim            = "claim"
	OpWithdrawReferral = "withdraw_referral"
	OpSetPaused        = "set_paused"
	OpSetTreasury      = "set_treasury"
	OpSetDailyRate     = "set_daily_rate"
)

// ChangeSet is the complete effect of one operation, handed to the Committer
// before the operation is acknowledged. Accounts and Deposits hold the new
// state of every touched record.
type ChangeSet struct {
	Op       string
	Accounts []AccountInfo
	Deposits []Deposit
	Credits  []ReferralCredit
	Events   []Event
	Admin    *AdminConfig
}

// Committer persists a ChangeSet. A returned error makes the engine undo the
// operation in memory.
type Committer interface {
	Commit(ctx context.Context, cs ChangeSet) error
}

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, ChangeSet) error { return nil }

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Admin     AdminConfig
	Committer Committer // optional, state is memory-only if nil
	Publisher Publisher // optional
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Admin.Owner.IsZero() {
		return errors.New("owner address is required")
	}
	if cfg.Admin.Treasury.IsZero() {
		cfg.Admin.Treasury = cfg.Admin.Owner
	}
	if cfg.Admin.Tiers == nil {
		cfg.Admin.Tiers = DefaultTiers()
	}
	if err := validateTiers(cfg.Admin.Tiers); err != nil {
		return fmt.Errorf("invalid tier table: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Committer == nil {
		cfg.Committer = nopCommitter{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}
	return nil
}

// Engine is the single writer of the ledger. Every operation runs to
// completion under one mutex and is either fully applied and committed or
// not applied at all.
type Engine struct {
	log       *slog.Logger
	clock     clockwork.Clock
	committer Committer
	publisher Publisher

	mu       sync.Mutex
	admin    AdminConfig
	deposits *DepositRegistry
	graph    *ReferralGraph
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:       cfg.Logger,
		clock:     cfg.Clock,
		committer: cfg.Committer,
		publisher: cfg.Publisher,
		admin:     cfg.Admin.clone(),
		deposits:  NewDepositRegistry(),
		graph:     NewReferralGraph(),
	}, nil
}

// Restore rebuilds an engine from persisted state. The persisted admin
// settings replace cfg.Admin when present.
func Restore(cfg Config, st State) (*Engine, error) {
	if !st.Admin.Owner.IsZero() {
		cfg.Admin = st.Admin.clone()
	}
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}

	// Restored records are not undoable.
	var j journal
	for _, a := range st.Accounts {
		if a.Address.IsZero() {
			return nil, fmt.Errorf("%w: account without address", ErrIntegrity)
		}
		if _, ok := e.graph.lookup(a.Address); ok {
			return nil, fmt.Errorf("%w: duplicate account %s", ErrIntegrity, a.Address)
		}
		idx := e.graph.ensure(&j, a.Address)
		acct := &e.graph.accounts[idx]
		acct.totalInvested = a.TotalInvested
		acct.totalWithdrawn = a.TotalWithdrawn
		acct.referralBalance = a.ReferralBalance
		acct.referralsByLevel = a.ReferralsByLevel
		acct.depositCount = a.DepositCount
	}
	for _, a := range st.Accounts {
		if a.Referrer.IsZero() {
			continue
		}
		idx, _ := e.graph.lookup(a.Address)
		parent, ok := e.graph.lookup(a.Referrer)
		if !ok || parent == idx {
			return nil, fmt.Errorf("%w: account %s has invalid referrer %s", ErrIntegrity, a.Address, a.Referrer)
		}
		e.graph.accounts[idx].referrer = parent
	}
	if err := e.graph.checkAcyclic(); err != nil {
		return nil, err
	}

	deposits := slices.Clone(st.Deposits)
	slices.SortFunc(deposits, compareDeposits)
	for _, d := range deposits {
		if _, ok := e.graph.lookup(d.Account); !ok {
			return nil, fmt.Errorf("%w: deposit %s/%d has no account", ErrIntegrity, d.Account, d.Index)
		}
		if d.Tier < 0 || d.Tier >= len(e.admin.Tiers) {
			return nil, fmt.Errorf("%w: deposit %s/%d has tier %d", ErrIntegrity, d.Account, d.Index, d.Tier)
		}
		if err := e.deposits.restore(d); err != nil {
			return nil, err
		}
	}
	for i := range e.graph.accounts {
		a := &e.graph.accounts[i]
		if n := e.deposits.Count(a.addr); n != a.depositCount {
			return nil, fmt.Errorf("%w: account %s has %d deposits, record says %d", ErrIntegrity, a.addr, n, a.depositCount)
		}
	}

	e.log.Info("ledger: state restored", "accounts", len(st.Accounts), "deposits", len(deposits), "paused", e.admin.Paused)
	return e, nil
}

func compareDeposits(a, b Deposit) int {
	return cmp.Or(cmp.Compare(a.Account, b.Account), cmp.Compare(a.Index, b.Index))
}

// Deposit opens a new deposit for account. referrer is recorded only on the
// account's first deposit and must be an account that has already deposited.
func (e *Engine) Deposit(ctx context.Context, account Address, amount decimal.Decimal, referrer Address) (id DepositID, err error) {
	done := e.begin(OpDeposit)
	defer func() { done(err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.admin.Paused {
		return DepositID{}, ErrContractPaused
	}
	if account.IsZero() {
		return DepositID{}, fmt.Errorf("%w: depositor", ErrInvalidAddress)
	}
	amount = truncate(amount)
	tierIdx, err := tierIndex(e.admin.Tiers, amount)
	if err != nil {
		return DepositID{}, err
	}
	if referrer == account {
		return DepositID{}, ErrSelfReferral
	}
	tier := e.admin.Tiers[tierIdx]
	now := e.clock.Now()

	var j journal
	idx := e.graph.ensure(&j, account)
	if err := e.graph.AttachReferrer(&j, idx, referrer); err != nil {
		j.rollback()
		return DepositID{}, err
	}
	id, err = e.deposits.Create(&j, account, amount, tierIdx, tier, now)
	if err != nil {
		j.rollback()
		return DepositID{}, err
	}

	acct := &e.graph.accounts[idx]
	prevInvested, prevCount := acct.totalInvested, acct.depositCount
	acct.totalInvested = prevInvested.Add(amount)
	acct.depositCount++
	j.record(func() {
		a := &e.graph.accounts[idx]
		a.totalInvested = prevInvested
		a.depositCount = prevCount
	})

	credits, err := e.graph.Cascade(&j, idx, amount, now)
	if err != nil {
		j.rollback()
		e.log.Error("ledger: referral cascade failed, deposit rolled back", "account", account, "error", err)
		return DepositID{}, err
	}

	info := e.graph.Info(account)
	d, _ := e.deposits.Get(id)
	cs := ChangeSet{
		Op:       OpDeposit,
		Accounts: []AccountInfo{info},
		Deposits: []Deposit{d},
		Credits:  credits,
		Events: []Event{e.stamp(Event{
			Type:         EventDeposited,
			Account:      account,
			Counterparty: info.Referrer,
			Amount:       amount,
			Tier:         tierIdx,
			DepositIndex: id.Index,
		})},
	}
	for _, c := range credits {
		cs.Accounts = append(cs.Accounts, e.graph.Info(c.Referrer))
		cs.Events = append(cs.Events, e.stamp(Event{
			Type:         EventReferralPaid,
			Account:      c.Referrer,
			Counterparty: account,
			Amount:       c.Amount,
			Level:        c.Level,
		}))
	}
	if err := e.commit(ctx, &j, cs); err != nil {
		return DepositID{}, err
	}

	for _, c := range credits {
		metrics.RecordReferralCredit(c.Level)
	}
	e.log.Info("ledger: deposit accepted",
		"account", account, "amount", amount, "tier", tier.Name, "index", id.Index, "credits", len(credits))
	return id, nil
}

// ClaimRewards pays out everything accrued on the account's active deposits.
// Each deposit is charged with exactly its own contribution.
func (e *Engine) ClaimRewards(ctx context.Context, account Address) (claimed decimal.Decimal, err error) {
	done := e.begin(OpClaim)
	defer func() { done(err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.graph.lookup(account)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no deposits", ErrBelowMinimum)
	}

	type share struct {
		id     DepositID
		amount decimal.Decimal
	}
	now := e.clock.Now()
	var shares []share
	total := decimal.Zero
	for _, d := range e.deposits.List(account) {
		if a := Accrue(d, now); a.IsPositive() {
			shares = append(shares, share{id: d.ID(), amount: a})
			total = total.Add(a)
		}
	}
	if total.LessThan(MinWithdrawal) {
		return decimal.Zero, fmt.Errorf("%w: available %s", ErrBelowMinimum, total)
	}

	var j journal
	changed := make([]Deposit, 0, len(shares))
	for _, s := range shares {
		d, err := e.deposits.RecordClaim(&j, s.id, s.amount)
		if err != nil {
			j.rollback()
			return decimal.Zero, err
		}
		changed = append(changed, d)
	}

	acct := &e.graph.accounts[idx]
	prev := acct.totalWithdrawn
	acct.totalWithdrawn = prev.Add(total)
	j.record(func() { e.graph.accounts[idx].totalWithdrawn = prev })

	cs := ChangeSet{
		Op:       OpClaim,
		Accounts: []AccountInfo{e.graph.Info(account)},
		Deposits: changed,
		Events:   []Event{e.stamp(Event{Type: EventRewardsClaimed, Account: account, Amount: total})},
	}
	if err := e.commit(ctx, &j, cs); err != nil {
		return decimal.Zero, err
	}

	e.log.Info("ledger: rewards claimed", "account", account, "amount", total, "deposits", len(changed))
	return total, nil
}

// WithdrawReferral pays out the whole commission balance of account.
func (e *Engine) WithdrawReferral(ctx context.Context, account Address) (withdrawn decimal.Decimal, err error) {
	done := e.begin(OpWithdrawReferral)
	defer func() { done(err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.graph.lookup(account)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: referral balance 0", ErrBelowMinimum)
	}

	var j journal
	amount, err := e.graph.WithdrawReferral(&j, idx)
	if err != nil {
		return decimal.Zero, err
	}

	cs := ChangeSet{
		Op:       OpWithdrawReferral,
		Accounts: []AccountInfo{e.graph.Info(account)},
		Events:   []Event{e.stamp(Event{Type: EventReferralWithdrawn, Account: account, Amount: amount})},
	}
	if err := e.commit(ctx, &j, cs); err != nil {
		return decimal.Zero, err
	}

	e.log.Info("ledger: referral balance withdrawn", "account", account, "amount", amount)
	return amount, nil
}

// commit hands cs to the committer and undoes the operation if it refuses.
// Must be called with e.mu held.
func (e *Engine) commit(ctx context.Context, j *journal, cs ChangeSet) error {
	if err := e.committer.Commit(ctx, cs); err != nil {
		j.rollback()
		metrics.CommitFailuresTotal.Inc()
		e.log.Error("ledger: commit failed, operation rolled back", "op", cs.Op, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrCommit, cs.Op, err)
	}
	if err := e.publisher.Publish(ctx, cs.Events...); err != nil {
		e.log.Warn("ledger: failed to publish events", "op", cs.Op, "events", len(cs.Events), "error", err)
	}
	return nil
}

func (e *Engine) stamp(ev Event) Event {
	ev.ID = uuid.New()
	ev.Time = e.clock.Now()
	return ev
}

func (e *Engine) begin(op string) func(error) {
	start := time.Now()
	return func(err error) {
		metrics.RecordOperation(op, time.Since(start), err)
		if err != nil {
			e.log.Debug("ledger: operation rejected", "op", op, "error", err)
		}
	}
}

// AvailableRewards is the sum currently claimable by account; 0 for unknown
// accounts.
func (e *Engine) AvailableRewards(account Address) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	return e.deposits.TotalAcrossDeposits(account, func(d Deposit) decimal.Decimal {
		return Accrue(d, now)
	})
}

func (e *Engine) UserInfo(account Address) AccountInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Info(account)
}

func (e *Engine) ReferralsByLevel(account Address) [MaxReferralDepth]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Info(account).ReferralsByLevel
}

func (e *Engine) DepositAt(account Address, index int) (DepositView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.deposits.Get(DepositID{Account: account, Index: index})
	if err != nil {
		return DepositView{}, err
	}
	return view(d, e.clock.Now()), nil
}

func (e *Engine) Deposits(account Address) []DepositView {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	list := e.deposits.List(account)
	out := make([]DepositView, len(list))
	for i, d := range list {
		out[i] = view(d, now)
	}
	return out
}

// ActiveDeposits returns every deposit that has not reached its cap, ordered
// by account and index.
func (e *Engine) ActiveDeposits() []DepositView {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	var out []DepositView
	e.deposits.each(func(d Deposit) {
		if d.Active {
			out = append(out, view(d, now))
		}
	})
	slices.SortFunc(out, func(a, b DepositView) int { return compareDeposits(a.Deposit, b.Deposit) })
	return out
}

// PackageTier returns the index of the tier amount falls into.
func (e *Engine) PackageTier(amount decimal.Decimal) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tierIndex(e.admin.Tiers, truncate(amount))
}

// Snapshot returns a consistent copy of the whole ledger.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	var deposits []Deposit
	e.deposits.each(func(d Deposit) { deposits = append(deposits, d) })
	slices.SortFunc(deposits, compareDeposits)
	return State{
		Admin:    e.admin.clone(),
		Accounts: e.graph.all(),
		Deposits: deposits,
	}
}

func view(d Deposit, now time.Time) DepositView {
	available := Accrue(d, now)
	return DepositView{
		Deposit:          d,
		AvailableRewards: available,
		ProgressToCap:    ProgressToCap(d.Amount, d.TotalClaimed, available),
	}
}
