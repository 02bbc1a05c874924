package bot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"yield-ledger/internal/ledger"
)

const maxListed = 20

func (b *Bot) StatusText() string {
	c := b.cfg.Ledger
	active := c.ActiveDeposits()
	locked := decimal.Zero
	for _, d := range active {
		locked = locked.Add(d.Amount)
	}

	state := "▶️ accepting deposits"
	if c.Paused() {
		state = "⏸ deposits paused"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Ledger status: %s\n\n", state)
	fmt.Fprintf(&sb, "Owner: %s\nTreasury: %s\n", c.Owner(), c.Treasury())
	fmt.Fprintf(&sb, "Active deposits: %d\nValue locked: %s\n\nPackages:\n", len(active), locked.StringFixed(2))
	for i, t := range c.Tiers() {
		fmt.Fprintf(&sb, "%d. %s %s–%s at %s%%/day\n", i, t.Name, t.Min, t.Max, t.DailyRatePercent().StringFixed(2))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) AccountText(addr ledger.Address) string {
	if addr.IsZero() {
		return "Usage: /account <address>"
	}
	c := b.cfg.Ledger
	info := c.UserInfo(addr)
	if info.DepositCount == 0 {
		return fmt.Sprintf("No deposits for %s.", addr)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s\n", addr)
	if !info.Referrer.IsZero() {
		fmt.Fprintf(&sb, "Referrer: %s\n", info.Referrer)
	}
	fmt.Fprintf(&sb, "Invested: %s\nWithdrawn: %s\nAvailable: %s\nReferral balance: %s\n",
		info.TotalInvested.StringFixed(2), info.TotalWithdrawn.StringFixed(2),
		c.AvailableRewards(addr).StringFixed(2), info.ReferralBalance.StringFixed(2))

	levels := make([]string, len(info.ReferralsByLevel))
	for i, n := range info.ReferralsByLevel {
		levels[i] = fmt.Sprint(n)
	}
	fmt.Fprintf(&sb, "Referrals by level: %s (total %d)\n\nDeposits:\n", strings.Join(levels, " / "), info.TotalReferrals())

	for _, d := range c.Deposits(addr) {
		status := "active"
		if !d.Active {
			status = "capped"
		}
		fmt.Fprintf(&sb, "#%d %s, %s, %s%% of cap\n", d.Index, d.Amount.StringFixed(2), status, d.ProgressToCap.StringFixed(2))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NearCapText lists active deposits at or past the warning threshold, closest
// to the cap first.
func (b *Bot) NearCapText() string {
	threshold := decimal.NewFromInt(int64(b.cfg.WarnPercent))
	var near []ledger.DepositView
	for _, d := range b.cfg.Ledger.ActiveDeposits() {
		if d.ProgressToCap.GreaterThanOrEqual(threshold) {
			near = append(near, d)
		}
	}
	if len(near) == 0 {
		return fmt.Sprintf("No active deposit is at %d%% of its cap.", b.cfg.WarnPercent)
	}

	slices.SortStableFunc(near, func(x, y ledger.DepositView) int {
		return y.ProgressToCap.Cmp(x.ProgressToCap)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ %d deposit(s) at %d%% of cap or more:\n", len(near), b.cfg.WarnPercent)
	for i, d := range near {
		if i == maxListed {
			fmt.Fprintf(&sb, "…and %d more\n", len(near)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "%s #%d: %s%%\n", d.Account, d.Index, d.ProgressToCap.StringFixed(2))
	}
	return strings.TrimRight(sb.String(), "\n")
}
