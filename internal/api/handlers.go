package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"yield-ledger/internal/ledger"
)

type depositRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Referrer string          `json:"referrer"`
}

type depositCreatedResponse struct {
	Account ledger.Address `json:"account"`
	Index   int            `json:"index"`
	Tier    int            `json:"tier"`
}

type amountResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

type accountResponse struct {
	Address          ledger.Address                 `json:"address"`
	Referrer         ledger.Address                 `json:"referrer,omitempty"`
	TotalInvested    decimal.Decimal                `json:"total_invested"`
	TotalWithdrawn   decimal.Decimal                `json:"total_withdrawn"`
	ReferralBalance  decimal.Decimal                `json:"referral_balance"`
	ReferralsByLevel [ledger.MaxReferralDepth]int64 `json:"referrals_by_level"`
	TotalReferrals   int64                          `json:"total_referrals"`
	DepositCount     int                            `json:"deposit_count"`
	AvailableRewards decimal.Decimal                `json:"available_rewards"`
}

type depositResponse struct {
	Account          ledger.Address  `json:"account"`
	Index            int             `json:"index"`
	Amount           decimal.Decimal `json:"amount"`
	Tier             int             `json:"tier"`
	DailyRateBps     int64           `json:"daily_rate_bps"`
	StartTime        time.Time       `json:"start_time"`
	TotalClaimed     decimal.Decimal `json:"total_claimed"`
	MaxReturn        decimal.Decimal `json:"max_return"`
	Active           bool            `json:"active"`
	AvailableRewards decimal.Decimal `json:"available_rewards"`
	ProgressToCap    decimal.Decimal `json:"progress_to_cap"`
}

func newDepositResponse(d ledger.DepositView) depositResponse {
	return depositResponse{
		Account:          d.Account,
		Index:            d.Index,
		Amount:           d.Amount,
		Tier:             d.Tier,
		DailyRateBps:     d.DailyRateBps,
		StartTime:        d.StartTime,
		TotalClaimed:     d.TotalClaimed,
		MaxReturn:        d.MaxReturn(),
		Active:           d.Active,
		AvailableRewards: d.AvailableRewards,
		ProgressToCap:    d.ProgressToCap,
	}
}

type referralsResponse struct {
	Levels [ledger.MaxReferralDepth]int64 `json:"levels"`
	Total  int64                          `json:"total"`
}

type referralCreditResponse struct {
	From   ledger.Address  `json:"from"`
	Level  int             `json:"level"`
	Amount decimal.Decimal `json:"amount"`
	Time   time.Time       `json:"time"`
}

type tierResponse struct {
	Index            int             `json:"index"`
	Name             string          `json:"name"`
	Min              decimal.Decimal `json:"min"`
	Max              decimal.Decimal `json:"max"`
	DailyRateBps     int64           `json:"daily_rate_bps"`
	DailyRatePercent decimal.Decimal `json:"daily_rate_percent"`
}

type statusResponse struct {
	Paused   bool           `json:"paused"`
	Owner    ledger.Address `json:"owner"`
	Treasury ledger.Address `json:"treasury"`
}

func caller(r *http.Request) ledger.Address {
	return ledger.NormalizeAddress(r.Header.Get(AccountHeader))
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	account := caller(r)
	id, err := s.cfg.Ledger.Deposit(r.Context(), account, req.Amount, ledger.NormalizeAddress(req.Referrer))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	d, err := s.cfg.Ledger.DepositAt(id.Account, id.Index)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, depositCreatedResponse{Account: id.Account, Index: id.Index, Tier: d.Tier})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	amount, err := s.cfg.Ledger.ClaimRewards(r.Context(), caller(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (s *Server) handleWithdrawReferral(w http.ResponseWriter, r *http.Request) {
	amount, err := s.cfg.Ledger.WithdrawReferral(r.Context(), caller(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr := ledger.NormalizeAddress(chi.URLParam(r, "address"))
	info := s.cfg.Ledger.UserInfo(addr)
	s.writeJSON(w, http.StatusOK, accountResponse{
		Address:          addr,
		Referrer:         info.Referrer,
		TotalInvested:    info.TotalInvested,
		TotalWithdrawn:   info.TotalWithdrawn,
		ReferralBalance:  info.ReferralBalance,
		ReferralsByLevel: info.ReferralsByLevel,
		TotalReferrals:   info.TotalReferrals(),
		DepositCount:     info.DepositCount,
		AvailableRewards: s.cfg.Ledger.AvailableRewards(addr),
	})
}

func (s *Server) handleDeposits(w http.ResponseWriter, r *http.Request) {
	addr := ledger.NormalizeAddress(chi.URLParam(r, "address"))
	views := s.cfg.Ledger.Deposits(addr)
	out := make([]depositResponse, 0, len(views))
	for _, d := range views {
		out = append(out, newDepositResponse(d))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr := ledger.NormalizeAddress(chi.URLParam(r, "address"))
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "deposit index must be an integer")
		return
	}
	d, err := s.cfg.Ledger.DepositAt(addr, index)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newDepositResponse(d))
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	addr := ledger.NormalizeAddress(chi.URLParam(r, "address"))
	levels := s.cfg.Ledger.ReferralsByLevel(addr)
	var total int64
	for _, n := range levels {
		total += n
	}
	s.writeJSON(w, http.StatusOK, referralsResponse{Levels: levels, Total: total})
}

func (s *Server) handleReferralCredits(w http.ResponseWriter, r *http.Request) {
	addr := ledger.NormalizeAddress(chi.URLParam(r, "address"))
	credits, err := s.cfg.History.ReferralHistory(r.Context(), addr, limitParam(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := make([]referralCreditResponse, 0, len(credits))
	for _, c := range credits {
		out = append(out, referralCreditResponse{From: c.From, Level: c.Level, Amount: c.Amount, Time: c.Time})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTiers(w http.ResponseWriter, _ *http.Request) {
	tiers := s.cfg.Ledger.Tiers()
	out := make([]tierResponse, 0, len(tiers))
	for i, t := range tiers {
		out = append(out, tierResponse{
			Index:            i,
			Name:             t.Name,
			Min:              t.Min,
			Max:              t.Max,
			DailyRateBps:     t.DailyRateBps,
			DailyRatePercent: t.DailyRatePercent(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTierLookup(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a decimal number")
		return
	}
	tier, err := s.cfg.Ledger.PackageTier(amount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"tier": tier})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Paused:   s.cfg.Ledger.Paused(),
		Owner:    s.cfg.Ledger.Owner(),
		Treasury: s.cfg.Ledger.Treasury(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.cfg.Events.Recent(r.Context(), limitParam(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if evs == nil {
		evs = []ledger.Event{}
	}
	s.writeJSON(w, http.StatusOK, evs)
}
