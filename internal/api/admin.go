package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"yield-ledger/internal/ledger"
	"yield-ledger/internal/utils"
)

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type treasuryRequest struct {
	Treasury string `json:"treasury"`
}

type rateRequest struct {
	RateBps int64 `json:"rate_bps"`
}

// adminOnly rejects admin requests from outside the allowlist. The caller is
// still checked against the owner by the ledger.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := utils.ClientIP(r)
		if !utils.IsAllowedIP(ip, s.admins) {
			s.log.Warn("api: admin request from disallowed address", "ip", ip, "path", r.URL.Path)
			s.writeError(w, http.StatusForbidden, "forbidden", "admin endpoints are not reachable from this address")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	if err := s.cfg.Ledger.SetPaused(r.Context(), caller(r), req.Paused); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.log.Info("api: paused flag changed", "paused", req.Paused, "caller", caller(r))
	s.writeJSON(w, http.StatusOK, pauseRequest{Paused: req.Paused})
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	var req treasuryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	treasury := ledger.NormalizeAddress(req.Treasury)
	if err := s.cfg.Ledger.SetTreasury(r.Context(), caller(r), treasury); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, treasuryRequest{Treasury: treasury.String()})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	tier, err := strconv.Atoi(chi.URLParam(r, "tier"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_tier", "tier must be an integer")
		return
	}
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	if err := s.cfg.Ledger.SetDailyRate(r.Context(), caller(r), tier, req.RateBps); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"tier": int64(tier), "rate_bps": req.RateBps})
}
