// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"yield-ledger/internal/cache"
	"yield-ledger/internal/events"
	"yield-ledger/internal/ledger"
	"yield-ledger/internal/metrics"
	"yield-ledger/internal/utils"
)

// Ledger is the part of the engine the API drives.
type Ledger interface {
	Deposit(ctx context.Context, account ledger.Address, amount decimal.Decimal, referrer ledger.Address) (ledger.DepositID, error)
	ClaimRewards(ctx context.Context, account ledger.Address) (decimal.Decimal, error)
	WithdrawReferral(ctx context.Context, account ledger.Address) (decimal.Decimal, error)
	SetPaused(ctx context.Context, caller ledger.Address, paused bool) error
	SetTreasury(ctx context.Context, caller ledger.Address, treasury ledger.Address) error
	SetDailyRate(ctx context.Context, caller ledger.Address, tier int, rateBps int64) error

	UserInfo(account ledger.Address) ledger.AccountInfo
	AvailableRewards(account ledger.Address) decimal.Decimal
	ReferralsByLevel(account ledger.Address) [ledger.MaxReferralDepth]int64
	DepositAt(account ledger.Address, index int) (ledger.DepositView, error)
	Deposits(account ledger.Address) []ledger.DepositView
	PackageTier(amount decimal.Decimal) (int, error)
	Tiers() []ledger.PackageTier
	Paused() bool
	Owner() ledger.Address
	Treasury() ledger.Address
}

// History serves persisted referral credits.
type History interface {
	ReferralHistory(ctx context.Context, referrer ledger.Address, limit int) ([]ledger.ReferralCredit, error)
}

const (
	AccountHeader     = "X-Account"
	IdempotencyHeader = "Idempotency-Key"

	defaultListLimit = 50
	maxListLimit     = 500
)

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Ledger  Ledger
	History History
	Events  events.Feed
	// Flags stores idempotency keys; defaults to process memory.
	Flags         cache.Flags
	AdminCIDRs    []string
	RatePerMinute int
	CORSOrigins   []string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.History == nil {
		return errors.New("history is required")
	}
	if cfg.Events == nil {
		return errors.New("event feed is required")
	}
	if cfg.RatePerMinute <= 0 {
		return errors.New("rate per minute must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Flags == nil {
		cfg.Flags = cache.NewMemory(cfg.Clock)
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	admins  []netip.Prefix
	limiter *RateLimiter
	router  chi.Router
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	admins, err := utils.ParseCIDRs(cfg.AdminCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin allowlist: %w", err)
	}

	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		admins:  admins,
		limiter: NewRateLimiter(cfg.Clock, cfg.RatePerMinute),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", AccountHeader, IdempotencyHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/status", s.handleStatus)
		r.Get("/tiers", s.handleTiers)
		r.Get("/tiers/lookup", s.handleTierLookup)
		r.Get("/events", s.handleEvents)

		r.Route("/accounts/{address}", func(r chi.Router) {
			r.Get("/", s.handleAccount)
			r.Get("/deposits", s.handleDeposits)
			r.Get("/deposits/{index}", s.handleDeposit)
			r.Get("/referrals", s.handleReferrals)
			r.Get("/referral-credits", s.handleReferralCredits)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.idempotent)
			r.Post("/deposits", s.handleCreateDeposit)
			r.Post("/claims", s.handleClaim)
			r.Post("/referral-withdrawals", s.handleWithdrawReferral)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Post("/pause", s.handlePause)
				r.Post("/treasury", s.handleTreasury)
				r.Post("/rates/{tier}", s.handleRate)
			})
		})
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("api: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("api: failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeLedgerError maps err onto a status code. Server-side failures are
// logged, client errors are not.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeError(w, status, code, err.Error())
}
