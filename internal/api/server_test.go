package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-ledger/internal/events"
	"yield-ledger/internal/ledger"
	"yield-ledger/internal/logger"
	"yield-ledger/internal/store"
)

const (
	owner      = "0xowner"
	adminIP    = "192.0.2.10"
	outsideIP  = "198.51.100.7"
	testOrigin = "http://localhost:3000"
)

type testServer struct {
	*Server
	engine *ledger.Engine
	clock  *clockwork.FakeClock
}

func newTestServer(t *testing.T, opts ...func(*Config)) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	rec := events.NewRecorder(100)

	e, err := ledger.New(ledger.Config{
		Logger:    logger.NewTest(),
		Clock:     clock,
		Admin:     ledger.DefaultAdminConfig(owner, "0xtreasury"),
		Committer: mem,
		Publisher: rec,
	})
	require.NoError(t, err)

	cfg := Config{
		Logger:        logger.NewTest(),
		Clock:         clock,
		Ledger:        e,
		History:       mem,
		Events:        rec,
		AdminCIDRs:    []string{"192.0.2.0/24"},
		RatePerMinute: 6000,
		CORSOrigins:   []string{testOrigin},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return &testServer{Server: s, engine: e, clock: clock}
}

type request struct {
	method  string
	path    string
	account string
	body    any
	ip      string
	headers map[string]string
}

func (ts *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.RemoteAddr = adminIP + ":40000"
	if req.ip != "" {
		r.RemoteAddr = req.ip + ":40000"
	}
	if req.account != "" {
		r.Header.Set(AccountHeader, req.account)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) deposit(t *testing.T, account, amount, referrer string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, request{
		method:  http.MethodPost,
		path:    "/v1/deposits",
		account: account,
		body:    map[string]string{"amount": amount, "referrer": referrer},
	})
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode[errorResponse](t, w).Error)
}

func TestAPI_Server_Deposits(t *testing.T) {
	t.Parallel()

	t.Run("creates deposits and credits the referrer", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		w := ts.deposit(t, "0xA", "1000", "")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		created := decode[depositCreatedResponse](t, w)
		assert.Equal(t, ledger.Address("0xa"), created.Account)
		assert.Equal(t, 0, created.Index)
		assert.Equal(t, 4, created.Tier)

		w = ts.deposit(t, "0xb", "500", "0xa")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, 3, decode[depositCreatedResponse](t, w).Tier)

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa"})
		require.Equal(t, http.StatusOK, w.Code)
		acct := decode[accountResponse](t, w)
		assert.True(t, decimal.NewFromInt(75).Equal(acct.ReferralBalance), acct.ReferralBalance.String())
		assert.Equal(t, int64(1), acct.ReferralsByLevel[0])
		assert.Equal(t, int64(1), acct.TotalReferrals)
		assert.Equal(t, 1, acct.DepositCount)

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa/referrals"})
		require.Equal(t, http.StatusOK, w.Code)
		refs := decode[referralsResponse](t, w)
		assert.Equal(t, [ledger.MaxReferralDepth]int64{1, 0, 0, 0, 0}, refs.Levels)
		assert.Equal(t, int64(1), refs.Total)

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa/referral-credits?limit=5"})
		require.Equal(t, http.StatusOK, w.Code)
		credits := decode[[]referralCreditResponse](t, w)
		require.Len(t, credits, 1)
		assert.Equal(t, ledger.Address("0xb"), credits[0].From)
		assert.Equal(t, 1, credits[0].Level)
	})

	t.Run("maps ledger errors to status codes", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		require.Equal(t, http.StatusCreated, ts.deposit(t, "0xa", "100", "").Code)

		assertError(t, ts.deposit(t, "0xb", "4", ""), http.StatusBadRequest, "invalid_amount")
		assertError(t, ts.deposit(t, "0xb", "3001", ""), http.StatusBadRequest, "invalid_amount")
		assertError(t, ts.deposit(t, "0xb", "10", "0xb"), http.StatusBadRequest, "self_referral")
		assertError(t, ts.deposit(t, "0xb", "10", "0xnobody"), http.StatusBadRequest, "unknown_referrer")
		assertError(t, ts.deposit(t, "", "10", ""), http.StatusBadRequest, "invalid_address")

		w := ts.do(t, request{method: http.MethodPost, path: "/v1/claims", account: "0xb"})
		assertError(t, w, http.StatusUnprocessableEntity, "below_minimum")

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa/deposits/7"})
		assertError(t, w, http.StatusNotFound, "deposit_not_found")

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa/deposits/first"})
		assertError(t, w, http.StatusBadRequest, "invalid_request")

		w = ts.do(t, request{
			method:  http.MethodPost,
			path:    "/v1/deposits",
			account: "0xb",
			body:    map[string]any{"amount": "10", "unexpected": true},
		})
		assertError(t, w, http.StatusBadRequest, "invalid_request")
	})

	t.Run("lists deposits with their accrual", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		require.Equal(t, http.StatusCreated, ts.deposit(t, "0xa", "1000", "").Code)
		ts.clock.Advance(24 * time.Hour)

		w := ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa/deposits"})
		require.Equal(t, http.StatusOK, w.Code)
		deposits := decode[[]depositResponse](t, w)
		require.Len(t, deposits, 1)
		assert.True(t, decimal.NewFromInt(25).Equal(deposits[0].AvailableRewards))
		assert.True(t, decimal.NewFromInt(2000).Equal(deposits[0].MaxReturn))
		assert.Equal(t, int64(250), deposits[0].DailyRateBps)

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa/deposits/0"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[depositResponse](t, w).Active)
	})
}

func TestAPI_Server_Claims(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.deposit(t, "0xa", "1000", "").Code)
	require.Equal(t, http.StatusCreated, ts.deposit(t, "0xb", "100", "0xa").Code)
	ts.clock.Advance(24 * time.Hour)

	w := ts.do(t, request{method: http.MethodPost, path: "/v1/claims", account: "0xa"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decimal.NewFromInt(25).Equal(decode[amountResponse](t, w).Amount))

	w = ts.do(t, request{method: http.MethodPost, path: "/v1/referral-withdrawals", account: "0xa"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decimal.NewFromInt(15).Equal(decode[amountResponse](t, w).Amount))

	w = ts.do(t, request{method: http.MethodPost, path: "/v1/referral-withdrawals", account: "0xa"})
	assertError(t, w, http.StatusUnprocessableEntity, "below_minimum")

	w = ts.do(t, request{method: http.MethodGet, path: "/v1/accounts/0xa"})
	acct := decode[accountResponse](t, w)
	assert.True(t, decimal.NewFromInt(25).Equal(acct.TotalWithdrawn), acct.TotalWithdrawn.String())
	assert.True(t, acct.AvailableRewards.IsZero())
}

func TestAPI_Server_Admin(t *testing.T) {
	t.Parallel()

	t.Run("pauses deposits for the owner", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		w := ts.do(t, request{method: http.MethodPost, path: "/v1/admin/pause", account: owner, body: pauseRequest{Paused: true}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = ts.do(t, request{method: http.MethodGet, path: "/v1/status"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[statusResponse](t, w).Paused)

		assertError(t, ts.deposit(t, "0xa", "100", ""), http.StatusServiceUnavailable, "paused")
	})

	t.Run("rejects callers other than the owner", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		w := ts.do(t, request{method: http.MethodPost, path: "/v1/admin/pause", account: "0xa", body: pauseRequest{Paused: true}})
		assertError(t, w, http.StatusForbidden, "unauthorized")
		assert.False(t, ts.engine.Paused())
	})

	t.Run("rejects addresses outside the allowlist", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		w := ts.do(t, request{
			method:  http.MethodPost,
			path:    "/v1/admin/pause",
			account: owner,
			body:    pauseRequest{Paused: true},
			ip:      outsideIP,
		})
		assertError(t, w, http.StatusForbidden, "forbidden")

		w = ts.do(t, request{
			method:  http.MethodPost,
			path:    "/v1/admin/pause",
			account: owner,
			body:    pauseRequest{Paused: true},
			headers: map[string]string{"X-Real-IP": outsideIP},
		})
		assertError(t, w, http.StatusForbidden, "forbidden")
		assert.False(t, ts.engine.Paused())
	})

	t.Run("updates the treasury and rates", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		w := ts.do(t, request{method: http.MethodPost, path: "/v1/admin/treasury", account: owner, body: treasuryRequest{Treasury: "0xVault"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, ledger.Address("0xvault"), ts.engine.Treasury())

		w = ts.do(t, request{method: http.MethodPost, path: "/v1/admin/treasury", account: owner, body: treasuryRequest{}})
		assertError(t, w, http.StatusBadRequest, "invalid_address")

		w = ts.do(t, request{method: http.MethodPost, path: "/v1/admin/rates/2", account: owner, body: rateRequest{RateBps: 190}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		rate, err := ts.engine.DailyRate(2)
		require.NoError(t, err)
		assert.Equal(t, int64(190), rate)

		w = ts.do(t, request{method: http.MethodPost, path: "/v1/admin/rates/9", account: owner, body: rateRequest{RateBps: 190}})
		assertError(t, w, http.StatusBadRequest, "invalid_tier")

		w = ts.do(t, request{method: http.MethodPost, path: "/v1/admin/rates/2", account: owner, body: rateRequest{RateBps: 0}})
		assertError(t, w, http.StatusBadRequest, "invalid_rate")
	})
}

func TestAPI_Server_Idempotency(t *testing.T) {
	t.Parallel()

	t.Run("rejects a replayed key", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		key := uuid.NewString()
		req := request{
			method:  http.MethodPost,
			path:    "/v1/deposits",
			account: "0xa",
			body:    map[string]string{"amount": "100"},
			headers: map[string]string{IdempotencyHeader: key},
		}

		require.Equal(t, http.StatusCreated, ts.do(t, req).Code)
		assertError(t, ts.do(t, req), http.StatusConflict, "duplicate_request")
		assert.Equal(t, 1, ts.engine.UserInfo("0xa").DepositCount)
	})

	t.Run("releases the key when the request fails", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		key := uuid.NewString()
		req := request{
			method:  http.MethodPost,
			path:    "/v1/deposits",
			account: "0xa",
			body:    map[string]string{"amount": "1"},
			headers: map[string]string{IdempotencyHeader: key},
		}
		assertError(t, ts.do(t, req), http.StatusBadRequest, "invalid_amount")

		req.body = map[string]string{"amount": "10"}
		require.Equal(t, http.StatusCreated, ts.do(t, req).Code)
	})

	t.Run("requires a uuid", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		w := ts.do(t, request{
			method:  http.MethodPost,
			path:    "/v1/claims",
			account: "0xa",
			headers: map[string]string{IdempotencyHeader: "again"},
		})
		assertError(t, w, http.StatusBadRequest, "invalid_idempotency_key")
	})
}

func TestAPI_Server_RateLimit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(cfg *Config) { cfg.RatePerMinute = 4 })

	w := ts.do(t, request{method: http.MethodGet, path: "/v1/status"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, request{method: http.MethodGet, path: "/v1/status"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "15", w.Header().Get("Retry-After"))

	w = ts.do(t, request{method: http.MethodGet, path: "/v1/status", ip: outsideIP})
	require.Equal(t, http.StatusOK, w.Code, "limits are per client address")

	ts.clock.Advance(16 * time.Second)
	w = ts.do(t, request{method: http.MethodGet, path: "/v1/status"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, request{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, w.Code, "health checks are not limited")
}

func TestAPI_Server_Tiers(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, request{method: http.MethodGet, path: "/v1/tiers"})
	require.Equal(t, http.StatusOK, w.Code)
	tiers := decode[[]tierResponse](t, w)
	require.Len(t, tiers, 5)
	assert.Equal(t, "Diamond", tiers[4].Name)
	assert.True(t, decimal.RequireFromString("2.5").Equal(tiers[4].DailyRatePercent))

	w = ts.do(t, request{method: http.MethodGet, path: "/v1/tiers/lookup?amount=100"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"tier": 2}, decode[map[string]int](t, w))

	w = ts.do(t, request{method: http.MethodGet, path: "/v1/tiers/lookup?amount=4000"})
	assertError(t, w, http.StatusBadRequest, "invalid_amount")

	w = ts.do(t, request{method: http.MethodGet, path: "/v1/tiers/lookup?amount=lots"})
	assertError(t, w, http.StatusBadRequest, "invalid_amount")
}

func TestAPI_Server_Events(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.deposit(t, "0xa", "1000", "").Code)
	require.Equal(t, http.StatusCreated, ts.deposit(t, "0xb", "500", "0xa").Code)

	w := ts.do(t, request{method: http.MethodGet, path: "/v1/events?limit=10"})
	require.Equal(t, http.StatusOK, w.Code)
	evs := decode[[]ledger.Event](t, w)
	require.Len(t, evs, 3)
	assert.Equal(t, ledger.EventReferralPaid, evs[0].Type)
	assert.Equal(t, ledger.Address("0xa"), evs[0].Account)
	assert.Equal(t, ledger.EventDeposited, evs[2].Type)
}

func TestAPI_Server_CORS(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, request{
		method: http.MethodOptions,
		path:   "/v1/deposits",
		headers: map[string]string{
			"Origin":                         testOrigin,
			"Access-Control-Request-Method":  http.MethodPost,
			"Access-Control-Request-Headers": AccountHeader,
		},
	})
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(t, request{
		method:  http.MethodGet,
		path:    "/v1/status",
		headers: map[string]string{"Origin": "https://evil.example"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
