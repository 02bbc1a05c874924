package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_ledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"op", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yield_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds, including the commit",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"op"},
	)

	ReferralCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_ledger_referral_credits_total",
			Help: "Total number of referral commissions credited",
		},
		[]string{"level"},
	)

	CommitFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yield_ledger_commit_failures_total",
			Help: "Total number of change sets refused by the store",
		},
	)

	ActiveDeposits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yield_ledger_active_deposits",
			Help: "Number of deposits that have not reached their cap",
		},
	)

	TotalValueLocked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yield_ledger_total_value_locked",
			Help: "Sum of principal over active deposits",
		},
	)

	CapNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_ledger_cap_notifications_total",
			Help: "Total number of near-cap notifications sent",
		},
		[]string{"status"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yield_ledger_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordOperation records the outcome of one ledger operation.
func RecordOperation(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
	OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordReferralCredit(level int) {
	ReferralCreditsTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
