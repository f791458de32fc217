package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecotiket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecotiket_exchanges_total",
			Help: "Total number of recorded bottle exchanges",
		},
		[]string{"bottle_type"},
	)

	TicketsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecotiket_tickets_issued_total",
			Help: "Total ticket credits issued by exchanges",
		},
	)

	TicketsUsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecotiket_tickets_used_total",
			Help: "Total ticket credits consumed for rides",
		},
	)

	TicketsForfeitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecotiket_tickets_forfeited_total",
			Help: "Total ticket credits swept after expiry",
		},
	)

	PointsAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecotiket_points_awarded_total",
			Help: "Total points awarded for threshold crossings",
		},
	)

	ReversalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecotiket_reversals_total",
			Help: "Total administrative reversals",
		},
		[]string{"type"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecotiket_sweep_duration_seconds",
			Help:    "Duration of per-account expiration sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecotiket_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Middleware counts requests per method, route pattern and status.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the chi route pattern so account ids do not blow up
		// the label cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}
