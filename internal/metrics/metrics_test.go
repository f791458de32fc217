package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"eco-tiket/internal/metrics"
)

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/api/ledger/accounts/{accountId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"acc_budi", "acc_sari"} {
		req := httptest.NewRequest(http.MethodGet, "/api/ledger/accounts/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Both requests land on the same pattern label, not per-account labels.
	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(
		"GET", "/api/ledger/accounts/{accountId}", "200"))
	assert.Equal(t, float64(2), count)
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Post("/api/ledger/exchange", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/exchange", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(
		"POST", "/api/ledger/exchange", "400"))
	assert.Equal(t, float64(1), count)
}
