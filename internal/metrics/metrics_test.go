package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/online-shop/internal/metrics"
)

func TestMetrics_DomainCounters(t *testing.T) {
	m := metrics.New("shop")

	m.OrderCreated()
	m.OrderCreated()
	m.PaymentIssued("created")
	m.WebhookProcessed("paid")
	m.WebhookProcessed("not_found")
	m.WebhookProcessed("not_found")

	expected := `
# HELP shop_webhooks_total Payment webhooks by reconciliation result.
# TYPE shop_webhooks_total counter
shop_webhooks_total{result="not_found"} 2
shop_webhooks_total{result="paid"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "shop_webhooks_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "shop_orders_created_total", "shop_payments_issued_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.OrderCreated()
		m.PaymentIssued("existing")
		m.WebhookProcessed("paid")

		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTeapot, rr.Code)
	})
}

func TestMetrics_MiddlewareLabelsByRoute(t *testing.T) {
	m := metrics.New("shop")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/order/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/order/"+id, nil))
	}

	expected := `
# HELP shop_http_requests_total HTTP requests by method, route template and status code.
# TYPE shop_http_requests_total counter
shop_http_requests_total{method="GET",route="/order/{id}",status="404"} 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "shop_http_requests_total"))
}
