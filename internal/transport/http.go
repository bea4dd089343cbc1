package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/auth"
	"github.com/vasiliy-maslov/online-shop/internal/handler"
	"github.com/vasiliy-maslov/online-shop/internal/metrics"
)

type Handlers struct {
	Orders   *handler.OrderHandler
	Payments *handler.PaymentHandler
	Webhooks *handler.WebhookHandler
}

// NewRouter mounts /health, /metrics and /webhooks publicly; every other
// route requires an authenticated principal.
func NewRouter(h Handlers, authenticator *auth.Authenticator, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http: request served")
	}))
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	h.Webhooks.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		h.Orders.RegisterRoutes(r)
		h.Payments.RegisterRoutes(r)
	})

	return r
}
