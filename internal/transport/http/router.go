// Package httptransport is the thin HTTP layer. Handlers decode, delegate
// to the ledger and draft services, and encode; no business logic lives
// here.
package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civreg/internal/event/draft"
	"civreg/internal/event/ledger"
	"civreg/internal/health"
	"civreg/internal/platform/metrics"
	"civreg/internal/platform/middleware"
)

// Handler carries the services the routes delegate to.
type Handler struct {
	ledger       *ledger.Service
	drafts       *draft.Manager
	checker      *health.Checker
	logger       *slog.Logger
	meter        *metrics.Metrics
	awaitMaxWait time.Duration
}

func NewHandler(
	ledger *ledger.Service,
	drafts *draft.Manager,
	checker *health.Checker,
	logger *slog.Logger,
	meter *metrics.Metrics,
	awaitMaxWait time.Duration,
) *Handler {
	return &Handler{
		ledger:       ledger,
		drafts:       drafts,
		checker:      checker,
		logger:       logger,
		meter:        meter,
		awaitMaxWait: awaitMaxWait,
	}
}

// NewRouter wires all endpoints. Everything under /events and /drafts
// requires a forwarded identity.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(latency(h.meter))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.RequireIdentity(h.logger))

		r.Post("/events/actions", h.handleSubmitAction)
		r.Get("/events/{eventID}", h.handleGetEvent)
		r.Post("/events/{eventID}/assign", h.handleAssign)
		r.Post("/events/{eventID}/unassign", h.handleUnassign)
		r.Delete("/events/{eventID}", h.handleDeleteEvent)

		r.Post("/drafts", h.handleCreateDraft)
		r.Get("/drafts", h.handleListDrafts)
		r.Delete("/drafts/{transactionID}", h.handleDiscardDraft)
	})

	return r
}

func latency(meter *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := middleware.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			meter.ObserveHTTP(r.Method, route, strconv.Itoa(rec.Status), time.Since(start))
		})
	}
}
