package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-supply/internal/delivery"
	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/observability"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-supply/internal/procurement"
	"github.com/odyssey-erp/odyssey-supply/jobs"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Principals         PrincipalResolver
	ProcurementHandler *procurement.Handler
	DeliveryHandler    *delivery.Handler
	InventoryHandler   *inventory.Handler
	HistoryHandler     *history.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	HealthChecks       map[string]HealthCheck
}

// NewRouter constructs the chi.Router with supply defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.HealthChecks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(PrincipalMiddleware(params.Principals))
		r.Use(onApprove(ApprovalRateLimit(params.Config.ApprovalRateLimit())))

		if h := params.ProcurementHandler; h != nil {
			r.Route("/requests", h.MountRequestRoutes)
			r.Route("/purchase-orders", h.MountOrderRoutes)
			r.Route("/receipts", h.MountReceiptRoutes)
		}
		if params.DeliveryHandler != nil {
			r.Route("/delivery-orders", params.DeliveryHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
			r.Route("/items", params.InventoryHandler.MountItemRoutes)
		}
		if params.HistoryHandler != nil {
			r.Route("/history", params.HistoryHandler.MountRoutes)
		}
	})

	return r
}

// onApprove applies mw to POST .../approve requests only.
func onApprove(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/approve") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				report[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": overall, "checks": report})
	}
}
