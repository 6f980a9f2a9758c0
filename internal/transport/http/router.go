package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	agencyhandler "fleetledger/internal/agency/handler"
	"fleetledger/internal/cqrs/bus"
	operatorhandler "fleetledger/internal/operator/handler"
	"fleetledger/internal/platform/metrics"
	"fleetledger/internal/platform/middleware"
	"fleetledger/pkg/platform/httputil"
)

// Config carries the credentials the authenticated API surface needs.
type Config struct {
	JWTSigningKey []byte
	APIKeyHash    string
}

// NewRouter assembles the public API. The metrics and health endpoints stay
// outside the authenticated group so probes and scrapers need no credentials.
func NewRouter(cfg Config, b *bus.Bus, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(metrics.Middleware)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.Auth(cfg.JWTSigningKey, cfg.APIKeyHash, logger))
		agencyhandler.New(b, logger).Register(api)
		operatorhandler.New(b, logger).Register(api)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
