package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/jmswll/keyrace-backend/internal/config"
	"github.com/jmswll/keyrace-backend/internal/hub"
	"github.com/jmswll/keyrace-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, logger *zap.Logger, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.Handler(h, logger, cfg.OriginHosts()))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}
