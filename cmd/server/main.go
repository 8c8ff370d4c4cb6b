package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jmswll/keyrace-backend/internal/config"
	"github.com/jmswll/keyrace-backend/internal/engine"
	"github.com/jmswll/keyrace-backend/internal/httpapi"
	"github.com/jmswll/keyrace-backend/internal/hub"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	rules := engine.Rules{RequireReady: cfg.RequireReady, RoundMs: cfg.RoundMs}
	h := hub.NewHub(ctx, rules, clockwork.NewRealClock(), logger)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, logger, cfg)

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
