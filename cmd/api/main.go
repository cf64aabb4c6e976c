package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/scanworks/reportbroker/internal/adapters/http"
	"github.com/scanworks/reportbroker/internal/bootstrap"
	"github.com/scanworks/reportbroker/internal/config"
	"github.com/scanworks/reportbroker/internal/observability/logging"
	"github.com/scanworks/reportbroker/internal/observability/metrics"
)

const serviceName = "reportbroker-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	router := httpadapter.NewRouter(
		app.Previewer,
		app.Ingestor,
		app.QueueSvc,
		app.Docs,
		app.Unmatched,
		app.Exporter,
		httpMetrics,
		httpadapter.RouterConfig{
			Service:       serviceName,
			RateLimitRPS:  cfg.APIRateLimitRPS,
			RateBurst:     cfg.APIRateLimitBurst,
			MaxConcurrent: cfg.APIMaxConcurrent,
		},
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
