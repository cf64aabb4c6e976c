package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanworks/reportbroker/internal/bootstrap"
	"github.com/scanworks/reportbroker/internal/config"
	"github.com/scanworks/reportbroker/internal/observability/logging"
	"github.com/scanworks/reportbroker/internal/observability/metrics"
)

const serviceName = "reportbroker-worker"

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

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSBatchSubject)
	err = app.Queue.SubscribeBatchSubmitted(ctx, func(handlerCtx context.Context, batchID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		if batch, lookupErr := app.Ingestor.GetBatch(processCtx, batchID); lookupErr == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(batch.CreatedAt))
		}

		workerMetrics.StartBatch()
		start := time.Now()
		processErr := app.Processor.ProcessByID(processCtx, batchID)
		workerMetrics.FinishBatch(serviceName, time.Since(start), processErr)

		if processErr == nil {
			if batch, lookupErr := app.Ingestor.GetBatch(processCtx, batchID); lookupErr == nil && batch.Result != nil {
				for _, file := range batch.Result.Files {
					workerMetrics.RecordFileOutcome(serviceName, file.Outcome)
				}
			}
		}
		return processErr
	})
	if err != nil {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}
