package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scanworks/reportbroker/internal/config"
	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/core/ports"
	"github.com/scanworks/reportbroker/internal/core/usecase"
	"github.com/scanworks/reportbroker/internal/infrastructure/analyzer/pdfscan"
	"github.com/scanworks/reportbroker/internal/infrastructure/analyzer/scanapi"
	"github.com/scanworks/reportbroker/internal/infrastructure/archive/zipexpand"
	"github.com/scanworks/reportbroker/internal/infrastructure/export/xlsx"
	natsqueue "github.com/scanworks/reportbroker/internal/infrastructure/queue/nats"
	"github.com/scanworks/reportbroker/internal/infrastructure/repository/postgres"
	"github.com/scanworks/reportbroker/internal/infrastructure/resilience"
	"github.com/scanworks/reportbroker/internal/infrastructure/scoring"
	"github.com/scanworks/reportbroker/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *natsqueue.Queue
	Docs      ports.DocumentRepository
	Unmatched ports.UnmatchedReportStore
	Exporter  ports.UnmatchedExporter

	Previewer ports.MatchPreviewer
	Ingestor  ports.BatchIngestor
	Processor ports.BatchProcessor
	QueueSvc  ports.QueueController

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	unmatched := postgres.NewUnmatchedReportRepository(db)
	batches := postgres.NewBatchRepository(db)
	settings := postgres.NewStaffSettingsRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSBatchSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	notifier := natsqueue.NewNotifier(queue.Conn(), cfg.NATSCompletedSubject, cfg.NATSNeedsReviewSubject, executor)

	analyzer, err := buildAnalyzer(cfg, executor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	thresholds, err := config.LoadMatchRules(cfg.MatchRulesPath, domain.MatchThresholds{
		Partial: cfg.MatchPartialThreshold,
		None:    cfg.MatchNoneThreshold,
	})
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load match rules: %w", err)
	}

	matcher := usecase.NewMatchEngine(docs, scoring.NewHybrid(), thresholds)
	pipeline := usecase.NewIngestPipeline(docs, unmatched, storage, analyzer, zipexpand.New(), matcher, notifier, logger)

	ingestor := usecase.NewSubmitBatchUseCase(batches, storage, queue)
	processor := usecase.NewProcessBatchUseCase(batches, storage, pipeline, logger)
	queueSvc := usecase.NewQueueService(docs, settings, storage, notifier, usecase.QueueDefaults{
		MaxConcurrentFiles: cfg.DefaultMaxConcurrentFiles,
		TimeLimit:          cfg.DefaultTimeLimit,
	}, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Docs:      docs,
		Unmatched: unmatched,
		Exporter:  xlsx.NewExporter(),

		Previewer: matcher,
		Ingestor:  ingestor,
		Processor: processor,
		QueueSvc:  queueSvc,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func buildAnalyzer(cfg config.Config, executor *resilience.Executor) (ports.ReportAnalyzer, error) {
	switch cfg.AnalyzerMode {
	case "", "local":
		return pdfscan.New(), nil
	case "remote":
		return scanapi.New(cfg.ScanAPIURL, cfg.ScanAPIKey, executor), nil
	default:
		return nil, fmt.Errorf("unknown analyzer mode %q", cfg.AnalyzerMode)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
