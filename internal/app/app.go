// Package app wires the application together: configuration, logging,
// storage, the source client, and the run orchestrators. Construction order
// matters; everything receives its dependencies explicitly and nothing
// reaches for globals.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
	"github.com/alextesy/stocktalk/internal/services/linker"
	"github.com/alextesy/stocktalk/internal/services/ratelimit"
	"github.com/alextesy/stocktalk/internal/services/scheduler"
	"github.com/alextesy/stocktalk/internal/services/scraper"
	"github.com/alextesy/stocktalk/internal/sources/reddit"
	"github.com/alextesy/stocktalk/internal/storage"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Client         interfaces.SourceClient
	Limiter        *ratelimit.Limiter

	Sources []common.SourceConfig

	incremental *scheduler.SourceScheduler
	backfill    *scheduler.BackfillScheduler
	status      *scheduler.StatusReporter
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := storage.NewStorageManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	sources, tickers, err := common.LoadSources(cfg.Sources.File)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	a.Sources = sources
	logger.Debug().
		Int("sources", len(sources)).
		Int("tickers", len(tickers)).
		Msg("Sources loaded")

	a.Limiter = ratelimit.NewLimiter(cfg.Ingest.RequestsPerMinute, logger)

	client, err := reddit.NewClient(&cfg.Reddit, a.Limiter, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}
	a.Client = client

	content := storageManager.ContentStorage()
	progress := storageManager.ProgressStorage()

	entityLinker := linker.NewCashtagLinker(tickers, logger)
	extractor := scraper.NewExtractor(
		client,
		a.Limiter,
		ratelimit.NewBackoffPolicy(),
		scraper.ExpansionPolicy{
			LargeThreadThreshold: cfg.Ingest.LargeThreadThreshold,
			LargeThreadLimit:     cfg.Ingest.LargeThreadExpansion,
		},
		cfg.Ingest.RetryCeiling(),
		logger,
	)
	filter := scraper.NewIncrementalFilter(content, logger)
	threadScraper := scraper.NewThreadScraper(
		content,
		progress,
		extractor,
		filter,
		entityLinker,
		cfg.Ingest.LinkerWorkers,
		cfg.Ingest.BatchInterval(),
		logger,
	)

	a.incremental = scheduler.NewSourceScheduler(
		client, content, progress, threadScraper, entityLinker,
		sources, cfg.Ingest, logger,
	)
	a.backfill = scheduler.NewBackfillScheduler(
		client, progress, threadScraper,
		sources, cfg.Ingest, logger,
	)
	a.status = scheduler.NewStatusReporter(client, progress, logger)

	logger.Info().
		Int("requests_per_minute", cfg.Ingest.RequestsPerMinute).
		Int("batch_save_interval", cfg.Ingest.BatchInterval()).
		Msg("Application initialization complete")
	return a, nil
}

// RunIncremental executes one incremental pass over every enabled source, or
// over just the named one when source is non-empty.
func (a *App) RunIncremental(ctx context.Context, source string) (*models.RunSummary, error) {
	return a.incremental.Run(ctx, source)
}

// RunBackfill ingests the inclusive UTC date range [from, to], optionally
// restricted to one named source.
func (a *App) RunBackfill(ctx context.Context, from, to time.Time, source string) (*models.RunSummary, error) {
	return a.backfill.Run(ctx, from, to, source)
}

// StatusReports builds progress reports. An empty source selects every
// enabled source.
func (a *App) StatusReports(ctx context.Context, source string, refresh bool) ([]*models.StatusReport, error) {
	names := make([]string, 0, len(a.Sources))
	if source != "" {
		names = append(names, source)
	} else {
		for _, src := range a.Sources {
			if src.Enabled {
				names = append(names, src.Name)
			}
		}
	}

	reports := make([]*models.StatusReport, 0, len(names))
	for _, name := range names {
		report, err := a.status.Report(ctx, name, refresh)
		if err != nil {
			return nil, fmt.Errorf("status for %s: %w", name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Serve runs recurring incremental passes on the configured cron schedule
// until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	server, err := scheduler.NewServer(a.Config.Schedule.Cron, a.incremental, a.Logger)
	if err != nil {
		return err
	}
	a.Logger.Info().
		Str("cron", a.Config.Schedule.Cron).
		Msg("Starting scheduled ingestion")
	return server.Run(ctx)
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
