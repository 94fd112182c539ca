package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
	"github.com/alextesy/stocktalk/internal/services/scraper"
)

// BackfillScheduler ingests a historical date range day by day. Backfill
// always filters by ID set, never by last-seen timestamp: revisited
// historical threads make creation-time ordering meaningless across runs.
//
// Runs over a range are split-invariant: backfilling [D1,D3] produces the
// same stored state as [D1,D2] followed by [D2+1,D3], because discovery
// buckets threads by UTC creation date and the ID set makes persistence
// idempotent.
type BackfillScheduler struct {
	client   interfaces.SourceClient
	progress interfaces.ProgressStorage
	scraper  *scraper.ThreadScraper
	sources  []common.SourceConfig
	ingest   common.IngestConfig
	logger   arbor.ILogger
}

// NewBackfillScheduler creates the backfill scheduler.
func NewBackfillScheduler(
	client interfaces.SourceClient,
	progress interfaces.ProgressStorage,
	threadScraper *scraper.ThreadScraper,
	sources []common.SourceConfig,
	ingest common.IngestConfig,
	logger arbor.ILogger,
) *BackfillScheduler {
	return &BackfillScheduler{
		client:   client,
		progress: progress,
		scraper:  threadScraper,
		sources:  sources,
		ingest:   ingest,
		logger:   logger,
	}
}

// Run backfills the inclusive UTC date range [from, to] for every enabled
// source, or for just the named one when only is non-empty. Both bounds are
// truncated to UTC midnight before use.
func (b *BackfillScheduler) Run(ctx context.Context, from, to time.Time, only string) (*models.RunSummary, error) {
	fromDay := truncateToDay(from)
	toDay := truncateToDay(to)
	if fromDay.After(toDay) {
		return nil, fmt.Errorf("invalid backfill range: %s is after %s",
			fromDay.Format("2006-01-02"), toDay.Format("2006-01-02"))
	}

	selected, err := selectSources(b.sources, only)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{
		RunID:     uuid.New().String(),
		Mode:      models.RunModeBackfill,
		StartedAt: time.Now().UTC(),
	}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	b.logger.Info().
		Str("run_id", summary.RunID).
		Str("from", fromDay.Format("2006-01-02")).
		Str("to", toDay.Format("2006-01-02")).
		Msg("Starting backfill run")

	for i := range selected {
		src := &selected[i]
		if !src.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Sources++

		ingested, err := b.backfillSource(ctx, src, fromDay, toDay, summary)
		status := &models.SourceRunStatus{
			Source:        src.Name,
			RunID:         summary.RunID,
			LastRunAt:     time.Now().UTC(),
			ItemsIngested: ingested,
			Status:        models.RunStateSuccess,
		}
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			status.Status = models.RunStateError
			status.ErrorMessage = err.Error()
			summary.SourceErrors = append(summary.SourceErrors, fmt.Sprintf("%s: %v", src.Name, err))
			b.logger.Error().
				Str("run_id", summary.RunID).
				Str("source", src.Name).
				Err(err).
				Msg("Source backfill failed")
		}
		if err := b.progress.UpsertRunStatus(status); err != nil {
			b.logger.Error().
				Str("source", src.Name).
				Err(err).
				Msg("Failed to record source run status")
		}
	}

	b.logger.Info().
		Str("run_id", summary.RunID).
		Int("threads", summary.ThreadsProcessed).
		Int("new_items", summary.ItemsNew).
		Msg("Backfill run finished")
	return summary, nil
}

// backfillSource scans the source's recent listing once, buckets threads by
// UTC creation date, and scrapes each in-range day's bucket oldest day first.
func (b *BackfillScheduler) backfillSource(ctx context.Context, src *common.SourceConfig, fromDay, toDay time.Time, summary *models.RunSummary) (int, error) {
	stubs, err := b.client.RecentThreads(ctx, src.Name, b.ingest.BackfillScanLimit)
	if err != nil {
		return 0, err
	}

	byDay := make(map[time.Time][]*models.ThreadStub)
	for _, stub := range stubs {
		day := truncateToDay(stub.CreatedAt)
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}
		byDay[day] = append(byDay[day], stub)
	}

	ingested := 0
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		bucket := byDay[day]
		if len(bucket) == 0 {
			continue
		}
		b.logger.Info().
			Str("source", src.Name).
			Str("day", day.Format("2006-01-02")).
			Int("threads", len(bucket)).
			Msg("Backfilling day")

		for _, stub := range bucket {
			if ctx.Err() != nil {
				return ingested, ctx.Err()
			}

			opts := scraper.Options{Strategy: scraper.StrategyIDSet}
			if src.MatchesDiscussion(stub.Title) {
				limit := src.DailyDiscussionMaxComments
				opts.ThreadType = discussionType(stub.Title)
				opts.MaxComments = &limit
			} else {
				limit := src.RegularPostMaxComments
				opts.ThreadType = models.ThreadTypeTopPost
				opts.MaxComments = &limit
			}

			result, err := b.scraper.ScrapeThread(ctx, stub, opts)
			summary.Add(result)
			ingested += result.NewItems
			if err != nil {
				b.logger.Warn().
					Str("source", src.Name).
					Str("thread_id", stub.ID).
					Err(err).
					Msg("Backfill thread failed")
			}
		}
	}
	return ingested, nil
}

// truncateToDay drops a timestamp to UTC midnight.
func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
