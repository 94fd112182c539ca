// Package scheduler contains the run orchestrators: the incremental source
// scheduler, the backfill scheduler, the status reporter, and the cron server
// that drives recurring incremental runs.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
	"github.com/alextesy/stocktalk/internal/services/scraper"
)

// SourceScheduler runs one incremental pass over every enabled source. Each
// source gets two sequential phases: recurring discussion threads first, then
// top content from a recent window. Sources are isolated from each other's
// failures.
type SourceScheduler struct {
	client   interfaces.SourceClient
	content  interfaces.ContentStorage
	progress interfaces.ProgressStorage
	scraper  *scraper.ThreadScraper
	linker   interfaces.EntityLinker
	sources  []common.SourceConfig
	ingest   common.IngestConfig
	logger   arbor.ILogger
}

// NewSourceScheduler creates the incremental scheduler.
func NewSourceScheduler(
	client interfaces.SourceClient,
	content interfaces.ContentStorage,
	progress interfaces.ProgressStorage,
	threadScraper *scraper.ThreadScraper,
	linker interfaces.EntityLinker,
	sources []common.SourceConfig,
	ingest common.IngestConfig,
	logger arbor.ILogger,
) *SourceScheduler {
	return &SourceScheduler{
		client:   client,
		content:  content,
		progress: progress,
		scraper:  threadScraper,
		linker:   linker,
		sources:  sources,
		ingest:   ingest,
		logger:   logger,
	}
}

// Run executes one incremental pass over every enabled source, or over just
// the named one when only is non-empty. It always returns a summary once the
// pass starts, even when every source failed; the error is non-nil only when
// the run was cancelled or the named source is unknown.
func (s *SourceScheduler) Run(ctx context.Context, only string) (*models.RunSummary, error) {
	selected, err := selectSources(s.sources, only)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{
		RunID:     uuid.New().String(),
		Mode:      models.RunModeIncremental,
		StartedAt: time.Now().UTC(),
	}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("sources", len(selected)).
		Msg("Starting incremental run")

	for i := range selected {
		src := &selected[i]
		if !src.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Sources++

		ingested, err := s.runSource(ctx, src, summary)
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
			// A source-level failure (auth, transport) aborts this
			// source only; the rest of the run continues.
			status.Status = models.RunStateError
			status.ErrorMessage = err.Error()
			summary.SourceErrors = append(summary.SourceErrors, fmt.Sprintf("%s: %v", src.Name, err))
			s.logger.Error().
				Str("run_id", summary.RunID).
				Str("source", src.Name).
				Err(err).
				Msg("Source run failed")
		}
		if err := s.progress.UpsertRunStatus(status); err != nil {
			s.logger.Error().
				Str("source", src.Name).
				Err(err).
				Msg("Failed to record source run status")
		}
	}

	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("threads", summary.ThreadsProcessed).
		Int("new_items", summary.ItemsNew).
		Int("batches", summary.BatchesCommitted).
		Int("skipped", summary.ThreadsSkipped).
		Msg("Incremental run finished")
	return summary, nil
}

// runSource executes both phases for one source and returns the number of
// items it ingested. A returned error means the source failed at the
// discovery level, not that an individual thread did.
func (s *SourceScheduler) runSource(ctx context.Context, src *common.SourceConfig, summary *models.RunSummary) (int, error) {
	ingested, err := s.discussionPhase(ctx, src, summary)
	if err != nil {
		return ingested, fmt.Errorf("discussion phase: %w", err)
	}

	topIngested, err := s.topContentPhase(ctx, src, summary)
	ingested += topIngested
	if err != nil {
		return ingested, fmt.Errorf("top content phase: %w", err)
	}
	return ingested, nil
}

// discussionPhase scans recent submissions for recurring discussion threads
// by keyword and scrapes each with last-seen filtering.
func (s *SourceScheduler) discussionPhase(ctx context.Context, src *common.SourceConfig, summary *models.RunSummary) (int, error) {
	stubs, err := s.client.RecentThreads(ctx, src.Name, s.ingest.DiscoveryLimit)
	if err != nil {
		return 0, err
	}

	ingested := 0
	for _, stub := range stubs {
		if ctx.Err() != nil {
			return ingested, ctx.Err()
		}
		if !src.MatchesDiscussion(stub.Title) {
			continue
		}

		limit := src.DailyDiscussionMaxComments
		result, err := s.scraper.ScrapeThread(ctx, stub, scraper.Options{
			ThreadType:  discussionType(stub.Title),
			MaxComments: &limit,
			Strategy:    scraper.StrategyLastSeen,
		})
		summary.Add(result)
		ingested += result.NewItems
		if err != nil {
			// Per-thread fatal: batch rolled back, move on.
			s.logger.Warn().
				Str("source", src.Name).
				Str("thread_id", stub.ID).
				Err(err).
				Msg("Discussion thread failed")
		}
	}

	s.logger.Info().
		Str("source", src.Name).
		Int("scanned", len(stubs)).
		Int("ingested", ingested).
		Msg("Discussion phase done")
	return ingested, nil
}

// topContentPhase scrapes the window's top submissions, excluding anything
// the discussion phase already owns. A per-source comment cap of zero takes
// the bulk fast path: posts only, no comment trees, one batched store write.
func (s *SourceScheduler) topContentPhase(ctx context.Context, src *common.SourceConfig, summary *models.RunSummary) (int, error) {
	stubs, err := s.client.TopThreads(ctx, src.Name, src.TopWindow, src.MaxTopPostsPerRun)
	if err != nil {
		return 0, err
	}

	kept := stubs[:0]
	for _, stub := range stubs {
		if src.MatchesDiscussion(stub.Title) {
			continue
		}
		kept = append(kept, stub)
	}

	if src.RegularPostMaxComments == 0 {
		return s.bulkTopPosts(ctx, src, kept, summary)
	}

	ingested := 0
	for _, stub := range kept {
		if ctx.Err() != nil {
			return ingested, ctx.Err()
		}
		limit := src.RegularPostMaxComments
		result, err := s.scraper.ScrapeThread(ctx, stub, scraper.Options{
			ThreadType:  models.ThreadTypeTopPost,
			MaxComments: &limit,
			Strategy:    scraper.StrategyLastSeen,
		})
		summary.Add(result)
		ingested += result.NewItems
		if err != nil {
			s.logger.Warn().
				Str("source", src.Name).
				Str("thread_id", stub.ID).
				Err(err).
				Msg("Top post failed")
		}
	}
	return ingested, nil
}

// bulkTopPosts persists top submissions post-only in a single batch: one
// existence check for the whole set, one atomic insert, then per-thread
// progress records. No per-item store round trips.
func (s *SourceScheduler) bulkTopPosts(ctx context.Context, src *common.SourceConfig, stubs []*models.ThreadStub, summary *models.RunSummary) (int, error) {
	if len(stubs) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(stubs))
	for _, stub := range stubs {
		ids = append(ids, stub.ID)
	}
	existing, err := s.content.BulkCheckExisting(ids)
	if err != nil {
		return 0, fmt.Errorf("bulk existence check: %w", err)
	}

	fresh := make([]*models.ThreadStub, 0, len(stubs))
	items := make([]*models.ContentItem, 0, len(stubs))
	for _, stub := range stubs {
		if _, seen := existing[stub.ID]; seen {
			continue
		}
		item := stub.ContentItem()
		if s.linker != nil {
			item.Mentions = s.linker.Link(item)
		}
		fresh = append(fresh, stub)
		items = append(items, item)
	}

	inserted := 0
	dup := make(map[string]struct{})
	if len(items) > 0 {
		var skipped []string
		inserted, skipped, err = s.content.InsertBatch(items)
		if err != nil {
			return 0, fmt.Errorf("bulk insert: %w", err)
		}
		// A post can slip past the pre-check and still be a duplicate at
		// insert time; its progress must not count it as new.
		for _, id := range skipped {
			dup[id] = struct{}{}
		}
		if len(skipped) > 0 {
			s.logger.Debug().
				Str("source", src.Name).
				Int("skipped", len(skipped)).
				Msg("Bulk batch contained already-persisted posts")
		}
	}

	for _, stub := range fresh {
		if _, err := s.progress.GetOrCreate(stub.ID, &models.ThreadRecord{
			SourceName: stub.Source,
			ThreadType: models.ThreadTypeTopPost,
			Title:      stub.Title,
			TotalItems: stub.NumComments,
		}); err != nil {
			return inserted, fmt.Errorf("progress record: %w", err)
		}

		newItems, batches := 1, 1
		if _, raced := dup[stub.ID]; raced {
			newItems, batches = 0, 0
		}
		if err := s.progress.UpdateProgress(stub.ID, newItems, true); err != nil {
			return inserted, fmt.Errorf("progress update: %w", err)
		}
		summary.Add(&models.ThreadResult{
			ThreadID:       stub.ID,
			NewItems:       newItems,
			TotalExtracted: 1,
			Batches:        batches,
		})
	}

	s.logger.Info().
		Str("source", src.Name).
		Int("candidates", len(stubs)).
		Int("new", inserted).
		Msg("Bulk top-post phase done")
	return inserted, nil
}

// selectSources returns the sources a run covers: all of them when only is
// empty, otherwise exactly the named one. The name is normalized the same way
// the sources file normalizes it.
func selectSources(sources []common.SourceConfig, only string) ([]common.SourceConfig, error) {
	if only == "" {
		return sources, nil
	}
	only = strings.TrimPrefix(strings.ToLower(only), "r/")
	for _, src := range sources {
		if src.Name != only {
			continue
		}
		if !src.Enabled {
			return nil, fmt.Errorf("source %q is disabled", only)
		}
		return []common.SourceConfig{src}, nil
	}
	return nil, fmt.Errorf("unknown source %q", only)
}

// discussionType classifies a recurring discussion thread from its title.
// The type is sticky: the progress store ignores it for existing records.
func discussionType(title string) models.ThreadType {
	if strings.Contains(strings.ToLower(title), "weekend") {
		return models.ThreadTypeWeekend
	}
	return models.ThreadTypeDaily
}
