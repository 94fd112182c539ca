package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
	"github.com/alextesy/stocktalk/internal/services/workers"
)

// State is the thread scraper's position in its run. ERROR is reachable from
// any state; the in-flight batch rolls back and the thread's progress record
// keeps its last committed value.
type State string

const (
	StateNew        State = "new"
	StateExtracting State = "extracting"
	StateFiltering  State = "filtering"
	StatePersisting State = "persisting"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Options configures one thread scraper run.
type Options struct {
	// ThreadType classifies the thread if its record does not exist yet.
	// Ignored for threads already tracked.
	ThreadType models.ThreadType

	// MaxComments caps comment expansion. Nil resolves adaptively via the
	// expansion policy; zero selects the post-only fast path.
	MaxComments *int

	// Strategy selects the incremental filter. Backfill callers must use
	// StrategyIDSet.
	Strategy Strategy
}

// ThreadScraper orchestrates one thread: load or create the progress record,
// extract, filter, persist in batches, and update progress after every
// durable commit.
type ThreadScraper struct {
	content     interfaces.ContentStorage
	progress    interfaces.ProgressStorage
	extractor   *Extractor
	filter      *IncrementalFilter
	linker      interfaces.EntityLinker
	linkWorkers int
	batchSize   int
	logger      arbor.ILogger
}

// NewThreadScraper creates a thread scraper.
func NewThreadScraper(
	content interfaces.ContentStorage,
	progress interfaces.ProgressStorage,
	extractor *Extractor,
	filter *IncrementalFilter,
	linker interfaces.EntityLinker,
	linkWorkers int,
	batchSize int,
	logger arbor.ILogger,
) *ThreadScraper {
	if batchSize <= 0 {
		batchSize = 200
	}
	if linkWorkers <= 0 {
		linkWorkers = 4
	}
	return &ThreadScraper{
		content:     content,
		progress:    progress,
		extractor:   extractor,
		filter:      filter,
		linker:      linker,
		linkWorkers: linkWorkers,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// ScrapeThread runs the state machine for one thread. The returned result is
// always usable for run aggregation; a non-nil error means the thread hit a
// fatal condition and the caller should log it and move to the next thread.
func (s *ThreadScraper) ScrapeThread(ctx context.Context, stub *models.ThreadStub, opts Options) (*models.ThreadResult, error) {
	result := &models.ThreadResult{ThreadID: stub.ID}
	state := StateNew

	record, err := s.progress.GetOrCreate(stub.ID, &models.ThreadRecord{
		SourceName: stub.Source,
		ThreadType: opts.ThreadType,
		Title:      stub.Title,
		TotalItems: stub.NumComments,
	})
	if err != nil {
		return result, fmt.Errorf("failed to load thread record: %w", err)
	}

	// Refresh the source-reported count on every sighting.
	if stub.NumComments != record.TotalItems {
		if err := s.progress.UpdateTotalItems(stub.ID, stub.NumComments); err != nil {
			return result, fmt.Errorf("failed to refresh total items: %w", err)
		}
	}

	// Post-only fast path: persist the submission and mark the thread
	// complete in one step. Many operational runs only need post-level
	// metadata, not full comment trees.
	if opts.MaxComments != nil && *opts.MaxComments == 0 {
		return s.scrapePostOnly(stub, result)
	}

	state = StateExtracting
	comments, err := s.extractor.Extract(ctx, stub, opts.MaxComments)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// Extraction failure on one thread never aborts the run: the
		// progress record keeps its last committed value and the
		// scheduler moves on.
		s.logger.Warn().
			Str("thread_id", stub.ID).
			Str("state", string(state)).
			Err(err).
			Msg("Extraction failed, skipping thread")
		result.Skipped = true
		return result, nil
	}

	items := make([]*models.ContentItem, 0, len(comments)+1)
	items = append(items, stub.ContentItem())
	items = append(items, comments...)
	result.TotalExtracted = len(items)

	state = StateFiltering
	newItems, err := s.filter.NewItems(stub.ID, items, opts.Strategy)
	if err != nil {
		return result, s.fail(stub.ID, state, err)
	}

	// Drop malformed items before persistence; they are counted as
	// failed, never fatal.
	valid := newItems[:0]
	for _, item := range newItems {
		if !item.Valid() {
			result.Failed++
			s.logger.Warn().
				Str("thread_id", stub.ID).
				Str("item_id", item.SourceItemID).
				Msg("Skipping malformed item")
			continue
		}
		valid = append(valid, item)
	}
	newItems = valid

	s.linkAll(newItems)

	state = StatePersisting
	for start := 0; start < len(newItems); start += s.batchSize {
		end := start + s.batchSize
		if end > len(newItems) {
			end = len(newItems)
		}

		inserted, skipped, err := s.content.InsertBatch(newItems[start:end])
		if err != nil {
			// The store rolled the batch back; progress stays at
			// its last committed value.
			return result, s.fail(stub.ID, state, err)
		}

		// Update-after-commit: the counter moves only once the batch
		// is durable.
		if err := s.progress.UpdateProgress(stub.ID, inserted, false); err != nil {
			return result, s.fail(stub.ID, state, err)
		}

		result.Batches++
		result.NewItems += inserted
		if len(skipped) > 0 {
			s.logger.Debug().
				Str("thread_id", stub.ID).
				Int("skipped", len(skipped)).
				Msg("Batch contained already-persisted items")
		}
	}

	// A thread is complete only when a run observes zero new items and none
	// were dropped as malformed; a dropped item may parse on a later run.
	if result.NewItems == 0 && result.Failed == 0 {
		if err := s.progress.UpdateProgress(stub.ID, 0, true); err != nil {
			return result, s.fail(stub.ID, state, err)
		}
	}

	state = StateComplete
	s.logger.Info().
		Str("thread_id", stub.ID).
		Str("state", string(state)).
		Int("extracted", result.TotalExtracted).
		Int("new", result.NewItems).
		Int("batches", result.Batches).
		Msg("Thread scraped")
	return result, nil
}

// scrapePostOnly persists the single post item and marks the thread complete
// in one step.
func (s *ThreadScraper) scrapePostOnly(stub *models.ThreadStub, result *models.ThreadResult) (*models.ThreadResult, error) {
	post := stub.ContentItem()
	result.TotalExtracted = 1
	if s.linker != nil {
		post.Mentions = s.linker.Link(post)
	}

	err := s.content.Insert(post)
	switch {
	case errors.Is(err, interfaces.ErrDuplicate):
		// Already processed on an earlier run.
	case err != nil:
		return result, s.fail(stub.ID, StatePersisting, err)
	default:
		result.NewItems = 1
		result.Batches = 1
	}

	if err := s.progress.UpdateProgress(stub.ID, result.NewItems, true); err != nil {
		return result, s.fail(stub.ID, StatePersisting, err)
	}

	s.logger.Debug().
		Str("thread_id", stub.ID).
		Int("new", result.NewItems).
		Msg("Post-only thread scraped")
	return result, nil
}

// linkAll runs entity linking over the batch on the bounded pool. Linking is
// CPU-only, so it is exempt from the source rate limit.
func (s *ThreadScraper) linkAll(items []*models.ContentItem) {
	if s.linker == nil || len(items) == 0 {
		return
	}

	pool := workers.NewPool(s.linkWorkers, s.logger)
	pool.Start()
	for _, item := range items {
		item := item
		pool.Submit(func() error {
			item.Mentions = s.linker.Link(item)
			return nil
		})
	}
	pool.Wait()

	// A linking failure is per-item and non-fatal; the item persists
	// without mentions.
	for _, err := range pool.Errors() {
		s.logger.Warn().Err(err).Msg("Entity linking failed for item")
	}
}

func (s *ThreadScraper) fail(threadID string, state State, err error) error {
	s.logger.Error().
		Str("thread_id", threadID).
		Str("state", string(StateError)).
		Str("from", string(state)).
		Err(err).
		Msg("Thread scrape failed")
	return err
}
