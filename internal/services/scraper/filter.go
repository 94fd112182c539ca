package scraper

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

// Strategy selects how the incremental filter decides which items are new.
type Strategy int

const (
	// StrategyLastSeen keeps items created after the thread's last-seen
	// timestamp. Preferred when the thread has history: it avoids a
	// per-item existence query and stays monotonic even if earlier IDs
	// were missed. Falls back to the ID set when no timestamp exists.
	StrategyLastSeen Strategy = iota

	// StrategyIDSet keeps items whose IDs are not yet persisted. Used on
	// first runs and always on backfill, where timestamps are not a
	// reliable ordering signal across revisited historical threads.
	StrategyIDSet
)

// String returns the strategy name for logging.
func (s Strategy) String() string {
	if s == StrategyIDSet {
		return "id_set"
	}
	return "last_seen"
}

// IncrementalFilter determines which extracted items have not been persisted
// yet.
type IncrementalFilter struct {
	content interfaces.ContentStorage
	logger  arbor.ILogger
}

// NewIncrementalFilter creates an incremental filter over the content store.
func NewIncrementalFilter(content interfaces.ContentStorage, logger arbor.ILogger) *IncrementalFilter {
	return &IncrementalFilter{
		content: content,
		logger:  logger,
	}
}

// NewItems returns the subset of items that are new for the thread under the
// given strategy.
func (f *IncrementalFilter) NewItems(threadID string, items []*models.ContentItem, strategy Strategy) ([]*models.ContentItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if strategy == StrategyLastSeen {
		lastSeen, err := f.content.LastSeenTimestampForThread(threadID)
		if err != nil {
			return nil, fmt.Errorf("failed to load last-seen timestamp: %w", err)
		}
		if lastSeen != nil {
			kept := make([]*models.ContentItem, 0, len(items))
			for _, item := range items {
				if item.CreatedAt.After(*lastSeen) {
					kept = append(kept, item)
				}
			}
			f.logger.Debug().
				Str("thread_id", threadID).
				Str("strategy", strategy.String()).
				Int("total", len(items)).
				Int("new", len(kept)).
				Msg("Filtered items by last-seen timestamp")
			return kept, nil
		}
		// First sighting of the thread: no timestamp to compare
		// against, fall through to the ID set.
	}

	existing, err := f.content.ExistingIDsForThread(threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing IDs: %w", err)
	}

	kept := make([]*models.ContentItem, 0, len(items))
	for _, item := range items {
		if _, seen := existing[item.SourceItemID]; !seen {
			kept = append(kept, item)
		}
	}
	f.logger.Debug().
		Str("thread_id", threadID).
		Str("strategy", "id_set").
		Int("total", len(items)).
		Int("new", len(kept)).
		Msg("Filtered items by ID set")
	return kept, nil
}
