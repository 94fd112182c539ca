package badger

import (
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

// ContentStorage implements the ContentStorage interface for Badger.
// Uniqueness on SourceItemID is enforced by using it as the store key.
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) Insert(item *models.ContentItem) error {
	if item.SourceItemID == "" {
		return fmt.Errorf("content item ID is required")
	}
	if item.IngestedAt.IsZero() {
		item.IngestedAt = time.Now()
	}

	err := s.db.Store().Insert(item.SourceItemID, item)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return interfaces.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert content item: %w", err)
	}
	return nil
}

// InsertBatch persists the batch inside one Badger transaction. Duplicates
// are skipped and reported by ID; any other failure rolls the whole batch
// back so a partial batch is never committed.
func (s *ContentStorage) InsertBatch(items []*models.ContentItem) (int, []string, error) {
	if len(items) == 0 {
		return 0, nil, nil
	}

	inserted := 0
	var skipped []string
	now := time.Now()

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		for _, item := range items {
			if item.SourceItemID == "" {
				return fmt.Errorf("content item ID is required")
			}
			if item.IngestedAt.IsZero() {
				item.IngestedAt = now
			}
			err := s.db.Store().TxInsert(txn, item.SourceItemID, item)
			if errors.Is(err, badgerhold.ErrKeyExists) {
				skipped = append(skipped, item.SourceItemID)
				continue
			}
			if err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to insert batch: %w", err)
	}
	return inserted, skipped, nil
}

func (s *ContentStorage) ExistsByExternalID(id string) (bool, error) {
	var item models.ContentItem
	err := s.db.Store().Get(id, &item)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check content item: %w", err)
	}
	return true, nil
}

func (s *ContentStorage) BulkCheckExisting(ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		var item models.ContentItem
		for _, id := range ids {
			err := s.db.Store().TxGet(txn, id, &item)
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			existing[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bulk-check content items: %w", err)
	}
	return existing, nil
}

func (s *ContentStorage) ExistingIDsForThread(threadID string) (map[string]struct{}, error) {
	var items []models.ContentItem
	err := s.db.Store().Find(&items, badgerhold.Where("ThreadID").Eq(threadID))
	if err != nil {
		return nil, fmt.Errorf("failed to list content items for thread %s: %w", threadID, err)
	}

	ids := make(map[string]struct{}, len(items))
	for i := range items {
		ids[items[i].SourceItemID] = struct{}{}
	}
	return ids, nil
}

func (s *ContentStorage) LastSeenTimestampForThread(threadID string) (*time.Time, error) {
	var items []models.ContentItem
	err := s.db.Store().Find(&items,
		badgerhold.Where("ThreadID").Eq(threadID).SortBy("CreatedAt").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to find last-seen timestamp for thread %s: %w", threadID, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	ts := items[0].CreatedAt
	return &ts, nil
}
