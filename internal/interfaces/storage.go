package interfaces

import (
	"errors"
	"time"

	"github.com/alextesy/stocktalk/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on an insert whose key already exists.
	// Callers treat it as already-processed, not as a run failure.
	ErrDuplicate = errors.New("duplicate record")
)

// ContentStorage is the article/comment store consumed by the engine.
type ContentStorage interface {
	// Insert persists one item. Returns ErrDuplicate if the item's
	// SourceItemID already exists.
	Insert(item *models.ContentItem) error

	// InsertBatch persists a batch atomically, skipping duplicates.
	// Returns the inserted count and the IDs skipped as duplicates; on
	// error the whole batch is rolled back and nothing is persisted.
	InsertBatch(items []*models.ContentItem) (inserted int, skipped []string, err error)

	ExistsByExternalID(id string) (bool, error)

	// BulkCheckExisting returns the subset of ids already persisted.
	BulkCheckExisting(ids []string) (map[string]struct{}, error)

	// ExistingIDsForThread returns every persisted item ID for a thread.
	ExistingIDsForThread(threadID string) (map[string]struct{}, error)

	// LastSeenTimestampForThread returns the creation time of the most
	// recently created item persisted for the thread, or nil when the
	// thread has no items yet.
	LastSeenTimestampForThread(threadID string) (*time.Time, error)
}

// ProgressStorage is the per-thread progress store consumed by the engine.
type ProgressStorage interface {
	// GetOrCreate returns the existing record or creates it from initial.
	// ThreadType is immutable after creation: initial's type is ignored
	// for existing records.
	GetOrCreate(threadID string, initial *models.ThreadRecord) (*models.ThreadRecord, error)

	Get(threadID string) (*models.ThreadRecord, error)

	ListBySource(source string) ([]*models.ThreadRecord, error)

	// UpdateProgress adds scrapedDelta to the thread's scraped count,
	// stamps LastScrapedAt, and sets the completion flag. scrapedDelta
	// must be non-negative; ScrapedItems never decreases.
	UpdateProgress(threadID string, scrapedDelta int, complete bool) error

	// UpdateTotalItems records the latest comment count reported by the
	// source.
	UpdateTotalItems(threadID string, total int) error

	// GetRunStatus returns the source's last run record, or ErrNotFound
	// when the source has never run.
	GetRunStatus(source string) (*models.SourceRunStatus, error)

	UpsertRunStatus(status *models.SourceRunStatus) error
}

// StorageManager owns the database connection and hands out the stores.
type StorageManager interface {
	ContentStorage() ContentStorage
	ProgressStorage() ProgressStorage
	Close() error
}
