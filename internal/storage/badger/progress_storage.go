package badger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

// ProgressStorage implements the ProgressStorage interface for Badger.
type ProgressStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProgressStorage creates a new ProgressStorage instance
func NewProgressStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProgressStorage {
	return &ProgressStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProgressStorage) GetOrCreate(threadID string, initial *models.ThreadRecord) (*models.ThreadRecord, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}

	var rec models.ThreadRecord
	err := s.db.Store().Get(threadID, &rec)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to get thread record %s: %w", threadID, err)
	}

	now := time.Now()
	created := *initial
	created.SourceThreadID = threadID
	created.CreatedAt = now
	created.UpdatedAt = now

	err = s.db.Store().Insert(threadID, &created)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		// Lost a create race; the existing record wins.
		if err := s.db.Store().Get(threadID, &rec); err != nil {
			return nil, fmt.Errorf("failed to re-get thread record %s: %w", threadID, err)
		}
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create thread record %s: %w", threadID, err)
	}

	s.logger.Debug().
		Str("thread_id", threadID).
		Str("thread_type", string(created.ThreadType)).
		Msg("Created thread record")
	return &created, nil
}

func (s *ProgressStorage) Get(threadID string) (*models.ThreadRecord, error) {
	var rec models.ThreadRecord
	err := s.db.Store().Get(threadID, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread record %s: %w", threadID, err)
	}
	return &rec, nil
}

func (s *ProgressStorage) ListBySource(source string) ([]*models.ThreadRecord, error) {
	var recs []models.ThreadRecord
	err := s.db.Store().Find(&recs, badgerhold.Where("SourceName").Eq(source).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list thread records for %s: %w", source, err)
	}

	result := make([]*models.ThreadRecord, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}

func (s *ProgressStorage) UpdateProgress(threadID string, scrapedDelta int, complete bool) error {
	if scrapedDelta < 0 {
		return fmt.Errorf("scraped delta must be non-negative, got %d", scrapedDelta)
	}

	rec, err := s.Get(threadID)
	if err != nil {
		return err
	}

	now := time.Now()
	rec.ScrapedItems += scrapedDelta
	rec.IsComplete = complete
	rec.LastScrapedAt = &now
	rec.UpdatedAt = now

	if err := s.db.Store().Upsert(threadID, rec); err != nil {
		return fmt.Errorf("failed to update progress for thread %s: %w", threadID, err)
	}
	return nil
}

func (s *ProgressStorage) UpdateTotalItems(threadID string, total int) error {
	rec, err := s.Get(threadID)
	if err != nil {
		return err
	}

	rec.TotalItems = total
	rec.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(threadID, rec); err != nil {
		return fmt.Errorf("failed to update total items for thread %s: %w", threadID, err)
	}
	return nil
}

func (s *ProgressStorage) GetRunStatus(source string) (*models.SourceRunStatus, error) {
	var status models.SourceRunStatus
	err := s.db.Store().Get(source, &status)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run status for %s: %w", source, err)
	}
	return &status, nil
}

func (s *ProgressStorage) UpsertRunStatus(status *models.SourceRunStatus) error {
	if status.Source == "" {
		return fmt.Errorf("run status source is required")
	}
	if err := s.db.Store().Upsert(status.Source, status); err != nil {
		return fmt.Errorf("failed to upsert run status for %s: %w", status.Source, err)
	}
	return nil
}
