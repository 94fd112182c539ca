package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

// StatusReporter produces the read-only per-source progress report. It never
// writes to either store.
type StatusReporter struct {
	client   interfaces.SourceClient
	progress interfaces.ProgressStorage
	logger   arbor.ILogger
}

// NewStatusReporter creates the status reporter. client may be nil when no
// live refresh will be requested.
func NewStatusReporter(client interfaces.SourceClient, progress interfaces.ProgressStorage, logger arbor.ILogger) *StatusReporter {
	return &StatusReporter{
		client:   client,
		progress: progress,
		logger:   logger,
	}
}

// Report builds the status report for one source. With refresh set, each
// thread's live comment count is fetched from the source; a per-thread
// refresh failure marks that line stale and keeps the persisted count.
func (r *StatusReporter) Report(ctx context.Context, source string, refresh bool) (*models.StatusReport, error) {
	records, err := r.progress.ListBySource(source)
	if err != nil {
		return nil, err
	}

	report := &models.StatusReport{
		Source:      source,
		GeneratedAt: time.Now().UTC(),
		Threads:     make([]models.ThreadStatus, 0, len(records)),
	}

	lastRun, err := r.progress.GetRunStatus(source)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		// Source has never run.
	case err != nil:
		return nil, err
	default:
		report.LastRun = lastRun
	}

	for _, rec := range records {
		status := models.ThreadStatus{
			SourceThreadID: rec.SourceThreadID,
			ThreadType:     rec.ThreadType,
			Title:          rec.Title,
			TotalItems:     rec.TotalItems,
			ScrapedItems:   rec.ScrapedItems,
			IsComplete:     rec.IsComplete,
			LastScrapedAt:  rec.LastScrapedAt,
		}

		if refresh && r.client != nil {
			stub, err := r.client.ThreadByID(ctx, rec.SourceThreadID)
			if err != nil {
				// Degrade gracefully: report the persisted count.
				status.Stale = true
				r.logger.Warn().
					Str("thread_id", rec.SourceThreadID).
					Err(err).
					Msg("Live count refresh failed")
			} else {
				status.TotalItems = stub.NumComments
			}
		}
		report.Threads = append(report.Threads, status)
	}
	return report, nil
}
