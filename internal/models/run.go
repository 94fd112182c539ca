package models

import "time"

// RunMode selects the operational surface of a run.
type RunMode string

const (
	RunModeIncremental RunMode = "incremental"
	RunModeBackfill    RunMode = "backfill"
	RunModeStatus      RunMode = "status"
)

// RunState records the outcome of a source's run in SourceRunStatus.
type RunState string

const (
	RunStateSuccess RunState = "success"
	RunStateError   RunState = "error"
)

// SourceRunStatus is the per-source run record, overwritten on every run.
// It is written once at the end of each run, whether the run succeeded or
// failed, and read at scheduler start for diagnostics only.
type SourceRunStatus struct {
	Source        string // Badger key
	RunID         string
	LastRunAt     time.Time
	ItemsIngested int
	Status        RunState
	ErrorMessage  string
}

// RunSummary aggregates statistics across all phases and sources of one run.
// A run always ends with a summary, possibly all-zero.
type RunSummary struct {
	RunID            string
	Mode             RunMode
	StartedAt        time.Time
	Duration         time.Duration
	Sources          int
	ThreadsProcessed int
	ItemsNew         int
	ItemsTotal       int
	BatchesCommitted int
	ItemsFailed      int
	ThreadsSkipped   int
	SourceErrors     []string
}

// Add merges a per-thread result into the summary.
func (s *RunSummary) Add(r *ThreadResult) {
	s.ThreadsProcessed++
	s.ItemsNew += r.NewItems
	s.ItemsTotal += r.TotalExtracted
	s.BatchesCommitted += r.Batches
	s.ItemsFailed += r.Failed
	if r.Skipped {
		s.ThreadsSkipped++
	}
}

// ThreadResult is the outcome of one thread scraper run.
type ThreadResult struct {
	ThreadID       string
	NewItems       int
	TotalExtracted int
	Batches        int
	Failed         int
	Skipped        bool // extraction abandoned after exhausting retries
}

// StatusReport is the read-only progress report produced by status mode.
type StatusReport struct {
	Source      string
	GeneratedAt time.Time
	Threads     []ThreadStatus
	LastRun     *SourceRunStatus
}

// ThreadStatus is one thread's line in the status report. Stale reports that
// the live-count refresh failed for this thread and TotalItems is the last
// persisted value.
type ThreadStatus struct {
	SourceThreadID string
	ThreadType     ThreadType
	Title          string
	TotalItems     int
	ScrapedItems   int
	IsComplete     bool
	LastScrapedAt  *time.Time
	Stale          bool
}
