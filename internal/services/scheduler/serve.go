package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Server drives recurring incremental runs on a cron schedule. Ticks that
// arrive while a run is still in progress are skipped, never queued.
type Server struct {
	cron      *cron.Cron
	scheduler *SourceScheduler
	logger    arbor.ILogger
	running   atomic.Bool
}

// NewServer creates the cron server from a standard 5-field cron expression.
func NewServer(spec string, scheduler *SourceScheduler, logger arbor.ILogger) (*Server, error) {
	s := &Server{
		cron:      cron.New(),
		scheduler: scheduler,
		logger:    logger,
	}

	_, err := s.cron.AddFunc(spec, func() { s.tick() })
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// an in-flight run to finish.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("Scheduler started")
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info().Msg("Shutting down, waiting for in-flight run")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Server) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Previous run still in progress, skipping tick")
		return
	}
	defer s.running.Store(false)

	summary, err := s.scheduler.Run(context.Background(), "")
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed")
		return
	}
	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("new_items", summary.ItemsNew).
		Dur("duration", summary.Duration).
		Msg("Scheduled run complete")
}
