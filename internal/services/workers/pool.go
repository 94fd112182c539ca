// Package workers provides a bounded worker pool for CPU-only work such as
// entity linking. Nothing submitted here may perform network calls subject
// to the source rate limit; that traffic stays on the single-threaded path.
package workers

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Job is a work item to be processed by the pool.
type Job func() error

// Pool runs jobs on a fixed number of workers.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
	errors     []error
	errorsMu   sync.Mutex
	logger     arbor.ILogger
}

// NewPool creates a worker pool with the given size.
func NewPool(maxWorkers int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Pool{
		jobs:       make(chan Job, maxWorkers*2),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit queues a job. Blocks when the queue is full.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Wait closes the queue and blocks until all queued jobs finish.
func (p *Pool) Wait() {
	close(p.jobs)
	p.wg.Wait()
}

// Errors returns the errors collected from failed jobs.
func (p *Pool) Errors() []error {
	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()
	return p.errors
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.runJob(job); err != nil {
			p.errorsMu.Lock()
			p.errors = append(p.errors, err)
			p.errorsMu.Unlock()
		}
	}
}

// runJob executes one job, converting a panic into an error so a single bad
// item cannot take down the run.
func (p *Pool) runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker job panicked: %v", r)
			p.logger.Warn().Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered panicked worker job")
		}
	}()
	return job()
}
