package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eserdar/outreach-sequencer/internal/queue"
)

// Pool manages a fixed number of worker goroutines that process fired
// delivery jobs.
type Pool struct {
	numWorkers int
	jobs       chan queue.Job
	process    func(ctx context.Context, job queue.Job)
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers. Each job
// is handed to process exactly once.
func NewPool(numWorkers int, process func(ctx context.Context, job queue.Job), logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan queue.Job, numWorkers*2),
		process:    process,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool via the jobs channel.
func (p *Pool) Submit(job queue.Job) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker is a single goroutine that processes jobs from the channel.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.process(ctx, job)
		}
	}
}
