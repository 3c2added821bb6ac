// Package worker runs batches of jobs on a bounded pool of goroutines. Each
// job runs with its own timeout; retryable failures are attempted again with
// exponential backoff.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result reports the outcome of one job.
type Result struct {
	JobID    uuid.UUID
	Type     string
	Attempts int
	Output   []byte
	Err      error
	Duration time.Duration
}

// Pool processes jobs with a fixed number of concurrent workers.
type Pool struct {
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger
}

// New creates a pool with the given configuration.
func New(config Config, logger *slog.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Pool{
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
	}, nil
}

// Register adds a job handler to the pool. Call this before Run.
func (p *Pool) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := p.handlers[jobType]; exists {
		p.logger.Warn("overwriting existing handler", "job_type", jobType)
	}
	p.handlers[jobType] = handler
}

// Run processes every job and returns their results in submission order.
// Jobs that have not started when ctx is canceled fail with the context error.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	queue := make(chan int)

	workers := p.config.Concurrency
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			logger := p.logger.With("worker_id", workerID)
			for idx := range queue {
				results[idx] = p.process(ctx, jobs[idx], logger)
			}
		}(i + 1)
	}

	for idx := range jobs {
		select {
		case queue <- idx:
		case <-ctx.Done():
			results[idx] = Result{JobID: jobs[idx].ID, Type: jobs[idx].Type, Err: ctx.Err()}
		}
	}
	close(queue)
	wg.Wait()
	return results
}

// process runs one job until it succeeds, fails permanently or runs out of
// attempts.
func (p *Pool) process(ctx context.Context, job Job, logger *slog.Logger) Result {
	start := time.Now()
	res := Result{JobID: job.ID, Type: job.Type}
	logger = logger.With("job_id", job.ID, "job_type", job.Type)

	handler, ok := p.handlers[job.Type]
	if !ok {
		res.Err = NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.Type))
		logger.Error("job failed", "error", res.Err)
		return res
	}

	backoff := p.config.RetryBackoff
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		res.Attempts = attempt
		res.Output, res.Err = p.execute(ctx, handler, job)
		if res.Err == nil || IsPermanent(res.Err) || attempt == p.config.MaxAttempts {
			break
		}

		logger.Warn("job attempt failed, retrying", "attempt", attempt, "error", res.Err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		}
		backoff *= 2
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		logger.Error("job failed", "error", res.Err, "attempts", res.Attempts)
	} else {
		logger.Debug("job completed", "attempts", res.Attempts, "duration", res.Duration)
	}
	return res
}

// execute runs the handler with a timeout context. A panicking handler fails
// the job permanently.
func (p *Pool) execute(ctx context.Context, handler JobHandler, job Job) (out []byte, err error) {
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = NewPermanentError(fmt.Errorf("job handler panicked: %v", r))
		}
	}()
	return handler.Handle(jobCtx, job.Payload)
}
