package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/provider"
	"github.com/hadiwinata/mediaforge/internal/queue"
)

const (
	defaultDequeueBlock = 2 * time.Second
	defaultMoveDueEvery = time.Second
	moveDueBatch        = 100
)

// WorkerOptions tunes the pool.
type WorkerOptions struct {
	Concurrency  int
	DequeueBlock time.Duration
	MoveDueEvery time.Duration
}

// Worker is a pool of independent loops, each owning one job at a time from
// claim to terminal transition. The only suspension points are the provider
// round-trips; no ledger lock is ever held across them.
type Worker struct {
	manager  *Manager
	queue    queue.Queue
	registry *provider.Registry
	logger   zerolog.Logger
	opts     WorkerOptions
}

// NewWorker builds a pool over the manager's queue.
func NewWorker(manager *Manager, q queue.Queue, registry *provider.Registry, logger zerolog.Logger, opts WorkerOptions) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.DequeueBlock <= 0 {
		opts.DequeueBlock = defaultDequeueBlock
	}
	if opts.MoveDueEvery <= 0 {
		opts.MoveDueEvery = defaultMoveDueEvery
	}
	return &Worker{manager: manager, queue: q, registry: registry, logger: logger, opts: opts}
}

// Run blocks until ctx is done, pulling jobs with opts.Concurrency loops and
// promoting delayed retries on a ticker.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	g.Go(func() error { return w.moveDueLoop(ctx) })
	w.logger.Info().Int("concurrency", w.opts.Concurrency).Msg("worker: started")
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		jobID, err := w.queue.Dequeue(ctx, w.opts.DequeueBlock)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker: dequeue failed")
			select {
			case <-time.After(w.opts.DequeueBlock):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		w.process(ctx, jobID)
	}
}

func (w *Worker) moveDueLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.MoveDueEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.queue.MoveDue(ctx, time.Now(), moveDueBatch); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("worker: promote delayed jobs failed")
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, jobID string) {
	job, err := w.manager.BeginAttempt(ctx, jobID)
	if err != nil {
		// Lost the claim race, or the job was cancelled before pickup.
		if errors.Is(err, domain.ErrConcurrentModification) || errors.Is(err, domain.ErrNotFound) {
			w.logger.Debug().Str("job_id", jobID).Msg("worker: job not claimable, skipping")
			return
		}
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: claim failed")
		return
	}
	w.logger.Info().
		Str("job_id", job.ID).
		Str("module", string(job.Module)).
		Int("retry_count", job.RetryCount).
		Msg("worker: picked job")

	gw, err := w.registry.Lookup(job.Module)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	receipt, err := gw.Dispatch(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.fail(ctx, job, err)
		return
	}

	if w.discardIfCancelled(ctx, job.ID, "after dispatch") {
		return
	}

	result, err := gw.Await(ctx, receipt)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.fail(ctx, job, err)
		return
	}

	if _, err := w.manager.Complete(ctx, job.ID, result.Artifacts); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			// Cancelled while the provider call was in flight: the result
			// is discarded and the cancel-time refund stands.
			w.logger.Info().Str("job_id", job.ID).Msg("worker: result discarded, job cancelled mid-flight")
			return
		}
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: completion failed")
	}
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, attemptErr error) {
	if err := w.manager.FailAttempt(ctx, job, attemptErr); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: failure handling failed")
	}
}

// discardIfCancelled is the cooperative cancellation check run at suspension
// points.
func (w *Worker) discardIfCancelled(ctx context.Context, jobID, stage string) bool {
	job, err := w.manager.Get(ctx, jobID)
	if err != nil {
		return false
	}
	if job.Status == domain.JobStatusCancelled {
		w.logger.Info().Str("job_id", jobID).Str("stage", stage).Msg("worker: cancel observed, abandoning job")
		return true
	}
	return false
}
