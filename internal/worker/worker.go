// Package worker drains the extraction queue in the background, one
// orchestrator invocation per queued posting.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/store"
)

// Extract is the unit of work the worker dispatches per queue item.
// The orchestrator's Run is the production implementation.
type Extract func(ctx context.Context, jobID, url string) error

// Worker polls the extraction queue and runs due items with bounded
// concurrency. Failures stay on the attempt trail; the worker itself
// only logs and keeps draining.
type Worker struct {
	store   store.Store
	extract Extract
	cfg     config.WorkerConfig
}

// New creates a Worker dispatching to the given extract function.
func New(st store.Store, extract Extract, cfg config.WorkerConfig) *Worker {
	return &Worker{store: st, extract: extract, cfg: cfg}
}

// Start polls until the context is cancelled. It returns only on
// shutdown, after the in-flight batch drains.
func (w *Worker) Start(ctx context.Context) error {
	interval := time.Duration(w.cfg.PollSecs) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	zap.L().Info("extraction worker started",
		zap.Int("concurrency", w.concurrency()),
		zap.Int("batch_size", w.batchSize()),
		zap.Duration("poll_interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := w.DrainOnce(ctx); err != nil {
			zap.L().Error("worker drain failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("worker drained batch", zap.Int("items", n))
		}

		select {
		case <-ctx.Done():
			zap.L().Info("extraction worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainOnce claims one batch of due queue items and processes it to
// completion. Returns the number of items claimed.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	items, err := w.store.DequeueDue(ctx, w.batchSize())
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency())

	for _, item := range items {
		g.Go(func() error {
			if err := w.extract(gctx, item.JobID, item.URL); err != nil {
				// Already persisted on the attempt; keep draining.
				zap.L().Warn("queued extraction failed",
					zap.String("job_id", item.JobID),
					zap.String("url", item.URL),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return len(items), err
	}
	return len(items), nil
}

func (w *Worker) concurrency() int {
	if w.cfg.Concurrency > 0 {
		return w.cfg.Concurrency
	}
	return 5
}

func (w *Worker) batchSize() int {
	if w.cfg.BatchSize > 0 {
		return w.cfg.BatchSize
	}
	return 20
}
