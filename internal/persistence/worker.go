package persistence

import (
	"BossRaid/internal/core"
	"BossRaid/internal/observability"
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

// Worker drains the engine's persist channel and writes each output to
// the Store. The persist channel uses blocking sends from the engine,
// so if this worker falls behind, the engine stalls rather than lose an
// applied trade.
//
// Each output fans out into up to three store operations (trade, boss
// health, session). The semaphore bounds total in-flight operations;
// operations fail independently so a bad trade insert never blocks the
// health write that the spectators see.
type Worker struct {
	store       Store
	inputChan   <-chan core.Output
	sem         *semaphore.Weighted
	maxAttempts int
	metrics     *observability.Metrics
}

func NewWorker(store Store, inputChan <-chan core.Output, concurrency int64, metrics *observability.Metrics) *Worker {
	return &Worker{
		store:       store,
		inputChan:   inputChan,
		sem:         semaphore.NewWeighted(concurrency),
		maxAttempts: 3,
		metrics:     metrics,
	}
}

// Run processes outputs until ctx is cancelled or the channel closes.
// Remaining queued outputs are flushed with a background context on
// shutdown so nothing applied in-memory is lost.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				return nil
			}
			w.process(ctx, out)
		}
	}
}

// drain flushes whatever is still buffered after cancellation.
func (w *Worker) drain() {
	for {
		select {
		case out, ok := <-w.inputChan:
			if !ok {
				return
			}
			w.process(context.Background(), out)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, out core.Output) {
	if out.Trade != nil {
		w.run(ctx, "save_trade", func(opCtx context.Context) error {
			return w.store.SaveTrade(opCtx, out.Trade)
		})
	}
	if out.Boss != nil {
		boss := out.Boss
		w.run(ctx, "update_boss_health", func(opCtx context.Context) error {
			return w.store.UpdateBossHealth(opCtx, boss.ID, boss.CurrentHealth, boss.IsDefeated, boss.DefeatedAt)
		})
	}
	if out.Session != nil {
		w.run(ctx, "update_session", func(opCtx context.Context) error {
			return w.store.UpdateSession(opCtx, out.Session)
		})
	}
}

// run executes one store operation under the semaphore with bounded
// retries. Failures are logged and counted, never propagated: the
// in-memory engine state is authoritative and a lost write surfaces as
// a metric, not a wedged pipeline.
func (w *Worker) run(ctx context.Context, op string, fn func(context.Context) error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		// Shutdown mid-acquire: run inline so the write still lands.
		w.execute(context.Background(), op, fn)
		return
	}
	go func() {
		defer w.sem.Release(1)
		w.execute(ctx, op, fn)
	}()
}

func (w *Worker) execute(ctx context.Context, op string, fn func(context.Context) error) {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			if w.metrics != nil {
				w.metrics.PersistOps.WithLabelValues(op).Inc()
				w.metrics.PersistOpDur.Observe(time.Since(start).Seconds())
			}
			return
		}
		if attempt < w.maxAttempts {
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
			}
		}
	}

	log.Printf("ERROR: persist %s failed after %d attempts: %v", op, w.maxAttempts, err)
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(op).Inc()
	}
}
