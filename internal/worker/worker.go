// Package worker implements the run execution loop: dequeue a job,
// drive the engine, persist the outcome, publish the completion.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/clock/system"
	"github.com/greenproof/fleetscore/internal/engine"
	"github.com/greenproof/fleetscore/internal/export"
	"github.com/greenproof/fleetscore/internal/metrics"
	"github.com/greenproof/fleetscore/internal/queue"
	"github.com/greenproof/fleetscore/internal/store"
)

// Runner executes one analysis under a caller-assigned run id.
type Runner interface {
	RunWithID(ctx context.Context, id uuid.UUID, entity string) (engine.Result, error)
}

// Publisher emits run completion notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Config controls Worker behavior.
type Config struct {
	// Topic names the completion topic; empty disables publishing.
	Topic string
	// PersistTimeout bounds terminal writes, which run on a detached
	// context so shutdown cannot lose a finished run.
	PersistTimeout time.Duration
}

// Worker consumes queued jobs and executes runs end to end.
type Worker struct {
	queue     queue.Queue
	runs      store.RunStore
	repo      store.RunRepository
	engine    Runner
	publisher Publisher
	cancels   *CancelRegistry
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. repo may be nil when no database is
// configured; evidence rows are simply not persisted then.
func New(
	q queue.Queue,
	runs store.RunStore,
	repo store.RunRepository,
	eng Runner,
	publisher Publisher,
	cancels *CancelRegistry,
	clk Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if clk == nil {
		clk = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	metrics.Init()
	return &Worker{
		queue:     q,
		runs:      runs,
		repo:      repo,
		engine:    eng,
		publisher: publisher,
		cancels:   cancels,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming jobs until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.execute(ctx, job)
	}
}

func (w *Worker) execute(ctx context.Context, job queue.Job) {
	logger := w.logger.With(
		zap.String("run_id", job.RunID.String()),
		zap.String("entity", job.Entity))

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	if job.Submitted > 0 {
		metrics.ObserveQueueWait(w.clock.Now().Sub(time.Unix(job.Submitted, 0)))
	}

	run, err := w.runs.Get(ctx, job.RunID)
	if err != nil {
		logger.Error("queued run not found in store", zap.Error(err))
		return
	}
	if run.Status != store.StatusPending {
		logger.Info("skipping run", zap.String("status", string(run.Status)))
		metrics.ObserveJob("skipped")
		return
	}
	if err := w.runs.MarkRunning(ctx, job.RunID, w.clock.Now()); err != nil {
		// Lost the race with a cancel between dequeue and start.
		logger.Info("run no longer startable", zap.Error(err))
		metrics.ObserveJob("skipped")
		return
	}

	runCtx, cancel := w.runContext(ctx, job)
	defer cancel()
	if w.cancels != nil {
		w.cancels.register(job.RunID, cancel)
		defer w.cancels.remove(job.RunID)
	}

	res, runErr := w.engine.RunWithID(runCtx, job.RunID, job.Entity)

	// Terminal writes survive shutdown: detach from ctx, bound the time.
	persistCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.PersistTimeout)
	defer stop()

	if runErr != nil {
		w.completeAborted(persistCtx, logger, job, res, runErr, ctx.Err() == nil)
		return
	}
	w.completeSucceeded(persistCtx, logger, job, res)
}

// runContext derives the per-run context, applying the job's optional
// wall-clock budget.
func (w *Worker) runContext(ctx context.Context, job queue.Job) (context.Context, context.CancelFunc) {
	if job.Budget > 0 {
		return context.WithTimeout(ctx, job.Budget)
	}
	return context.WithCancel(ctx)
}

// completeAborted records a run that ended on a context error. Cancels
// and expired budgets count as canceled while the service itself is
// healthy; anything during shutdown is a plain failure.
func (w *Worker) completeAborted(
	ctx context.Context,
	logger *zap.Logger,
	job queue.Job,
	res engine.Result,
	runErr error,
	parentAlive bool,
) {
	status := store.StatusFailed
	if parentAlive &&
		(errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
		status = store.StatusCanceled
	}
	msg := runErr.Error()
	if err := w.runs.Complete(ctx, job.RunID, w.finishedAt(res), status, &msg); err != nil {
		logger.Error("terminal status write failed", zap.Error(err))
	}
	logger.Warn("run did not finish",
		zap.String("status", string(status)),
		zap.Int("found", res.Found),
		zap.Error(runErr))
	metrics.ObserveJob(string(status))
	w.publishCompletion(ctx, job, status, res.Found, res.Quality)
}

func (w *Worker) completeSucceeded(
	ctx context.Context,
	logger *zap.Logger,
	job queue.Job,
	res engine.Result,
) {
	payload, err := export.Marshal(export.Build(res))
	if err != nil {
		logger.Error("scorecard render failed", zap.Error(err))
	}
	if err := w.runs.SetResult(ctx, job.RunID, res.Found, res.Quality, payload); err != nil {
		logger.Error("result write failed", zap.Error(err))
	}
	if err := w.runs.Complete(ctx, job.RunID, w.finishedAt(res), store.StatusSucceeded, nil); err != nil {
		logger.Error("terminal status write failed", zap.Error(err))
	}
	if w.repo != nil {
		if err := w.repo.InsertEvidence(ctx, job.RunID, res.Evidence); err != nil {
			logger.Error("evidence write failed", zap.Error(err))
		}
	}
	logger.Info("run completed",
		zap.Int("found", res.Found),
		zap.Float64("quality", res.Quality),
		zap.Bool("complete", res.Complete))
	metrics.ObserveJob(string(store.StatusSucceeded))
	w.publishCompletion(ctx, job, store.StatusSucceeded, res.Found, res.Quality)
}

func (w *Worker) finishedAt(res engine.Result) time.Time {
	if res.FinishedAt.IsZero() {
		return w.clock.Now()
	}
	return res.FinishedAt
}

func (w *Worker) publishCompletion(
	ctx context.Context,
	job queue.Job,
	status store.RunStatus,
	found int,
	quality float64,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":    job.RunID.String(),
		"entity":    job.Entity,
		"status":    string(status),
		"found":     found,
		"quality":   quality,
		"timestamp": w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("completion publish failed",
			zap.String("run_id", job.RunID.String()),
			zap.Error(err))
	}
}
