package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/evidence"
)

// task is one unit of work handed to the pool: acquire the source if
// it has no text yet, screen it, then analyze it for the needed
// criteria. The needed set is snapshotted at dispatch time.
type task struct {
	src    Source
	needed []criteria.ID
}

// outcome is what a worker hands back. Workers never touch shared run
// state; everything the orchestrator must know travels here.
type outcome struct {
	src Source
	// fetchDone marks that a network acquisition happened, successful
	// or not, so the run can count pages and avoid refetching.
	fetchDone bool
	// accepted means the source passed screening and was analyzed.
	accepted bool
	// reason explains a screening rejection.
	reason string
	// records holds the per-criterion evidence merged across the
	// source's batches.
	records map[criteria.ID]evidence.Evidence
	// links are outbound links of an accepted page, for re-seeding.
	links []string
	// calls and tokens account for oracle usage.
	calls  int
	tokens int
	// err is a recovered per-source failure. It never aborts siblings.
	err error
}

// pool runs tasks across a bounded set of workers. Dispatch and
// collection stay in the orchestrating goroutine; the pool guarantees
// exactly one outcome per dispatched task, so the caller's in-flight
// count is exact and shutdown cannot leak a goroutine.
type pool struct {
	tasks   chan task
	results chan outcome
	wg      sync.WaitGroup
}

func (r *run) startPool(ctx context.Context, phase string, workers int) *pool {
	p := &pool{
		tasks:   make(chan task, workers),
		results: make(chan outcome, workers),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				if ctx.Err() != nil {
					// Queued after the phase closed; skip, don't start.
					p.results <- outcome{src: t.src, err: ctx.Err()}
					continue
				}
				p.results <- r.process(ctx, phase, t)
			}
		}()
	}
	return p
}

// stop ends dispatch and waits for the workers to drain out.
func (p *pool) stop() {
	close(p.tasks)
	p.wg.Wait()
}

// runTaskList dispatches a fixed task list and consolidates outcomes
// until the list drains, the phase deadline passes, or the quality
// goal is met. Tasks without a needed set get one at dispatch time.
// onAccept, when given, sees every accepted outcome after
// consolidation. Returns true when the goal was met.
func (r *run) runTaskList(
	ctx context.Context,
	phase string,
	tasks []task,
	trace *PhaseTrace,
	onAccept func(outcome),
) bool {
	if len(tasks) == 0 {
		return false
	}
	workers := poolSize(r.e.cfg.Workers, len(tasks))
	p := r.startPool(ctx, phase, workers)
	defer p.stop()

	done := ctx.Done()
	closed, goal := false, false
	inFlight, next := 0, 0
	for {
		if !closed {
			for inFlight < workers && next < len(tasks) {
				t := tasks[next]
				if t.needed == nil {
					t.needed = r.neededNow()
				}
				p.tasks <- t
				next++
				inFlight++
				trace.Attempted++
			}
		}
		if inFlight == 0 {
			return goal
		}
		select {
		case out := <-p.results:
			inFlight--
			if closed {
				continue
			}
			if r.apply(out, trace) {
				closed, goal = true, true
				continue
			}
			if out.accepted && onAccept != nil {
				onAccept(out)
			}
		case <-done:
			closed = true
			done = nil
		}
	}
}

// poolSize scales the worker count to the outstanding work.
func poolSize(limit, tasks int) int {
	if tasks < 1 {
		return 1
	}
	if tasks < limit {
		return tasks
	}
	return limit
}

// process executes one task end to end. Every failure mode is caught
// here and logged at origin; a panic in extraction or analysis becomes
// an error outcome instead of taking down the phase.
func (r *run) process(ctx context.Context, phase string, t task) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = outcome{src: t.src, err: fmt.Errorf("source processing panic: %v", rec)}
			r.logger.Error("source processing panicked",
				zap.String("phase", phase),
				zap.String("url", t.src.URL),
				zap.Any("panic", rec))
		}
	}()

	out.src = t.src
	src := t.src

	if src.Text == "" {
		body, err := r.fetchSource(ctx, phase, &src, &out)
		if err != nil {
			out.err = err
			r.logger.Warn("source dropped",
				zap.String("phase", phase),
				zap.String("url", src.URL),
				zap.Error(err))
			return out
		}
		links, err := r.extractSource(&src, body)
		out.src = src
		if err != nil {
			out.err = err
			r.logger.Warn("source extraction failed",
				zap.String("phase", phase),
				zap.String("url", src.URL),
				zap.Error(err))
			return out
		}
		digest, err := r.e.hasher.Hash(body)
		if err != nil {
			r.logger.Warn("source digest failed",
				zap.String("url", src.URL),
				zap.Error(err))
		} else if !r.markSeen(digest) {
			// Same bytes under another URL; the first copy covered it.
			out.reason = "duplicate content"
			r.logger.Debug("source rejected",
				zap.String("phase", phase),
				zap.String("url", src.URL),
				zap.String("reason", out.reason))
			return out
		}
		verdict := r.screen(src)
		if !verdict.Accepted {
			out.reason = verdict.Reason
			r.logger.Debug("source rejected",
				zap.String("phase", phase),
				zap.String("url", src.URL),
				zap.String("reason", verdict.Reason))
			return out
		}
		out.links = links
		if digest != "" {
			r.archiveSource(ctx, src, body, digest)
		}
	}

	out.accepted = true
	out.src = src
	out.records = r.analyzeSource(ctx, phase, src, t.needed, &out)
	return out
}
