package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/batch"
	"github.com/greenproof/fleetscore/internal/clock/system"
	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/evidence"
	"github.com/greenproof/fleetscore/internal/fetch"
	"github.com/greenproof/fleetscore/internal/frontier"
	"github.com/greenproof/fleetscore/internal/hash/sha256"
	"github.com/greenproof/fleetscore/internal/oracle"
	"github.com/greenproof/fleetscore/internal/progress"
	"github.com/greenproof/fleetscore/internal/search"
	"github.com/greenproof/fleetscore/internal/storage"
	"github.com/greenproof/fleetscore/internal/trust"
	"github.com/greenproof/fleetscore/internal/validate"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}

// Engine runs the phased evidence hunt for one entity at a time. It is
// safe to share between runs; all per-run state lives in the run
// struct created by Run.
type Engine struct {
	cfg      Config
	fetcher  fetch.Fetcher
	searcher search.Searcher
	analyzer oracle.Analyzer
	archiver storage.Archiver
	emitter  progress.Emitter
	clock    Clock
	hasher   *sha256.Hasher
	logger   *zap.Logger
}

// New constructs an Engine. Fetcher, searcher and analyzer are
// required; archiver, emitter and clock fall back to no-op or system
// implementations.
func New(
	cfg Config,
	fetcher fetch.Fetcher,
	searcher search.Searcher,
	analyzer oracle.Analyzer,
	archiver storage.Archiver,
	emitter progress.Emitter,
	clk Clock,
	logger *zap.Logger,
) (*Engine, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if archiver == nil {
		archiver = storage.NoOpArchiver{}
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if clk == nil {
		clk = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		fetcher:  fetcher,
		searcher: searcher,
		analyzer: analyzer,
		archiver: archiver,
		emitter:  emitter,
		clock:    clk,
		hasher:   sha256.New(),
		logger:   logger,
	}, nil
}

// run holds the state of one entity analysis. Everything here is
// mutated only from the orchestrating goroutine, the digest set
// excepted; workers hand their results back over a channel and never
// touch the table or frontier.
type run struct {
	e       *Engine
	id      uuid.UUID
	idBytes [16]byte
	entity  string
	logger  *zap.Logger

	registry  *trust.Registry
	screener  *validate.Screener
	batcher   *batch.Batcher
	validator *evidence.Validator
	table     *evidence.Table
	frontier  *frontier.Frontier

	// candidates accumulates page URLs discovered by earlier phases
	// that were not fetched there; the fallback crawl seeds from them.
	candidates []Source
	// fetched tracks URLs already acquired so no phase repeats work.
	fetched map[string]bool
	// seen holds body digests so mirrored copies of a page are analyzed
	// once. Workers write it concurrently, under seenMu.
	seenMu sync.Mutex
	seen   map[string]bool

	traces       []PhaseTrace
	startedAt    time.Time
	pagesFetched int
	oracleCalls  int
	oracleTokens int
}

// phaseSpec pairs a phase with its wall-clock budget and body.
type phaseSpec struct {
	name   string
	budget time.Duration
	fn     func(ctx context.Context, trace *PhaseTrace)
}

// Run executes the full phase sequence for one entity under a fresh
// run id and always returns a Result, empty table included. The error
// is non-nil only when ctx ended before the run could finish; the
// partial Result is still valid in that case.
func (e *Engine) Run(ctx context.Context, entity string) (Result, error) {
	return e.RunWithID(ctx, uuid.Nil, entity)
}

// RunWithID is Run with a caller-assigned run id, so queued runs keep
// the id the API handed out at submission. uuid.Nil gets a fresh id.
func (e *Engine) RunWithID(ctx context.Context, id uuid.UUID, entity string) (Result, error) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return Result{}, errors.New("entity name is required")
	}
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	r := e.newRun(id, entity)
	r.logger.Info("run started", zap.String("entity", entity))
	r.emitRunStart()
	r.discoverDomains(ctx)

	phases := []phaseSpec{
		{PhasePriority, e.cfg.PriorityBudget, r.runPriority},
		{PhaseSearch, e.cfg.SearchBudget, r.runSearch},
		{PhaseCrawl, e.cfg.CrawlBudget, r.runCrawl},
	}
	for _, ph := range phases {
		if ctx.Err() != nil {
			break
		}
		if r.goalMet() {
			r.logger.Info("quality goal met, skipping remaining phases",
				zap.String("next_phase", ph.name),
				zap.Float64("quality", r.table.MeanFoundScore()))
			break
		}
		r.runPhase(ctx, ph)
	}

	res := r.finalize()
	if err := ctx.Err(); err != nil {
		r.emitRunEnd(progress.StageRunError, res, err.Error())
		return res, fmt.Errorf("run aborted: %w", err)
	}
	r.emitRunEnd(progress.StageRunDone, res, "")
	r.logger.Info("run finished",
		zap.Int("found", res.Found),
		zap.Float64("quality", res.Quality),
		zap.Bool("complete", res.Complete),
		zap.Int("pages_fetched", res.PagesFetched),
		zap.Int("oracle_calls", res.OracleCalls))
	return res, nil
}

func (e *Engine) newRun(id uuid.UUID, entity string) *run {
	logger := e.logger.With(
		zap.String("run_id", id.String()),
		zap.String("entity", entity))
	registry := trust.NewRegistry(entity, logger)
	screener := validate.NewScreener(validate.Config{
		MentionThreshold:       e.cfg.MentionThreshold,
		DomainMentionThreshold: e.cfg.DomainMentionThreshold,
		MinTextChars:           e.cfg.MinTextChars,
		MinKeywordHits:         e.cfg.MinKeywordHits,
	}, registry, logger)
	batcher := batch.New(batch.Config{
		Size:               e.cfg.BatchSize,
		Overlap:            e.cfg.BatchOverlap,
		FirstChunk:         e.cfg.FirstChunk,
		MaxPerDocument:     e.cfg.MaxBatchesPerDoc,
		ReductionThreshold: e.cfg.ReductionThreshold,
		MinKeptChars:       e.cfg.MinKeptChars,
	}, logger)
	validator := evidence.NewValidator(e.cfg.MinQuoteChars, e.cfg.LowConfidenceWarn, logger)

	r := &run{
		e:         e,
		id:        id,
		idBytes:   progress.UUIDToBytes(id),
		entity:    entity,
		logger:    logger,
		registry:  registry,
		screener:  screener,
		batcher:   batcher,
		validator: validator,
		table:     evidence.NewTable(),
		fetched:   make(map[string]bool),
		seen:      make(map[string]bool),
		startedAt: e.clock.Now().UTC(),
	}
	// Admissions get headroom over the visit budget so strong links
	// found late can still enter the queue.
	r.frontier = frontier.New(registry, e.cfg.MaxCrawlDepth, e.cfg.MaxCrawlPages*8, r.neededNow)
	return r
}

// runPhase wraps one phase body with its deadline, trace and progress
// events.
func (r *run) runPhase(ctx context.Context, ph phaseSpec) {
	phaseCtx, cancel := context.WithTimeout(ctx, ph.budget)
	defer cancel()

	start := r.e.clock.Now()
	r.logger.Info("phase started", zap.String("phase", ph.name))
	r.emitPhase(progress.StagePhaseStart, ph.name, 0)

	trace := PhaseTrace{Phase: ph.name}
	ph.fn(phaseCtx, &trace)
	trace.Duration = r.e.clock.Now().Sub(start)
	if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		trace.Truncated = true
	}
	r.traces = append(r.traces, trace)

	r.emitPhase(progress.StagePhaseDone, ph.name, trace.Duration)
	r.logger.Info("phase finished",
		zap.String("phase", ph.name),
		zap.Duration("duration", trace.Duration),
		zap.Int("attempted", trace.Attempted),
		zap.Int("succeeded", trace.Succeeded),
		zap.Bool("truncated", trace.Truncated),
		zap.Int("found", r.table.FoundCount()),
		zap.Float64("quality", r.table.MeanFoundScore()))
}

// goalMet reports the early-exit condition: every criterion has found
// evidence and the mean found score clears the quality threshold.
func (r *run) goalMet() bool {
	return r.table.Complete() && r.table.MeanFoundScore() >= r.e.cfg.QualityThreshold
}

// neededNow returns the criteria the oracle should be asked about. Once
// every criterion is found it falls back to the full set, so later
// sources can still raise low scores; Merge keeps the best record.
func (r *run) neededNow() []criteria.ID {
	if missing := r.table.Missing(); len(missing) > 0 {
		return missing
	}
	return criteria.IDs()
}

// discoverDomains resolves the entity's own web domains once per run
// through the search collaborator and registers them with the trust
// registry. Failures leave the registry empty; screening rule two just
// never fires then.
func (r *run) discoverDomains(ctx context.Context) {
	query := fmt.Sprintf("%q official website", r.entity)
	results, err := r.e.searcher.Search(ctx, query, r.e.cfg.SearchResults)
	if err != nil {
		r.logger.Warn("entity domain discovery failed", zap.Error(err))
		return
	}
	for _, res := range results {
		host := hostOf(res.Link)
		if host == "" || aggregatorHost(host) {
			continue
		}
		if trust.AuthorityTier(host) != trust.TierNone {
			continue
		}
		if !r.registry.Mentioned(res.Title + " " + res.Snippet) {
			continue
		}
		r.registry.AddDomain(host)
		if len(r.registry.Domains()) >= 2 {
			break
		}
	}
	r.logger.Info("entity domains resolved", zap.Strings("domains", r.registry.Domains()))
}

// aggregatorHosts are directory and social sites that rank well for
// company-name queries but are never the entity's own domain.
var aggregatorHosts = []string{
	"wikipedia.org", "linkedin.com", "facebook.com", "twitter.com",
	"x.com", "instagram.com", "youtube.com", "bloomberg.com",
	"crunchbase.com", "zoominfo.com", "glassdoor.com", "indeed.com",
	"yelp.com", "mapquest.com",
}

func aggregatorHost(host string) bool {
	host = trust.NormalizeHost(host)
	for _, agg := range aggregatorHosts {
		if host == agg || strings.HasSuffix(host, "."+agg) {
			return true
		}
	}
	return false
}

// apply consolidates one worker outcome into the run state and reports
// whether the quality goal is now met. Only the orchestrating goroutine
// calls it.
func (r *run) apply(out outcome, trace *PhaseTrace) bool {
	r.oracleCalls += out.calls
	r.oracleTokens += out.tokens
	if out.fetchDone {
		r.pagesFetched++
		r.fetched[out.src.URL] = true
	}
	if out.err != nil || !out.accepted {
		return false
	}
	trace.Succeeded++
	for _, ev := range out.records {
		if r.table.Consider(ev) {
			r.logger.Debug("evidence improved",
				zap.String("criterion", string(ev.Criterion)),
				zap.Int("score", ev.Score),
				zap.String("source", ev.SourceURL))
		}
	}
	return r.goalMet()
}

// markSeen records a body digest and reports whether it was new.
// Workers call it concurrently.
func (r *run) markSeen(digest string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if r.seen[digest] {
		return false
	}
	r.seen[digest] = true
	return true
}

// finalize snapshots the table into the terminal Result.
func (r *run) finalize() Result {
	domains := r.registry.Domains()
	sort.Strings(domains)
	return Result{
		RunID:        r.id,
		Entity:       r.entity,
		StartedAt:    r.startedAt,
		FinishedAt:   r.e.clock.Now().UTC(),
		Evidence:     r.table.Ordered(),
		Found:        r.table.FoundCount(),
		Quality:      r.table.MeanFoundScore(),
		Complete:     r.table.Complete(),
		Phases:       r.traces,
		Domains:      domains,
		PagesFetched: r.pagesFetched,
		OracleCalls:  r.oracleCalls,
		OracleTokens: r.oracleTokens,
	}
}

func (r *run) emitRunStart() {
	r.e.emitter.Emit(progress.Event{
		RunID:  r.idBytes,
		TS:     r.e.clock.Now().UTC(),
		Stage:  progress.StageRunStart,
		Entity: r.entity,
	})
}

func (r *run) emitRunEnd(stage progress.Stage, res Result, note string) {
	r.e.emitter.Emit(progress.Event{
		RunID:  r.idBytes,
		TS:     r.e.clock.Now().UTC(),
		Stage:  stage,
		Entity: r.entity,
		Dur:    res.FinishedAt.Sub(res.StartedAt),
		Found:  res.Found,
		Note:   note,
	})
}

func (r *run) emitPhase(stage progress.Stage, phase string, dur time.Duration) {
	r.e.emitter.Emit(progress.Event{
		RunID: r.idBytes,
		TS:    r.e.clock.Now().UTC(),
		Stage: stage,
		Phase: phase,
		Dur:   dur,
		Found: r.table.FoundCount(),
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
