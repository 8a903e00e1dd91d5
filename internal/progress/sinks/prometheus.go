package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/greenproof/fleetscore/internal/progress"
)

// PrometheusSink exports run progress metrics via Prometheus. It owns
// the collectors for run lifecycle, per-site fetches, per-phase source
// analysis, and oracle usage.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec

	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	sourcesAnalyzed *prometheus.CounterVec
	evidenceFound   *prometheus.CounterVec
	oracleCalls     prometheus.Counter
	oracleTokens    prometheus.Counter
	oracleDuration  prometheus.Histogram

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetscore_runs_started_total",
			Help: "Total analysis runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetscore_runs_completed_total",
			Help: "Total analysis runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetscore_runs_running",
			Help: "Current number of running analysis runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetscore_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 2700, 3900},
		}, []string{"result"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetscore_phase_duration_seconds",
			Help:    "Wall time per completed engine phase.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"phase"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetscore_fetches_total",
			Help: "Source fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetscore_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetscore_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"site", "status_class"}),
		sourcesAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetscore_sources_analyzed_total",
			Help: "Sources submitted for analysis partitioned by phase.",
		}, []string{"phase"}),
		evidenceFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetscore_evidence_found_total",
			Help: "Criteria findings marked found partitioned by phase.",
		}, []string{"phase"}),
		oracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetscore_oracle_calls_total",
			Help: "Total calls made to the analysis oracle.",
		}),
		oracleTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetscore_oracle_tokens_total",
			Help: "Total oracle tokens consumed.",
		}),
		oracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetscore_oracle_duration_seconds",
			Help:    "Oracle call duration.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.phaseDuration,
		s.fetches,
		s.fetchBytes,
		s.fetchDuration,
		s.sourcesAnalyzed,
		s.evidenceFound,
		s.oracleCalls,
		s.oracleTokens,
		s.oracleDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It
// is safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StagePhaseDone:
		if evt.Dur > 0 {
			s.phaseDuration.WithLabelValues(phaseLabel(evt)).Observe(evt.Dur.Seconds())
		}
	case progress.StageSourceFetch:
		s.handleFetchEvent(evt)
	case progress.StageSourceAnalyzed:
		s.sourcesAnalyzed.WithLabelValues(phaseLabel(evt)).Inc()
		if evt.Found > 0 {
			s.evidenceFound.WithLabelValues(phaseLabel(evt)).Add(float64(evt.Found))
		}
	case progress.StageOracleCall:
		s.oracleCalls.Inc()
		if evt.Tokens > 0 {
			s.oracleTokens.Add(float64(evt.Tokens))
		}
		if evt.Dur > 0 {
			s.oracleDuration.Observe(evt.Dur.Seconds())
		}
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRunDuration(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRunDuration(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRunDuration(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetches.WithLabelValues(site, statusClass).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func phaseLabel(evt progress.Event) string {
	if evt.Phase == "" {
		return "unknown"
	}
	return evt.Phase
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
