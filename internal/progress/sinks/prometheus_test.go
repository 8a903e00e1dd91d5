package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/greenproof/fleetscore/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Entity: "Acme Logistics"},
		{
			RunID:       runID,
			TS:          time.Now().Add(10 * time.Second),
			Stage:       progress.StageSourceFetch,
			Phase:       "PRIORITY_SOURCES",
			Site:        "example.com",
			Bytes:       1024,
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{
			RunID: runID,
			TS:    time.Now().Add(12 * time.Second),
			Stage: progress.StageSourceAnalyzed,
			Phase: "PRIORITY_SOURCES",
			URL:   "https://example.com/sustainability",
			Found: 3,
		},
		{
			RunID:  runID,
			TS:     time.Now().Add(13 * time.Second),
			Stage:  progress.StageOracleCall,
			Tokens: 512,
			Dur:    2 * time.Second,
		},
		{
			RunID: runID,
			TS:    time.Now().Add(14 * time.Second),
			Stage: progress.StagePhaseDone,
			Phase: "PRIORITY_SOURCES",
			Dur:   14 * time.Second,
		},
		{RunID: runID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.fetches.WithLabelValues("example.com", string(progress.Status2xx))),
		1e-9,
	)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("example.com")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "fleetscore_fetch_duration_seconds"))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.sourcesAnalyzed.WithLabelValues("PRIORITY_SOURCES")), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.evidenceFound.WithLabelValues("PRIORITY_SOURCES")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.oracleCalls))
	require.Equal(t, 512.0, testutil.ToFloat64(sink.oracleTokens))
	require.Equal(t, 1, testutil.CollectAndCount(sink.phaseDuration, "fleetscore_phase_duration_seconds"))
}

// TestPrometheusSinkTracksRunningGauge keeps the gauge consistent across duplicate starts.
func TestPrometheusSinkTracksRunningGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	done := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Note: "boom"}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}
