package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/evidence"
	"github.com/greenproof/fleetscore/internal/store"
)

func TestUpsertRunStartInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewScorecardStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(runID, "Acme Logistics", store.StatusRunning, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertRunStart(context.Background(), runID, "Acme Logistics", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunUpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewScorecardStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	msg := "oracle unreachable"

	mock.ExpectExec("UPDATE runs").
		WithArgs(now, store.StatusFailed, &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), runID, now, store.StatusFailed, &msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvidenceWritesRowsAndSummary(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewScorecardStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	records := []evidence.Evidence{
		{
			Criterion:     criteria.CNGFleet,
			Found:         true,
			Score:         4,
			Confidence:    80,
			Quote:         "operates 120 CNG tractors",
			Justification: "direct fleet statement",
			SourceURL:     "https://example.com/fleet",
			SourceKind:    evidence.SourcePage,
			Verified:      true,
		},
		{
			Criterion:     criteria.EmissionReporting,
			Justification: "no disclosure located",
		},
	}

	mock.ExpectExec("INSERT INTO run_evidence").
		WithArgs(
			runID,
			string(criteria.CNGFleet),
			true,
			4,
			80,
			"operates 120 CNG tractors",
			"",
			"direct fleet statement",
			"https://example.com/fleet",
			string(evidence.SourcePage),
			true,
			(*float64)(nil),
			"",
			(*float64)(nil),
			(*float64)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO run_evidence").
		WithArgs(
			runID,
			string(criteria.EmissionReporting),
			false,
			0,
			0,
			"",
			"",
			"no disclosure located",
			"",
			"",
			false,
			(*float64)(nil),
			"",
			(*float64)(nil),
			(*float64)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs SET found").
		WithArgs(runID, 1, 4.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.InsertEvidence(context.Background(), runID, records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSiteStatsAppliesClassDelta(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewScorecardStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO run_site_stats").
		WithArgs(runID, "example.com", at, int64(3), int64(2048), int64(3), int64(0), int64(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.UpsertSiteStats(context.Background(), runID, "example.com", 3, 2048, "2xx", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewScorecardStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	created := time.Unix(1700000000, 0).UTC()
	started := created.Add(time.Second)
	finished := created.Add(time.Hour)

	rows := pgxmock.NewRows([]string{
		"run_id", "entity", "status", "created_at", "started_at", "finished_at", "error_message", "found", "quality",
	}).AddRow(runID, "Acme Logistics", store.StatusSucceeded, created, &started, &finished, (*string)(nil), 6, 3.5)

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(runID).
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, "Acme Logistics", run.Entity)
	require.Equal(t, store.StatusSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 6, run.Found)
	require.InDelta(t, 3.5, run.Quality, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewScorecardStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
