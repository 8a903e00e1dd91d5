// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenproof/fleetscore/internal/evidence"
	"github.com/greenproof/fleetscore/internal/store"
)

// Config controls the Postgres connection pool used for scorecard rows.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ScorecardStore implements store.RunRepository on Postgres. Runs,
// evidence rows, and site aggregates live in the runs, run_evidence,
// and run_site_stats tables (see schema.sql).
type ScorecardStore struct {
	pool pool
}

// NewScorecardStore connects a pool using the provided config.
func NewScorecardStore(ctx context.Context, cfg Config) (*ScorecardStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ScorecardStore{pool: p}, nil
}

// NewScorecardStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewScorecardStoreWithPool(p pool) (*ScorecardStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ScorecardStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *ScorecardStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRunStart inserts the run as running, or refreshes status and
// start time if the row already exists.
func (s *ScorecardStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, entity string, startedAt time.Time) error {
	query := `
		INSERT INTO runs (run_id, entity, status, created_at, started_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (run_id) DO UPDATE
		SET status = EXCLUDED.status, started_at = EXCLUDED.started_at;
	`
	_, err := s.pool.Exec(ctx, query, runID, entity, store.StatusRunning, startedAt)
	if err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *ScorecardStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE run_id = $4;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// InsertEvidence upserts the consolidated per-criterion records and
// refreshes the run's summary counters.
func (s *ScorecardStore) InsertEvidence(ctx context.Context, runID uuid.UUID, records []evidence.Evidence) error {
	query := `
		INSERT INTO run_evidence (
			run_id, criterion, found, score, confidence, quote, context,
			justification, source_url, source_kind, verified, number, unit,
			range_min, range_max
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id, criterion) DO UPDATE SET
			found = EXCLUDED.found,
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			quote = EXCLUDED.quote,
			context = EXCLUDED.context,
			justification = EXCLUDED.justification,
			source_url = EXCLUDED.source_url,
			source_kind = EXCLUDED.source_kind,
			verified = EXCLUDED.verified,
			number = EXCLUDED.number,
			unit = EXCLUDED.unit,
			range_min = EXCLUDED.range_min,
			range_max = EXCLUDED.range_max;
	`
	found := 0
	scoreSum := 0
	for _, rec := range records {
		if _, err := s.pool.Exec(ctx, query,
			runID,
			string(rec.Criterion),
			rec.Found,
			rec.Score,
			rec.Confidence,
			rec.Quote,
			rec.Context,
			rec.Justification,
			rec.SourceURL,
			string(rec.SourceKind),
			rec.Verified,
			rec.Number,
			rec.Unit,
			rec.RangeMin,
			rec.RangeMax,
		); err != nil {
			return fmt.Errorf("insert evidence row %s: %w", rec.Criterion, err)
		}
		if rec.Found {
			found++
			scoreSum += rec.Score
		}
	}

	quality := 0.0
	if found > 0 {
		quality = float64(scoreSum) / float64(found)
	}
	summary := `UPDATE runs SET found = $2, quality = $3 WHERE run_id = $1;`
	if _, err := s.pool.Exec(ctx, summary, runID, found, quality); err != nil {
		return fmt.Errorf("update run summary: %w", err)
	}
	return nil
}

// UpsertSiteStats applies fetch and byte deltas for one (run, site)
// aggregate in a single statement so concurrent flushes cannot lose
// increments.
func (s *ScorecardStore) UpsertSiteStats(
	ctx context.Context,
	runID uuid.UUID,
	site string,
	deltaFetches,
	deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	var fetch2xx, fetch3xx, fetch4xx, fetch5xx int64
	switch statusClass {
	case "2xx":
		fetch2xx = deltaFetches
	case "3xx":
		fetch3xx = deltaFetches
	case "4xx":
		fetch4xx = deltaFetches
	case "5xx":
		fetch5xx = deltaFetches
	}

	query := `
		INSERT INTO run_site_stats (run_id, site, last_update, fetches, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, site) DO UPDATE SET
			fetches = run_site_stats.fetches + EXCLUDED.fetches,
			bytes_total = run_site_stats.bytes_total + EXCLUDED.bytes_total,
			fetch_2xx = run_site_stats.fetch_2xx + EXCLUDED.fetch_2xx,
			fetch_3xx = run_site_stats.fetch_3xx + EXCLUDED.fetch_3xx,
			fetch_4xx = run_site_stats.fetch_4xx + EXCLUDED.fetch_4xx,
			fetch_5xx = run_site_stats.fetch_5xx + EXCLUDED.fetch_5xx,
			last_update = GREATEST(run_site_stats.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(ctx, query, runID, site, at, deltaFetches, deltaBytes, fetch2xx, fetch3xx, fetch4xx, fetch5xx)
	if err != nil {
		return fmt.Errorf("upsert site stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *ScorecardStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT run_id, entity, status, created_at, started_at, finished_at, error_message, found, quality
		FROM runs
		WHERE run_id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Entity,
		&run.Status,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
		&run.ErrorMessage,
		&run.Found,
		&run.Quality,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs with optional status filtering, newest first.
func (s *ScorecardStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT run_id, entity, status, created_at, started_at, finished_at, error_message, found, quality
		FROM runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		err := rows.Scan(
			&run.ID,
			&run.Entity,
			&run.Status,
			&run.CreatedAt,
			&run.StartedAt,
			&run.FinishedAt,
			&run.ErrorMessage,
			&run.Found,
			&run.Quality,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListRunSites retrieves aggregated site statistics for a given run.
func (s *ScorecardStore) ListRunSites(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.SiteStats, error) {
	query := `
		SELECT run_id, site, last_update, fetches, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx
		FROM run_site_stats
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run sites: %w", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var stat store.SiteStats
		err := rows.Scan(
			&stat.RunID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Fetches,
			&stat.BytesTotal,
			&stat.Fetch2xx,
			&stat.Fetch3xx,
			&stat.Fetch4xx,
			&stat.Fetch5xx,
		)
		if err != nil {
			return nil, fmt.Errorf("scan site stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
