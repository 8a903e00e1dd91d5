package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/greenproof/fleetscore/internal/evidence"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Run models one analysis run for API responses and persistence.
type Run struct {
	// ID is the run identifier shared across API, engine, and events.
	ID uuid.UUID
	// Entity is the company name under analysis.
	Entity string
	// Status is pending/running/succeeded/failed/canceled.
	Status RunStatus
	// CreatedAt captures when the run was accepted.
	CreatedAt time.Time
	// StartedAt is nil until a worker picks the run up.
	StartedAt *time.Time
	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
	// Found counts criteria with found evidence once the run completes.
	Found int
	// Quality is the mean found-criteria score once the run completes.
	Quality float64
	// Result holds the exported JSON payload for succeeded runs.
	Result []byte
}

// SiteStats captures per-site fetch aggregation for a run.
type SiteStats struct {
	// RunID is the owning run.
	RunID uuid.UUID
	// Site is the normalized host label (e.g., example.com).
	Site string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Fetches counts completed fetches for the site.
	Fetches int64
	// BytesTotal accumulates response bytes.
	BytesTotal int64
	// Fetch2xx-5xx hold per-status counts for diagnostics.
	Fetch2xx int64
	Fetch3xx int64
	Fetch4xx int64
	Fetch5xx int64
}

// RunRepository persists run lifecycle, evidence, and fetch aggregates
// durably. The Postgres implementation lives in internal/storage/postgres.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the run as running.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, entity string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// InsertEvidence stores the consolidated per-criterion records for a run.
	InsertEvidence(ctx context.Context, runID uuid.UUID, records []evidence.Evidence) error
	// UpsertSiteStats applies fetch/byte deltas per (run, site, statusClass).
	UpsertSiteStats(
		ctx context.Context,
		runID uuid.UUID,
		site string,
		deltaFetches int64,
		deltaBytes int64,
		statusClass string,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSites returns aggregated site stats for one run.
	ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SiteStats, error)
}

// RunStore holds run state for the API surface. The in-memory
// implementation in internal/storage/memory is the service default;
// a RunRepository may shadow it for durability.
type RunStore interface {
	// Create registers a new pending run. Duplicate IDs are an error.
	Create(ctx context.Context, run Run) error
	// Get loads one run or returns ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (Run, error)
	// List returns runs filtered by optional status, newest first.
	List(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// MarkRunning transitions a pending run to running.
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	// SetResult attaches the exported payload and summary counters.
	SetResult(ctx context.Context, id uuid.UUID, found int, quality float64, result []byte) error
	// Complete transitions the run to a terminal status.
	Complete(ctx context.Context, id uuid.UUID, at time.Time, status RunStatus, errMsg *string) error
}
