package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/greenproof/fleetscore/internal/evidence"
)

// Phase names in execution order. DONE is the terminal state every run
// reaches regardless of what the earlier phases produced.
const (
	PhasePriority = "PRIORITY_SOURCES"
	PhaseSearch   = "ENHANCED_SEARCH"
	PhaseCrawl    = "FALLBACK_CRAWL"
	PhaseDone     = "DONE"
)

// Source is one candidate resource inside a phase. Text is empty until
// the resource has been fetched and extracted; a source built with Text
// already set (snippet pseudo-documents) skips acquisition entirely.
type Source struct {
	URL     string
	Kind    evidence.SourceKind
	Title   string
	Snippet string
	Text    string
	Depth   int
}

// PhaseTrace records what one phase did, for the final report and for
// operators reading run summaries.
type PhaseTrace struct {
	Phase     string
	Duration  time.Duration
	Attempted int
	Succeeded int
	// Truncated marks a phase whose deadline elapsed with work still
	// in flight. Late results were discarded, not merged.
	Truncated bool
}

// Result is the terminal output of a run. It always exists, even when
// no phase produced a single record.
type Result struct {
	RunID      uuid.UUID
	Entity     string
	StartedAt  time.Time
	FinishedAt time.Time

	// Evidence holds the consolidated best record per criterion, in
	// registry order. Criteria never considered are absent.
	Evidence []evidence.Evidence
	// Found is the number of criteria with found evidence.
	Found int
	// Quality is the mean score over found criteria.
	Quality float64
	// Complete reports whether every criterion has found evidence.
	Complete bool

	Phases  []PhaseTrace
	Domains []string

	PagesFetched int
	OracleCalls  int
	OracleTokens int
}
