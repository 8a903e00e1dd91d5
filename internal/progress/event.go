package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageRunError       Stage = "RUN_ERROR"
	StagePhaseStart     Stage = "PHASE_START"
	StagePhaseDone      Stage = "PHASE_DONE"
	StageSourceFetch    Stage = "SOURCE_FETCH"
	StageSourceAnalyzed Stage = "SOURCE_ANALYZED"
	StageOracleCall     Stage = "ORACLE_CALL"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for source fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of run progress.
type Event struct {
	// RunID identifies the analysis run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Entity is the company under analysis, set on run lifecycle events.
	Entity string
	// Phase names the engine phase for phase and source events.
	Phase string
	// Site scopes source events to a host label.
	Site string
	// URL is the source URL for fetch and analysis events.
	URL string
	// Bytes carries the response size for a source fetch.
	Bytes int64
	// StatusClass groups the HTTP status of a source fetch.
	StatusClass StatusClass
	// Dur captures latency for fetches, oracle calls, phases, and runs.
	Dur time.Duration
	// Found counts criteria with found evidence: per source for
	// SOURCE_ANALYZED, run totals on PHASE_DONE and RUN_DONE.
	Found int
	// Tokens is oracle token usage on ORACLE_CALL events.
	Tokens int
	// Note carries low-volume context such as error text or reasons.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePhaseStart, StagePhaseDone:
		if e.Phase == "" {
			return errors.New("phase events require a phase name")
		}
	case StageSourceFetch:
		if e.Site == "" {
			return errors.New("source fetch requires site")
		}
		if e.StatusClass == "" {
			return errors.New("source fetch requires status class")
		}
	case StageSourceAnalyzed:
		if e.URL == "" {
			return errors.New("source analyzed requires url")
		}
	case StageOracleCall:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for source fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
