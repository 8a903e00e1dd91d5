// Package export renders a finished run into the scorecard JSON
// payload consumed by the API result endpoint and the CLI.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kennygrant/sanitize"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/engine"
	"github.com/greenproof/fleetscore/internal/evidence"
)

// Confidence floors for the evidence quality bands.
const (
	highConfidenceFloor   = 90
	mediumConfidenceFloor = 70
)

// Document is the exported scorecard payload for one run.
type Document struct {
	Entity        string    `json:"entity"`
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	Complete      bool      `json:"complete"`
	TotalCriteria int       `json:"total_criteria"`
	FoundCriteria int       `json:"found_criteria"`
	// MeanFoundScore averages raw scores over found criteria only.
	MeanFoundScore float64 `json:"mean_found_score"`

	Evidence    []evidence.Evidence `json:"evidence"`
	Summary     Summary             `json:"analysis_summary"`
	Quality     QualityBreakdown    `json:"evidence_quality"`
	Performance Performance         `json:"performance_metrics"`
}

// Summary lists which criteria resolved and how the phases went.
type Summary struct {
	CriteriaFound    []string       `json:"criteria_found"`
	CriteriaNotFound []string       `json:"criteria_not_found"`
	EntityDomains    []string       `json:"entity_domains"`
	Phases           []PhaseSummary `json:"phases_completed"`
}

// PhaseSummary is one phase trace flattened for the payload.
type PhaseSummary struct {
	Phase     string  `json:"phase"`
	Seconds   float64 `json:"seconds"`
	Attempted int     `json:"sources_attempted"`
	Succeeded int     `json:"sources_succeeded"`
	Truncated bool    `json:"truncated"`
}

// QualityBreakdown buckets found criteria by oracle confidence and by
// the kind of source the winning record came from.
type QualityBreakdown struct {
	HighConfidence   []string        `json:"high_confidence"`
	MediumConfidence []string        `json:"medium_confidence"`
	LowConfidence    []string        `json:"low_confidence"`
	Sources          SourceBreakdown `json:"source_breakdown"`
}

// SourceBreakdown groups found criteria by winning source kind.
type SourceBreakdown struct {
	Document []string `json:"document_evidence"`
	Page     []string `json:"page_evidence"`
	Snippet  []string `json:"snippet_evidence"`
}

// Performance carries the run's effort counters.
type Performance struct {
	TotalSeconds        float64 `json:"total_seconds"`
	PagesFetched        int     `json:"pages_fetched"`
	OracleCalls         int     `json:"oracle_calls"`
	OracleTokens        int     `json:"oracle_tokens"`
	SourcesPerCriterion float64 `json:"sources_per_criterion"`
	// SuccessRate is accepted sources over attempted sources.
	SuccessRate float64 `json:"success_rate"`
}

// Build assembles the payload from a run result. Criteria the run never
// produced a record for count as not found.
func Build(res engine.Result) Document {
	byID := make(map[criteria.ID]evidence.Evidence, len(res.Evidence))
	for _, ev := range res.Evidence {
		byID[ev.Criterion] = ev
	}

	ids := criteria.IDs()
	doc := Document{
		Entity:         res.Entity,
		RunID:          res.RunID.String(),
		GeneratedAt:    res.FinishedAt,
		Complete:       res.Complete,
		TotalCriteria:  len(ids),
		FoundCriteria:  res.Found,
		MeanFoundScore: res.Quality,
		Evidence:       res.Evidence,
		Summary: Summary{
			CriteriaFound:    []string{},
			CriteriaNotFound: []string{},
			EntityDomains:    res.Domains,
			Phases:           make([]PhaseSummary, 0, len(res.Phases)),
		},
		Quality: QualityBreakdown{
			HighConfidence:   []string{},
			MediumConfidence: []string{},
			LowConfidence:    []string{},
			Sources: SourceBreakdown{
				Document: []string{},
				Page:     []string{},
				Snippet:  []string{},
			},
		},
	}

	for _, id := range ids {
		ev, ok := byID[id]
		if !ok || !ev.Found {
			doc.Summary.CriteriaNotFound = append(doc.Summary.CriteriaNotFound, string(id))
			continue
		}
		doc.Summary.CriteriaFound = append(doc.Summary.CriteriaFound, string(id))

		switch {
		case ev.Confidence >= highConfidenceFloor:
			doc.Quality.HighConfidence = append(doc.Quality.HighConfidence, string(id))
		case ev.Confidence >= mediumConfidenceFloor:
			doc.Quality.MediumConfidence = append(doc.Quality.MediumConfidence, string(id))
		default:
			doc.Quality.LowConfidence = append(doc.Quality.LowConfidence, string(id))
		}

		switch ev.SourceKind {
		case evidence.SourceDocument:
			doc.Quality.Sources.Document = append(doc.Quality.Sources.Document, string(id))
		case evidence.SourcePage:
			doc.Quality.Sources.Page = append(doc.Quality.Sources.Page, string(id))
		case evidence.SourceSnippet:
			doc.Quality.Sources.Snippet = append(doc.Quality.Sources.Snippet, string(id))
		}
	}

	attempted, succeeded := 0, 0
	for _, ph := range res.Phases {
		doc.Summary.Phases = append(doc.Summary.Phases, PhaseSummary{
			Phase:     ph.Phase,
			Seconds:   ph.Duration.Seconds(),
			Attempted: ph.Attempted,
			Succeeded: ph.Succeeded,
			Truncated: ph.Truncated,
		})
		attempted += ph.Attempted
		succeeded += ph.Succeeded
	}

	doc.Performance = Performance{
		TotalSeconds: res.FinishedAt.Sub(res.StartedAt).Seconds(),
		PagesFetched: res.PagesFetched,
		OracleCalls:  res.OracleCalls,
		OracleTokens: res.OracleTokens,
	}
	if len(ids) > 0 {
		doc.Performance.SourcesPerCriterion = float64(attempted) / float64(len(ids))
	}
	if attempted > 0 {
		doc.Performance.SuccessRate = float64(succeeded) / float64(attempted)
	}
	return doc
}

// Marshal renders the payload as indented JSON.
func Marshal(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode scorecard: %w", err)
	}
	return append(data, '\n'), nil
}

// Filename returns the filesystem-safe export name for an entity.
func Filename(entity string) string {
	base := strings.Trim(sanitize.Name(entity), "-.")
	if base == "" {
		base = "entity"
	}
	return base + "_scorecard.json"
}

// Write renders res under dir, creating dir if needed, and returns the
// path written.
func Write(dir string, res engine.Result) (string, error) {
	data, err := Marshal(Build(res))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, Filename(res.Entity))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write scorecard: %w", err)
	}
	return path, nil
}
