// Package evidence defines the validated evidence record, the loosely
// typed oracle finding it is distilled from, and the per-run table that
// keeps the single best record per criterion.
package evidence

import (
	"github.com/greenproof/fleetscore/internal/criteria"
)

// SourceKind classifies where a piece of evidence came from.
type SourceKind string

const (
	// SourceDocument is a published report or filing.
	SourceDocument SourceKind = "document"
	// SourcePage is a fetched and extracted web page.
	SourcePage SourceKind = "page"
	// SourceSnippet is search-result snippet text.
	SourceSnippet SourceKind = "snippet"
)

// rank orders source kinds for consolidation tie-breaks.
func (k SourceKind) rank() int {
	switch k {
	case SourceDocument:
		return 3
	case SourcePage:
		return 2
	case SourceSnippet:
		return 1
	default:
		return 0
	}
}

// Evidence is the validated outcome of analyzing one source for one
// criterion. Records are immutable once built; consolidation replaces
// them wholesale rather than mutating fields.
type Evidence struct {
	Criterion     criteria.ID `json:"criterion"`
	Found         bool        `json:"found"`
	Score         int         `json:"score"`
	Confidence    int         `json:"confidence"`
	Quote         string      `json:"quote,omitempty"`
	Context       string      `json:"context,omitempty"`
	Justification string      `json:"justification,omitempty"`
	SourceURL     string      `json:"source_url,omitempty"`
	SourceKind    SourceKind  `json:"source_kind,omitempty"`
	Verified      bool        `json:"verified"`
	Number        *float64    `json:"number,omitempty"`
	Unit          string      `json:"unit,omitempty"`
	RangeMin      *float64    `json:"range_min,omitempty"`
	RangeMax      *float64    `json:"range_max,omitempty"`
}

// NotFound returns the sentinel record for a criterion with no usable
// evidence. Found is false and the score is zero by construction.
func NotFound(id criteria.ID, justification string) Evidence {
	return Evidence{Criterion: id, Justification: justification}
}

// prefersCandidate applies the consolidation order after the nil-current
// rule: found evidence beats the not-found sentinel, verified beats
// unverified, then strictly higher score, then source kind document >
// page > snippet. Anything else keeps current.
func prefersCandidate(current, candidate Evidence) bool {
	if current.Found != candidate.Found {
		return candidate.Found
	}
	if current.Verified != candidate.Verified {
		return candidate.Verified
	}
	if candidate.Score != current.Score {
		return candidate.Score > current.Score
	}
	return candidate.SourceKind.rank() > current.SourceKind.rank()
}

// Merge returns the better of current and candidate. It is pure: a nil
// current always loses to the candidate, and ties keep current, so
// folding any permutation of a candidate set converges to the same
// record up to the stated tie-break.
func Merge(current *Evidence, candidate Evidence) Evidence {
	if current == nil {
		return candidate
	}
	if prefersCandidate(*current, candidate) {
		return candidate
	}
	return *current
}
