// Package oracle submits batched source text to the external analysis
// model and returns its raw JSON findings. Nothing here interprets the
// payload; the evidence validator owns that boundary.
package oracle

import (
	"context"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// Request carries one batch of text for analysis.
type Request struct {
	// Entity is the company the findings must be about.
	Entity string
	// SourceURL identifies where the text came from.
	SourceURL string
	// Text is one batch produced by the batcher.
	Text string
	// Criteria lists the criterion ids the oracle should answer for.
	Criteria []criteria.ID
}

// Result is the oracle's raw answer plus usage accounting.
type Result struct {
	// Payload is the JSON object keyed by criterion id.
	Payload    []byte
	Model      string
	TokensUsed int
}

// Analyzer asks the external model about one batch of text.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}
