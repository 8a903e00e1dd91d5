package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/evidence"
)

func TestStillUnfound(t *testing.T) {
	pending := []criteria.ID{criteria.CNGFleet, criteria.AltFuels, criteria.Regulatory}
	records := map[criteria.ID]evidence.Evidence{
		criteria.CNGFleet: {Criterion: criteria.CNGFleet, Found: true, Score: 1},
		criteria.AltFuels: evidence.NotFound(criteria.AltFuels, "no mention"),
	}

	got := stillUnfound(pending, records)
	assert.Equal(t, []criteria.ID{criteria.AltFuels, criteria.Regulatory}, got,
		"not-found records and absent criteria both stay pending")
}

func TestKeywordsForDeduplicates(t *testing.T) {
	got := keywordsFor([]criteria.ID{criteria.CNGFleet, criteria.CNGFleetSize})

	seen := make(map[string]int)
	for _, kw := range got {
		seen[kw]++
	}
	for kw, n := range seen {
		assert.Equal(t, 1, n, "keyword %q repeated", kw)
	}
	assert.Contains(t, got, "compressed natural gas")
	assert.Contains(t, got, "cng trucks")
}
