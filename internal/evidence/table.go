package evidence

import (
	"github.com/greenproof/fleetscore/internal/criteria"
)

// Table keeps at most one evidence record per criterion for one run.
// The run orchestrator owns it and mutates it only from its
// consolidation loop, so it carries no locking.
type Table struct {
	records map[criteria.ID]Evidence
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{records: make(map[criteria.ID]Evidence)}
}

// Consider merges the candidate against the stored record for its
// criterion and reports whether the candidate became current. Candidates
// for unknown criteria are dropped.
func (t *Table) Consider(candidate Evidence) bool {
	if !criteria.Known(candidate.Criterion) {
		return false
	}
	current, ok := t.records[candidate.Criterion]
	if !ok {
		t.records[candidate.Criterion] = candidate
		return true
	}
	if prefersCandidate(current, candidate) {
		t.records[candidate.Criterion] = candidate
		return true
	}
	return false
}

// Get returns the current record for id.
func (t *Table) Get(id criteria.ID) (Evidence, bool) {
	ev, ok := t.records[id]
	return ev, ok
}

// Len returns the number of stored records, found or not.
func (t *Table) Len() int {
	return len(t.records)
}

// FoundCount returns the number of criteria with found evidence.
func (t *Table) FoundCount() int {
	n := 0
	for _, ev := range t.records {
		if ev.Found {
			n++
		}
	}
	return n
}

// Missing returns the criteria that still lack found evidence, in
// stable registry order.
func (t *Table) Missing() []criteria.ID {
	var out []criteria.ID
	for _, id := range criteria.IDs() {
		if ev, ok := t.records[id]; !ok || !ev.Found {
			out = append(out, id)
		}
	}
	return out
}

// Complete reports whether every criterion has found evidence.
func (t *Table) Complete() bool {
	return len(t.Missing()) == 0
}

// MeanFoundScore returns the mean score over found criteria, or 0 when
// nothing has been found.
func (t *Table) MeanFoundScore() float64 {
	sum, n := 0, 0
	for _, ev := range t.records {
		if ev.Found {
			sum += ev.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// Records returns a copy of the stored records keyed by criterion.
func (t *Table) Records() map[criteria.ID]Evidence {
	out := make(map[criteria.ID]Evidence, len(t.records))
	for id, ev := range t.records {
		out[id] = ev
	}
	return out
}

// Ordered returns the stored records in stable registry order, skipping
// criteria with no record yet.
func (t *Table) Ordered() []Evidence {
	out := make([]Evidence, 0, len(t.records))
	for _, id := range criteria.IDs() {
		if ev, ok := t.records[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}
