// Package engine orchestrates one evidence run: a strict phase
// sequence of report discovery, criterion-targeted search, and a
// fallback crawl, each feeding a bounded worker pool whose results are
// consolidated serially into the evidence table. A run always ends in
// DONE with a Result; empty evidence is an outcome, not an error.
//
// Workers only talk to collaborators (fetcher, searcher, oracle,
// archiver) and hand outcomes back to the orchestrating goroutine,
// which is the sole writer of the table, the frontier, and the run
// counters. Phase deadlines close a phase cooperatively: late results
// are drained and discarded, never merged.
package engine
