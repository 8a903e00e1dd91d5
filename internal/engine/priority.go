package engine

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/evidence"
	"github.com/greenproof/fleetscore/internal/search"
	"github.com/greenproof/fleetscore/internal/trust"
)

// runPriority locates the entity's published reports through the
// search collaborator and analyzes documents until the document cap is
// reached. Candidates that fail ownership screening free their slot
// for the next one; non-document results are kept for the fallback
// crawl.
func (r *run) runPriority(ctx context.Context, trace *PhaseTrace) {
	docs, pages := r.discoverReports(ctx)
	r.candidates = append(r.candidates, pages...)
	if len(docs) == 0 {
		r.logger.Info("no report candidates discovered")
		return
	}

	workers := poolSize(r.e.cfg.Workers, len(docs))
	p := r.startPool(ctx, PhasePriority, workers)
	defer p.stop()

	done := ctx.Done()
	closed := false
	inFlight, next, accepted := 0, 0, 0
	for {
		if !closed {
			for inFlight < workers && next < len(docs) &&
				accepted+inFlight < r.e.cfg.MaxPDFs {
				p.tasks <- task{src: docs[next], needed: r.neededNow()}
				next++
				inFlight++
				trace.Attempted++
			}
		}
		if inFlight == 0 {
			return
		}
		select {
		case out := <-p.results:
			inFlight--
			if closed {
				continue
			}
			if out.accepted {
				accepted++
			}
			if r.apply(out, trace) {
				closed = true
			}
		case <-done:
			closed = true
			done = nil
		}
	}
}

// discoverReports runs the report-discovery queries and splits the
// deduplicated results into document candidates, best first, and plain
// page candidates.
func (r *run) discoverReports(ctx context.Context) (docs, pages []Source) {
	seen := make(map[string]bool)
	for _, q := range search.ReportQueries(r.entity) {
		if ctx.Err() != nil {
			break
		}
		results, err := r.e.searcher.Search(ctx, q, r.e.cfg.SearchResults)
		if err != nil {
			r.logger.Warn("report query failed",
				zap.String("query", q),
				zap.Error(err))
			continue
		}
		for _, res := range results {
			if res.Link == "" || seen[res.Link] {
				continue
			}
			seen[res.Link] = true
			src := Source{
				URL:     res.Link,
				Kind:    evidence.SourcePage,
				Title:   res.Title,
				Snippet: res.Snippet,
			}
			if likelyPDF(res.Link) {
				src.Kind = evidence.SourceDocument
				docs = append(docs, src)
			} else {
				pages = append(pages, src)
			}
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return r.docRank(docs[i]) > r.docRank(docs[j])
	})
	r.logger.Info("report discovery finished",
		zap.Int("documents", len(docs)),
		zap.Int("pages", len(pages)))
	return docs, pages
}

// docRank orders document candidates: the entity's own material first,
// then regulatory filings, then the rest.
func (r *run) docRank(src Source) int {
	host := hostOf(src.URL)
	switch {
	case r.registry.IsEntityDomain(host):
		return 2
	case trust.IsRegulatoryAuthority(host):
		return 1
	default:
		return 0
	}
}

func likelyPDF(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), ".pdf")
}
