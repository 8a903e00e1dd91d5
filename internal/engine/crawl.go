package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/evidence"
)

// runCrawl is the last resort: crawl outward from the entity's own
// domains and every candidate the earlier phases left behind, highest
// relevance first, re-seeding the frontier with links found on
// accepted pages. The visit budget shrinks as the table fills.
func (r *run) runCrawl(ctx context.Context, trace *PhaseTrace) {
	r.seedFrontier()
	if r.frontier.Len() == 0 {
		r.logger.Info("crawl frontier empty, nothing to do")
		return
	}

	workers := poolSize(r.e.cfg.Workers, r.frontier.Len())
	p := r.startPool(ctx, PhaseCrawl, workers)
	defer p.stop()

	done := ctx.Done()
	closed := false
	inFlight := 0
	for {
		if !closed {
			budget := crawlPageBudget(len(r.table.Missing()), r.e.cfg.MaxCrawlPages)
			for inFlight < workers && trace.Attempted < budget {
				item, ok := r.frontier.Pop()
				if !ok {
					break
				}
				r.frontier.MarkVisited(item.RawURL)
				p.tasks <- task{
					src:    Source{URL: item.RawURL, Kind: evidence.SourcePage, Depth: item.Depth},
					needed: r.neededNow(),
				}
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
			if r.apply(out, trace) {
				closed = true
				continue
			}
			if out.accepted {
				for _, link := range out.links {
					r.frontier.Push(link, out.src.Depth+1)
				}
			}
		case <-done:
			closed = true
			done = nil
		}
	}
}

// seedFrontier marks everything already fetched as visited, then
// queues the entity's domains and the accumulated candidates.
func (r *run) seedFrontier() {
	for u := range r.fetched {
		r.frontier.MarkVisited(u)
	}
	for _, d := range r.registry.Domains() {
		r.frontier.Push("https://"+d, 0)
	}
	for _, c := range r.candidates {
		r.frontier.Push(c.URL, c.Depth)
	}
	r.logger.Info("crawl frontier seeded",
		zap.Int("queued", r.frontier.Len()),
		zap.Strings("domains", r.registry.Domains()))
}

// crawlPageBudget returns the phase visit budget given how many
// criteria still lack evidence: three pages per open criterion while
// three or more are open, two while two are, one for the last, always
// under the phase page cap.
func crawlPageBudget(missing, maxPages int) int {
	per := 3
	switch {
	case missing <= 1:
		per = 1
	case missing <= 2:
		per = 2
	}
	limit := missing * per
	if limit > maxPages {
		limit = maxPages
	}
	return limit
}
