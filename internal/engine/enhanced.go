package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/evidence"
	"github.com/greenproof/fleetscore/internal/extract"
	"github.com/greenproof/fleetscore/internal/frontier"
	"github.com/greenproof/fleetscore/internal/search"
)

// runSearch works the criteria that are still open: targeted queries
// per criterion, the result snippets analyzed first as one
// pseudo-document per criterion, then the top-scored result pages
// fetched up to the phase page cap. Pages not fetched here become
// crawl candidates.
func (r *run) runSearch(ctx context.Context, trace *PhaseTrace) {
	needed := r.neededNow()
	snippets, pages := r.searchCriteria(ctx, needed)
	ranked := r.rankCandidates(pages)

	if r.runTaskList(ctx, PhaseSearch, snippets, trace, nil) {
		r.candidates = append(r.candidates, ranked...)
		return
	}

	cut := r.e.cfg.MaxSearchPages
	if cut > len(ranked) {
		cut = len(ranked)
	}
	pageTasks := make([]task, 0, cut)
	for _, src := range ranked[:cut] {
		pageTasks = append(pageTasks, task{src: src})
	}
	r.candidates = append(r.candidates, ranked[cut:]...)

	r.runTaskList(ctx, PhaseSearch, pageTasks, trace, func(out outcome) {
		for _, link := range out.links {
			if !r.fetched[link] {
				r.candidates = append(r.candidates, Source{
					URL:   link,
					Kind:  evidence.SourcePage,
					Depth: out.src.Depth + 1,
				})
			}
		}
	})
}

// searchCriteria fans the per-criterion query templates out through
// the search collaborator. Snippet text is normalized and joined into
// one pseudo-document per criterion; result links are collected once
// across criteria as page candidates.
func (r *run) searchCriteria(
	ctx context.Context,
	needed []criteria.ID,
) (snippets []task, pages []Source) {
	seen := make(map[string]bool)
	for _, id := range needed {
		if ctx.Err() != nil {
			break
		}
		queries := search.CriterionQueries(r.entity, id)
		if len(queries) > r.e.cfg.QueriesPerCriterion {
			queries = queries[:r.e.cfg.QueriesPerCriterion]
		}
		var blocks []string
		for _, q := range queries {
			results, err := r.e.searcher.Search(ctx, q, r.e.cfg.SearchResults)
			if err != nil {
				r.logger.Warn("criterion query failed",
					zap.String("criterion", string(id)),
					zap.String("query", q),
					zap.Error(err))
				continue
			}
			for _, res := range results {
				if res.Snippet != "" {
					blocks = append(blocks, strings.TrimSpace(res.Title+". "+res.Snippet))
				}
				if res.Link == "" || seen[res.Link] || r.fetched[res.Link] {
					continue
				}
				seen[res.Link] = true
				pages = append(pages, Source{
					URL:     res.Link,
					Kind:    evidence.SourcePage,
					Title:   res.Title,
					Snippet: res.Snippet,
				})
			}
		}
		if len(blocks) > 0 {
			snippets = append(snippets, task{
				src: Source{
					URL:  "search://" + string(id),
					Kind: evidence.SourceSnippet,
					Text: extract.Normalize(strings.Join(blocks, "\n\n")),
				},
				needed: []criteria.ID{id},
			})
		}
	}
	r.logger.Info("criterion search finished",
		zap.Int("criteria", len(needed)),
		zap.Int("pseudo_documents", len(snippets)),
		zap.Int("page_candidates", len(pages)))
	return snippets, pages
}

// rankCandidates orders page candidates by frontier relevance score,
// deduplicating canonical URL variants along the way.
func (r *run) rankCandidates(pages []Source) []Source {
	if len(pages) == 0 {
		return nil
	}
	rank := frontier.New(r.registry, 0, len(pages), r.neededNow)
	byRaw := make(map[string]Source, len(pages))
	for _, src := range pages {
		if rank.Push(src.URL, 0) {
			byRaw[src.URL] = src
		}
	}
	out := make([]Source, 0, rank.Len())
	for {
		item, ok := rank.Pop()
		if !ok {
			return out
		}
		out = append(out, byRaw[item.RawURL])
	}
}
