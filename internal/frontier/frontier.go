// Package frontier implements the crawl frontier: a scored priority
// queue of candidate URLs with canonical-form deduplication, depth and
// page ceilings, and deterministic FIFO ordering between equal scores.
package frontier

import (
	"container/heap"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/trust"
)

// Item is one queued crawl candidate. URL holds the canonical form
// used for deduplication; RawURL is the link as discovered.
type Item struct {
	URL    string
	RawURL string
	Depth  int
	Score  float64

	seq   uint64
	index int
}

// Frontier is a single-goroutine priority queue. The engine owns it;
// no internal locking.
type Frontier struct {
	registry *trust.Registry
	needed   func() []criteria.ID
	maxDepth int
	maxPages int

	heap     itemHeap
	queued   map[string]bool
	visited  map[string]bool
	admitted int
	nextSeq  uint64
}

// New builds a frontier bounded by maxDepth link hops and maxPages
// total admissions. needed, when non-nil, supplies the criteria whose
// keywords earn URL score points at Push time.
func New(registry *trust.Registry, maxDepth, maxPages int, needed func() []criteria.ID) *Frontier {
	return &Frontier{
		registry: registry,
		needed:   needed,
		maxDepth: maxDepth,
		maxPages: maxPages,
		queued:   make(map[string]bool),
		visited:  make(map[string]bool),
	}
}

// Push scores and enqueues a discovered URL. It reports false when the
// URL is dropped: malformed, non-HTTP, beyond the depth or page
// ceiling, or already visited or queued under its canonical form.
func (f *Frontier) Push(rawURL string, depth int) bool {
	if depth > f.maxDepth {
		return false
	}
	if f.admitted >= f.maxPages {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	canon := canonicalize(u)
	if f.visited[canon] || f.queued[canon] {
		return false
	}
	item := &Item{
		URL:    canon,
		RawURL: rawURL,
		Depth:  depth,
		Score:  f.score(u),
		seq:    f.nextSeq,
	}
	f.nextSeq++
	f.admitted++
	f.queued[canon] = true
	heap.Push(&f.heap, item)
	return true
}

// Pop removes and returns the highest scored item. Equal scores come
// out in insertion order.
func (f *Frontier) Pop() (Item, bool) {
	if f.heap.Len() == 0 {
		return Item{}, false
	}
	item := heap.Pop(&f.heap).(*Item)
	delete(f.queued, item.URL)
	return *item, true
}

// MarkVisited records a URL as processed so it is never re-queued.
// Marking twice is harmless.
func (f *Frontier) MarkVisited(rawURL string) {
	if canon, ok := canonicalRaw(rawURL); ok {
		f.visited[canon] = true
	}
}

// Visited reports whether a URL's canonical form has been processed.
func (f *Frontier) Visited(rawURL string) bool {
	canon, ok := canonicalRaw(rawURL)
	return ok && f.visited[canon]
}

// Len is the number of queued items.
func (f *Frontier) Len() int { return f.heap.Len() }

// Admitted is the total number of URLs accepted over the frontier's
// lifetime, bounded by the page ceiling.
func (f *Frontier) Admitted() int { return f.admitted }

// pathKeywords raise a URL's priority when they appear in its path.
var pathKeywords = []string{
	"sustainability", "esg", "environment", "climate", "emissions",
	"responsibility", "csr", "fleet", "cng", "natural-gas",
	"alternative-fuel", "clean-energy", "carbon",
}

// irIndexMarkers identify investor-relations index pages, which are
// link farms with little analyzable prose.
var irIndexMarkers = []string{
	"investor-relations", "/investors", "/ir/", "sec-filings",
	"stock-information", "dividend", "quote",
}

// score ranks a parsed URL: entity domains above authority domains
// above unknown hosts, report-like paths above index pages, documents
// above pages, plus a point per still-needed criterion keyword spelled
// out in the path or query. Never negative.
func (f *Frontier) score(u *url.URL) float64 {
	host := u.Hostname()
	path := strings.ToLower(u.Path)

	var s float64
	switch {
	case f.registry != nil && f.registry.IsEntityDomain(host):
		s += 3.0
	default:
		if tier := trust.AuthorityTier(host); tier != trust.TierNone {
			s += 2.5 - 0.5*float64(tier-trust.TierRegulatory)
		}
	}

	var kw float64
	for _, k := range pathKeywords {
		if strings.Contains(path, k) {
			kw += 0.5
		}
	}
	if kw > 2.0 {
		kw = 2.0
	}
	s += kw

	if strings.HasSuffix(path, ".pdf") {
		s += 1.5
	}
	for _, m := range irIndexMarkers {
		if strings.Contains(path, m) {
			s -= 1.0
			break
		}
	}

	s += f.keywordPoints(path + "?" + strings.ToLower(u.RawQuery))

	if s < 0 {
		return 0
	}
	return s
}

// keywordPoints awards one point per needed-criterion keyword present
// in the URL, matching multi-word keywords the way URLs hyphenate them.
func (f *Frontier) keywordPoints(target string) float64 {
	if f.needed == nil {
		return 0
	}
	var pts float64
	counted := make(map[string]bool)
	for _, id := range f.needed() {
		c, ok := criteria.Get(id)
		if !ok {
			continue
		}
		for _, kw := range c.Keywords {
			token := strings.ReplaceAll(strings.ToLower(kw), " ", "-")
			if counted[token] {
				continue
			}
			counted[token] = true
			if strings.Contains(target, token) {
				pts++
			}
		}
	}
	return pts
}

// trackingParams are query keys dropped during canonicalization.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "mc_cid": true, "mc_eid": true,
	"ref": true, "source": true,
}

func canonicalRaw(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	return canonicalize(u), true
}

// canonicalize produces the deduplication key for a URL: lowercase
// scheme and host, default ports and fragments removed, tracking
// parameters dropped, remaining parameters sorted, trailing slash
// trimmed.
func canonicalize(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := trust.NormalizeHost(u.Host)
	if p := u.Port(); p != "" && p != "80" && p != "443" {
		host = host + ":" + p
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	query := ""
	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			keys := make([]string, 0, len(values))
			for k := range values {
				if trackingParams[k] || strings.HasPrefix(k, "utm_") {
					continue
				}
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var b strings.Builder
			for _, k := range keys {
				for _, v := range values[k] {
					if b.Len() > 0 {
						b.WriteByte('&')
					}
					b.WriteString(url.QueryEscape(k))
					b.WriteByte('=')
					b.WriteString(url.QueryEscape(v))
				}
			}
			query = b.String()
		} else {
			query = u.RawQuery
		}
	}

	out := fmt.Sprintf("%s://%s%s", scheme, host, path)
	if query != "" {
		out += "?" + query
	}
	return out
}

// itemHeap is a max-heap on Score with FIFO insertion order as the
// tie-break.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
