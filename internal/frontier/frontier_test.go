package frontier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/trust"
)

func newTestFrontier(maxDepth, maxPages int) *Frontier {
	reg := trust.NewRegistry("Acme Logistics", nil)
	reg.AddDomain("acmelogistics.com")
	return New(reg, maxDepth, maxPages, nil)
}

// TestPopOrdersByScore checks that entity domains outrank authority
// domains, which outrank unknown hosts, with path and document boosts
// on top.
func TestPopOrdersByScore(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(3, 100)

	require.True(t, f.Push("https://blog.example.com/post", 0))
	require.True(t, f.Push("https://acmelogistics.com/sustainability/report.pdf", 0))
	require.True(t, f.Push("https://www.sec.gov/filings", 0))

	first, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://acmelogistics.com/sustainability/report.pdf", first.URL)
	assert.InDelta(t, 5.0, first.Score, 0.001)

	second, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://www.sec.gov/filings", second.URL)
	assert.InDelta(t, 2.5, second.Score, 0.001)

	third, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://blog.example.com/post", third.URL)

	_, ok = f.Pop()
	assert.False(t, ok)
}

// TestEqualScoresPopInInsertionOrder checks the FIFO tie-break.
func TestEqualScoresPopInInsertionOrder(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(3, 100)

	for i := 0; i < 5; i++ {
		require.True(t, f.Push(fmt.Sprintf("https://site%d.example.com/page", i), 0))
	}
	for i := 0; i < 5; i++ {
		item, ok := f.Pop()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("https://site%d.example.com/page", i), item.URL)
	}
}

// TestInvestorIndexPenalty checks that investor-relations index pages
// rank below report-like paths on the same host, and that the penalty
// never drives a score below zero.
func TestInvestorIndexPenalty(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(3, 100)

	require.True(t, f.Push("https://acme.example.com/investor-relations", 0))
	require.True(t, f.Push("https://acme.example.com/sustainability", 0))

	first, _ := f.Pop()
	assert.Equal(t, "https://acme.example.com/sustainability", first.URL)
	second, _ := f.Pop()
	assert.Equal(t, "https://acme.example.com/investor-relations", second.URL)
	assert.Equal(t, 0.0, second.Score)
}

// TestNeededKeywordPoints checks that keywords of still-needed criteria
// raise a URL's score when they appear in the path or query.
func TestNeededKeywordPoints(t *testing.T) {
	t.Parallel()
	reg := trust.NewRegistry("Acme Logistics", nil)
	needed := func() []criteria.ID { return []criteria.ID{criteria.CNGFleet} }
	f := New(reg, 3, 100, needed)

	require.True(t, f.Push("https://news.example.com/cng-program?fuel=cng", 0))
	require.True(t, f.Push("https://news.example.com/about", 0))

	first, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://news.example.com/cng-program?fuel=cng", first.URL)
	assert.InDelta(t, 1.5, first.Score, 0.001)
}

// TestCeilings checks that the depth and total-page ceilings turn Push
// into a no-op.
func TestCeilings(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(1, 2)

	assert.False(t, f.Push("https://a.example.com/deep", 2))
	assert.True(t, f.Push("https://a.example.com/one", 1))
	assert.True(t, f.Push("https://a.example.com/two", 1))
	assert.False(t, f.Push("https://a.example.com/three", 1))
	assert.Equal(t, 2, f.Admitted())
}

// TestCanonicalDeduplication checks that URL variants differing only in
// case, tracking parameters, parameter order, fragments, or trailing
// slashes collapse to one queue entry.
func TestCanonicalDeduplication(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(3, 100)

	require.True(t, f.Push("https://Example.COM/path/?utm_source=news&b=2&a=1#section", 0))
	assert.False(t, f.Push("https://example.com/path?a=1&b=2", 0))

	item, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/path?a=1&b=2", item.URL)
	assert.Equal(t, 1, f.Admitted())
	assert.Equal(t, 0, f.Len())
}

// TestMarkVisitedBlocksRequeue checks that visited URLs are refused in
// any variant form and that marking twice is harmless.
func TestMarkVisitedBlocksRequeue(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(3, 100)

	f.MarkVisited("https://example.com/page?utm_campaign=x")
	f.MarkVisited("https://example.com/page")
	assert.True(t, f.Visited("https://example.com/page/"))
	assert.False(t, f.Push("https://example.com/page", 0))
}

// TestPushRejectsMalformed checks scheme and parse guards.
func TestPushRejectsMalformed(t *testing.T) {
	t.Parallel()
	f := newTestFrontier(3, 100)

	assert.False(t, f.Push("mailto:ir@acmelogistics.com", 0))
	assert.False(t, f.Push("javascript:void(0)", 0))
	assert.False(t, f.Push("not a url", 0))
	assert.False(t, f.Push("/relative/path", 0))
}
