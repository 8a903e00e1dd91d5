package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenproof/fleetscore/internal/trust"
)

const scriptNoise = "var fleet = {}; function(cng) { window.document.load(); };\n"

func newTestScreener(t *testing.T) (*Screener, *trust.Registry) {
	t.Helper()
	reg := trust.NewRegistry("Acme Logistics", nil)
	reg.AddDomain("acmelogistics.com")
	return NewScreener(Config{}, reg, nil), reg
}

// TestScreenAcceptsAuthorityUnconditionally checks that allow-listed
// regulatory hosts are accepted before any content rule runs, even
// when the text itself looks like script noise.
func TestScreenAcceptsAuthorityUnconditionally(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	v := s.Screen("https://www.sec.gov/cgi-bin/browse-edgar", strings.Repeat(scriptNoise, 10))
	require.True(t, v.Accepted)
	assert.Contains(t, v.Reason, "regulatory")
}

// TestScreenRejectsNonProse checks that script-heavy text is rejected
// even though it contains vocabulary keywords that rule three would
// otherwise accept.
func TestScreenRejectsNonProse(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	v := s.Screen("https://example.com/page", strings.Repeat(scriptNoise, 10))
	require.False(t, v.Accepted)
	assert.Equal(t, "mostly non-prose content", v.Reason)
}

// TestScreenAcceptsEntityDomain checks the lower mention threshold on
// the entity's own domain.
func TestScreenAcceptsEntityDomain(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	text := "Acme Logistics operates a modern regional distribution network with headquarters in Ohio."
	v := s.Screen("https://acmelogistics.com/about", text)
	require.True(t, v.Accepted)
	assert.Contains(t, v.Reason, "entity domain")
}

// TestScreenAcceptsKeywordRelevance checks rule three: enough distinct
// vocabulary keywords in a long enough text, without any entity signal.
func TestScreenAcceptsKeywordRelevance(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	text := "The regional carrier said it will expand its fleet with one hundred new tractors next year. " +
		"The company has also begun testing compressed natural gas as part of a broader effort to cut fuel costs. " +
		"Industry observers expect the move to influence other carriers across the midwest as diesel prices continue to climb."
	v := s.Screen("https://news.example.com/story", text)
	require.True(t, v.Accepted)
	assert.Contains(t, v.Reason, "keywords")
}

// TestScreenRejectsShortText checks that brief text without an entity
// domain fails on the length floor.
func TestScreenRejectsShortText(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	v := s.Screen("https://example.org/x", "Acme is great.")
	require.False(t, v.Accepted)
	assert.Equal(t, "text below minimum length", v.Reason)
}

// TestScreenRejectsIrrelevantText checks that long prose with neither
// entity nor keyword relevance is rejected.
func TestScreenRejectsIrrelevantText(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	text := "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. " +
		"Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. " +
		"Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur."
	v := s.Screen("https://blog.example.net/post", text)
	require.False(t, v.Accepted)
	assert.Equal(t, "no entity or keyword relevance", v.Reason)
}

// TestScreenDocumentOwnership walks the document acceptance ladder:
// regulatory hosting, entity hosting, entity-named report files,
// ownership statements, and mention counts with the CDN discount.
func TestScreenDocumentOwnership(t *testing.T) {
	t.Parallel()
	s, _ := newTestScreener(t)

	tests := []struct {
		name   string
		url    string
		title  string
		text   string
		accept bool
		reason string
	}{
		{
			name:   "regulatory filing",
			url:    "https://www.sec.gov/Archives/edgar/data/123/acme-10k.pdf",
			title:  "Form 10-K",
			accept: true,
			reason: "regulatory filing",
		},
		{
			name:   "third party analyst report",
			url:    "https://broker.example.com/research/analyst-report-trucking.pdf",
			text:   "Acme Acme Acme",
			accept: false,
			reason: "third-party or off-topic document",
		},
		{
			name:   "entity domain document",
			url:    "https://acmelogistics.com/downloads/annual.pdf",
			title:  "Annual Review",
			accept: true,
			reason: "entity domain document",
		},
		{
			name:   "entity named sustainability report",
			url:    "https://hosting.example.net/uploads/acme-logistics-sustainability-report-2025.pdf",
			accept: true,
			reason: "entity-named report",
		},
		{
			name:   "ownership statement in head",
			url:    "https://papers.example.com/report.pdf",
			title:  "Fleet Decarbonization",
			text:   "© 2025 Acme Logistics. All rights reserved. This report covers fiscal year 2025.",
			accept: true,
			reason: "ownership statement",
		},
		{
			name:   "two mentions off cdn",
			url:    "https://papers.example.com/report.pdf",
			text:   "Acme operates the largest dedicated network. Customers choose Acme for reliability.",
			accept: true,
			reason: "2 entity mentions",
		},
		{
			name:   "one mention off cdn",
			url:    "https://papers.example.com/report.pdf",
			text:   "Acme operates the largest dedicated network in the region.",
			accept: false,
			reason: "no ownership signal",
		},
		{
			name:   "one mention on cdn path",
			url:    "https://host.example.com/files/2025/report.pdf",
			text:   "Acme operates the largest dedicated network in the region.",
			accept: true,
			reason: "1 entity mentions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.ScreenDocument(tt.url, tt.title, tt.text)
			assert.Equal(t, tt.accept, v.Accepted)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

// TestIsMostlyNonProse exercises the noise heuristic directly.
func TestIsMostlyNonProse(t *testing.T) {
	t.Parallel()

	prose := "The regional carrier said it will expand its fleet with one hundred new tractors next year. " +
		"The company has also begun testing compressed natural gas as part of a broader effort to cut fuel costs."
	assert.False(t, IsMostlyNonProse(prose))

	assert.True(t, IsMostlyNonProse(strings.Repeat(scriptNoise, 10)))

	nav := strings.Repeat("Home\nAbout Us\nServices\nContact\nCareers\nLogin\nPrivacy Policy\nTerms\n", 3)
	assert.True(t, IsMostlyNonProse(nav))

	assert.False(t, IsMostlyNonProse("short"))
}
