// Package validate screens fetched resources before they are spent on
// oracle analysis: ordered acceptance rules for pages, ownership checks
// for published documents, and a noise heuristic that throws out text
// that does not read like prose.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/trust"
)

// Verdict is the screening outcome. Rejection is an outcome, not an
// error; Reason explains the first rule that fired.
type Verdict struct {
	Accepted bool
	Reason   string
}

func accept(reason string) Verdict { return Verdict{Accepted: true, Reason: reason} }
func reject(reason string) Verdict { return Verdict{Accepted: false, Reason: reason} }

// Config holds the screening thresholds.
type Config struct {
	// MentionThreshold is the entity-name mention floor for material
	// hosted off the entity's own domains.
	MentionThreshold int
	// DomainMentionThreshold is the lower floor used on the entity's
	// own domains and CDN-hosted documents.
	DomainMentionThreshold int
	// MinTextChars is the length floor for keyword-based acceptance.
	MinTextChars int
	// MinKeywordHits is the distinct-keyword floor for rule three.
	MinKeywordHits int
}

// Screener applies the document validation rules for one run's entity.
type Screener struct {
	cfg      Config
	registry *trust.Registry
	vocab    []*regexp.Regexp
	logger   *zap.Logger
}

// NewScreener builds a Screener over the combined keyword vocabulary of
// every criterion. Keywords match on word boundaries so short terms
// like "ev" do not fire inside ordinary words.
func NewScreener(cfg Config, registry *trust.Registry, logger *zap.Logger) *Screener {
	if cfg.MentionThreshold <= 0 {
		cfg.MentionThreshold = 2
	}
	if cfg.DomainMentionThreshold <= 0 {
		cfg.DomainMentionThreshold = 1
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 300
	}
	if cfg.MinKeywordHits <= 0 {
		cfg.MinKeywordHits = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var vocab []*regexp.Regexp
	seen := make(map[string]bool)
	for _, c := range criteria.All() {
		for _, kw := range c.Keywords {
			kw = strings.ToLower(kw)
			if !seen[kw] {
				seen[kw] = true
				vocab = append(vocab, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
			}
		}
	}
	return &Screener{cfg: cfg, registry: registry, vocab: vocab, logger: logger}
}

// Screen decides whether a fetched page's extracted text is worth
// analyzing for the entity. Rules fire in order: authority allow-list,
// noise rejection, entity domain with mentions, keyword relevance,
// otherwise reject.
func (s *Screener) Screen(rawURL, text string) Verdict {
	u, err := url.Parse(rawURL)
	if err != nil {
		return reject("unparseable url")
	}
	host := u.Hostname()

	if trust.IsRegulatoryAuthority(host) {
		return accept("regulatory authority domain")
	}

	if IsMostlyNonProse(text) {
		return reject("mostly non-prose content")
	}

	if s.registry.IsEntityDomain(host) {
		mentions := s.registry.MentionCount(text)
		if mentions >= s.cfg.DomainMentionThreshold {
			return accept(fmt.Sprintf("entity domain with %d mentions", mentions))
		}
		// Fall through: an entity page that never names the entity can
		// still qualify on keywords.
	}

	if len(text) >= s.cfg.MinTextChars {
		if hits := s.keywordHits(text); hits >= s.cfg.MinKeywordHits {
			return accept(fmt.Sprintf("%d relevant keywords", hits))
		}
	}

	if len(text) < s.cfg.MinTextChars {
		return reject("text below minimum length")
	}
	return reject("no entity or keyword relevance")
}

// documentRejectMarkers identify third-party or off-topic documents by
// URL or title alone.
var documentRejectMarkers = []string{
	".edu/", "university", "service-guide", "manual.pdf",
	"ecommerce-ebook", "analyst-report", "earnings-presentation",
	"investor-presentation", "quarterly-presentation",
}

// sustainabilityFileMarkers identify report-like document names.
var sustainabilityFileMarkers = []string{
	"sustainability", "esg", "csr", "corporate-responsibility",
	"environmental", "impact-report", "climate", "responsibility-report",
}

// ownershipMarkers are publication statements that, together with an
// entity mention, establish a document's author.
var ownershipMarkers = []string{
	"©", "copyright", "published by", "prepared by", "all rights reserved",
}

// ScreenDocument decides whether a published document (typically a PDF)
// belongs to the entity. Hosting on an entity domain or a regulatory
// registry is decisive; anything else needs a combination of naming,
// publication statements, and mention counts.
func (s *Screener) ScreenDocument(rawURL, title, text string) Verdict {
	u, err := url.Parse(rawURL)
	if err != nil {
		return reject("unparseable url")
	}
	host := u.Hostname()
	lowURL := strings.ToLower(rawURL)
	lowTitle := strings.ToLower(title)

	for _, marker := range documentRejectMarkers {
		if strings.Contains(lowURL, marker) || strings.Contains(lowTitle, marker) {
			return reject("third-party or off-topic document")
		}
	}

	if trust.IsRegulatoryAuthority(host) {
		return accept("regulatory filing")
	}
	if s.registry.IsEntityDomain(host) {
		return accept("entity domain document")
	}

	cdnHosted := trust.HostedOnCDNPath(u.EscapedPath()) || strings.HasPrefix(trust.NormalizeHost(host), "cdn.")

	if s.urlNamesEntity(lowURL) && (cdnHosted || containsAnyMarker(lowURL, sustainabilityFileMarkers) || containsAnyMarker(lowTitle, sustainabilityFileMarkers)) {
		return accept("entity-named report")
	}

	head := text
	if len(head) > 500 {
		head = head[:500]
	}
	if s.registry.Mentioned(head) && containsAnyMarker(strings.ToLower(head), ownershipMarkers) {
		return accept("ownership statement")
	}

	threshold := s.cfg.MentionThreshold
	if cdnHosted {
		threshold = s.cfg.DomainMentionThreshold
	}
	if mentions := s.registry.MentionCount(text); mentions >= threshold {
		return accept(fmt.Sprintf("%d entity mentions", mentions))
	}
	return reject("no ownership signal")
}

// keywordHits counts distinct vocabulary terms present in text.
func (s *Screener) keywordHits(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, p := range s.vocab {
		if p.MatchString(lower) {
			hits++
		}
	}
	return hits
}

// urlNamesEntity reports whether any name variation appears in the URL
// under common slug spellings.
func (s *Screener) urlNamesEntity(lowURL string) bool {
	for _, v := range s.registry.Variations() {
		if len(v) <= 2 {
			continue
		}
		for _, slug := range []string{
			strings.ReplaceAll(v, " ", "-"),
			strings.ReplaceAll(v, " ", "_"),
			strings.ReplaceAll(v, " ", ""),
		} {
			if strings.Contains(lowURL, slug) {
				return true
			}
		}
	}
	return false
}

func containsAnyMarker(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
