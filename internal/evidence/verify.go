package evidence

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// Verify reports whether the quote is supported by the source text the
// finding came from. A quote passes when its partial-match similarity
// against the text meets the criterion threshold; numeric criteria also
// pass when a numeric token from the quote appears in the text, which
// is a cheaper check that tolerates the oracle paraphrasing around a
// number.
func Verify(c criteria.Criterion, quote, sourceText string) bool {
	q := normalizeForMatch(quote)
	s := normalizeForMatch(sourceText)
	if q == "" || s == "" {
		return false
	}
	if c.Numeric && numericTokenSupported(q, s) {
		return true
	}
	return fuzzy.PartialRatio(q, s) >= c.FuzzThreshold
}

// normalizeForMatch lowers case, drops thousands separators, and
// collapses whitespace so "42,000  Trucks" and "42000 trucks" compare
// equal.
func normalizeForMatch(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ",", "")
	return strings.Join(strings.Fields(s), " ")
}

// numericTokenSupported reports whether any numeric token in the quote
// also occurs in the source text. Both inputs must already be
// normalized.
func numericTokenSupported(quote, source string) bool {
	for _, tok := range numberRun.FindAllString(quote, -1) {
		tok = strings.TrimSuffix(tok, ".")
		if tok == "" {
			continue
		}
		if strings.Contains(source, tok) {
			return true
		}
	}
	return false
}
