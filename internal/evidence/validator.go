package evidence

import (
	"strings"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// Source describes where a batch of analyzed text came from. Text holds
// the batch itself so quotes can be verified against it; for snippet
// analysis it holds the combined snippet text.
type Source struct {
	URL  string
	Kind SourceKind
	Text string
}

// Validator distills raw oracle findings into Evidence at a single
// boundary. Out-of-range values are clamped, numerics are coerced, and
// the per-criterion semantic rules downgrade wrong-category findings to
// not-found. Validate never returns an error; unusable input becomes
// the sentinel.
type Validator struct {
	minQuoteChars int
	warnBelow     int
	logger        *zap.Logger
}

// NewValidator builds a Validator. Non-positive thresholds fall back to
// the defaults (5 chars, warn below 40).
func NewValidator(minQuoteChars, warnBelow int, logger *zap.Logger) *Validator {
	if minQuoteChars <= 0 {
		minQuoteChars = 5
	}
	if warnBelow <= 0 {
		warnBelow = 40
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{minQuoteChars: minQuoteChars, warnBelow: warnBelow, logger: logger}
}

// Validate turns one raw finding into Evidence.
func (v *Validator) Validate(id criteria.ID, raw RawFinding, src Source) Evidence {
	crit, ok := criteria.Get(id)
	if !ok {
		return NotFound(id, "unknown criterion")
	}
	if !coerceBool(raw.Found) {
		return NotFound(id, firstNonEmpty(strings.TrimSpace(raw.Justification), "no evidence in batch"))
	}

	quote := strings.TrimSpace(raw.Quote)
	if len(quote) < v.minQuoteChars {
		return NotFound(id, "quote below minimum length")
	}
	if isGenericClaim(quote) {
		return NotFound(id, "generic sustainability language")
	}
	if reason := semanticReject(crit, quote, raw.Context); reason != "" {
		v.logger.Debug("finding failed semantic check",
			zap.String("criterion", string(id)),
			zap.String("reason", reason),
			zap.String("url", src.URL))
		return NotFound(id, reason)
	}

	number, hasNumber := coerceFloat(raw.Number)
	if crit.Numeric && !hasNumber && !containsDigit(quote) && !containsDigit(raw.Context) {
		return NotFound(id, "no count in evidence")
	}

	score, _ := coerceInt(raw.Score)
	score = clampInt(score, 0, crit.Ceiling)
	if altFuelOnly(crit, quote, raw.Context) && score > 1 {
		v.logger.Debug("capping alt-fuel-only finding",
			zap.String("criterion", string(id)),
			zap.Int("score", score))
		score = 1
	}

	confidence, _ := coerceInt(raw.Confidence)
	confidence = clampInt(confidence, 0, 100)
	if confidence > 0 && confidence < v.warnBelow {
		v.logger.Warn("accepting low-confidence evidence",
			zap.String("criterion", string(id)),
			zap.Int("confidence", confidence),
			zap.String("url", src.URL))
	}

	ev := Evidence{
		Criterion:     id,
		Found:         true,
		Score:         score,
		Confidence:    confidence,
		Quote:         quote,
		Context:       strings.TrimSpace(raw.Context),
		Justification: strings.TrimSpace(raw.Justification),
		SourceURL:     src.URL,
		SourceKind:    src.Kind,
	}
	if hasNumber {
		ev.Number = &number
	}
	ev.Unit = strings.TrimSpace(raw.Unit)
	if lo, ok := coerceFloat(raw.RangeMin); ok {
		ev.RangeMin = &lo
	}
	if hi, ok := coerceFloat(raw.RangeMax); ok {
		ev.RangeMax = &hi
	}
	ev.Verified = Verify(crit, quote, src.Text)
	return ev
}

// ValidatePayload decodes an oracle response and validates a record for
// every requested criterion. A payload that cannot be decoded yields
// the not-found sentinel for each requested criterion; only this batch
// is affected.
func (v *Validator) ValidatePayload(payload []byte, requested []criteria.ID, src Source) map[criteria.ID]Evidence {
	out := make(map[criteria.ID]Evidence, len(requested))
	raw, err := DecodeFindings(payload)
	if err != nil {
		v.logger.Warn("malformed oracle payload",
			zap.Error(err),
			zap.String("url", src.URL),
			zap.Int("bytes", len(payload)))
		for _, id := range requested {
			out[id] = NotFound(id, "malformed oracle response")
		}
		return out
	}
	for _, id := range requested {
		rf, ok := raw[id]
		if !ok {
			out[id] = NotFound(id, "criterion omitted by oracle")
			continue
		}
		out[id] = v.Validate(id, rf, src)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}
