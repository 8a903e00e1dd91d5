package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/criteria"
)

func newTestValidator() *Validator {
	return NewValidator(5, 40, zap.NewNop())
}

// TestValidateClampsScoreToCeiling covers an over-eager oracle score:
// ceiling 3 criterion, oracle says 5, stored score is 3.
func TestValidateClampsScoreToCeiling(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	src := Source{
		URL:  "https://example.com/fleet",
		Kind: SourcePage,
		Text: "The carrier has 42,000 trucks across its network.",
	}
	raw := RawFinding{
		Found:      true,
		Score:      float64(5),
		Confidence: float64(85),
		Quote:      "has 42,000 trucks",
		Number:     "42,000",
		Unit:       "trucks",
	}

	ev := v.Validate(criteria.TotalTruckFleetSize, raw, src)

	assert.True(t, ev.Found)
	assert.Equal(t, 3, ev.Score)
	assert.Equal(t, 85, ev.Confidence)
	assert.True(t, ev.Verified, "numeric token should verify against source text")
	require.NotNil(t, ev.Number)
	assert.InDelta(t, 42000, *ev.Number, 1e-9)
	assert.Equal(t, "trucks", ev.Unit)
}

// TestValidateRejectsFuelVolumeForCount covers the category check: a
// fuel consumption figure is not a vehicle count.
func TestValidateRejectsFuelVolumeForCount(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	raw := RawFinding{
		Found: true,
		Score: float64(3),
		Quote: "consumed 5,238 gallons of CNG",
	}

	ev := v.Validate(criteria.CNGFleetSize, raw, Source{Kind: SourcePage, Text: "consumed 5,238 gallons of CNG last year"})

	assert.False(t, ev.Found)
	assert.Zero(t, ev.Score)
	assert.Contains(t, ev.Justification, "fuel volume")
}

// TestValidateRejectsGenericClaims rejects boilerplate with no fact.
func TestValidateRejectsGenericClaims(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	raw := RawFinding{
		Found: true,
		Score: float64(1),
		Quote: "We are deeply committed to sustainability",
	}

	ev := v.Validate(criteria.EmissionGoals, raw, Source{Kind: SourcePage})

	assert.False(t, ev.Found)
	assert.Equal(t, "generic sustainability language", ev.Justification)
}

// TestValidateRejectsShortQuote enforces the minimum quote length.
func TestValidateRejectsShortQuote(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	ev := v.Validate(criteria.CNGFleet, RawFinding{Found: true, Score: float64(1), Quote: "CNG"}, Source{})

	assert.False(t, ev.Found)
	assert.Zero(t, ev.Score)
}

// TestValidateSemanticRules spot-checks the remaining per-criterion
// category rules.
func TestValidateSemanticRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		criterion criteria.ID
		quote     string
		wantFound bool
		reason    string
	}{
		{
			name:      "goal criterion without goal language",
			criterion: criteria.EmissionGoals,
			quote:     "emissions data appears in our annual filings",
			wantFound: false,
			reason:    "no reduction goal language",
		},
		{
			name:      "goal criterion with target",
			criterion: criteria.EmissionGoals,
			quote:     "pledged to cut fleet emissions 30% by 2030",
			wantFound: true,
		},
		{
			name:      "regulatory job posting",
			criterion: criteria.Regulatory,
			quote:     "now hiring: EPA compliance manager, apply now",
			wantFound: false,
			reason:    "job posting text",
		},
		{
			name:      "regulatory with program reference",
			criterion: criteria.Regulatory,
			quote:     "an EPA SmartWay carrier since 2012",
			wantFound: true,
		},
		{
			name:      "partner criterion with on-site solar only",
			criterion: criteria.CleanEnergyPartner,
			quote:     "installed rooftop solar panels at three terminals",
			wantFound: false,
			reason:    "on-site generation, not a partnership",
		},
		{
			name:      "partner criterion with agreement",
			criterion: criteria.CleanEnergyPartner,
			quote:     "signed a power purchase agreement with a wind energy partner",
			wantFound: true,
		},
		{
			name:      "alt fuels with CNG only",
			criterion: criteria.AltFuels,
			quote:     "runs compressed natural gas in regional lanes",
			wantFound: false,
			reason:    "CNG/LNG only",
		},
		{
			name:      "alt fuels with renewable diesel",
			criterion: criteria.AltFuels,
			quote:     "switched 200 tractors to renewable diesel",
			wantFound: true,
		},
		{
			name:      "reporting criterion without disclosure language",
			criterion: criteria.EmissionReporting,
			quote:     "our trucks are the cleanest on the road",
			wantFound: false,
			reason:    "no disclosure language",
		},
	}

	v := newTestValidator()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := Source{Kind: SourcePage, Text: tc.quote + " according to the company."}
			ev := v.Validate(tc.criterion, RawFinding{Found: true, Score: float64(1), Quote: tc.quote}, src)
			assert.Equal(t, tc.wantFound, ev.Found)
			if !tc.wantFound {
				assert.Zero(t, ev.Score)
				assert.Contains(t, ev.Justification, tc.reason)
			}
		})
	}
}

// TestValidateCapsAltFuelOnlyCNGFinding keeps adjacent alternative-fuel
// evidence for a CNG criterion but caps its score at 1.
func TestValidateCapsAltFuelOnlyCNGFinding(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	src := Source{Kind: SourcePage, Text: "the company operates 40 electric trucks in drayage service"}
	raw := RawFinding{Found: true, Score: float64(3), Quote: "operates 40 electric trucks", Number: float64(40)}

	ev := v.Validate(criteria.CNGFleetSize, raw, src)

	assert.True(t, ev.Found)
	assert.Equal(t, 1, ev.Score)
}

// TestValidateClampsConfidence bounds confidence to [0, 100].
func TestValidateClampsConfidence(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	src := Source{Kind: SourcePage, Text: "operates 120 CNG trucks"}

	high := v.Validate(criteria.CNGFleetSize, RawFinding{Found: true, Score: float64(2), Confidence: float64(150), Quote: "operates 120 CNG trucks"}, src)
	assert.Equal(t, 100, high.Confidence)

	low := v.Validate(criteria.CNGFleetSize, RawFinding{Found: true, Score: float64(2), Confidence: float64(-5), Quote: "operates 120 CNG trucks"}, src)
	assert.Equal(t, 0, low.Confidence)
}

// TestValidateRequiresCountForNumericCriteria rejects numeric-criterion
// findings that carry no number anywhere.
func TestValidateRequiresCountForNumericCriteria(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	raw := RawFinding{Found: true, Score: float64(2), Quote: "maintains a large fleet of trucks"}

	ev := v.Validate(criteria.TotalTruckFleetSize, raw, Source{Kind: SourcePage})

	assert.False(t, ev.Found)
	assert.Equal(t, "no count in evidence", ev.Justification)
}

// TestValidatePayloadMalformed substitutes the sentinel for every
// requested criterion when the whole payload cannot be decoded.
func TestValidatePayloadMalformed(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	requested := []criteria.ID{criteria.CNGFleet, criteria.EmissionGoals, criteria.Regulatory}

	out := v.ValidatePayload([]byte("this is not JSON {"), requested, Source{Kind: SourcePage})

	require.Len(t, out, len(requested))
	for _, id := range requested {
		ev := out[id]
		assert.False(t, ev.Found)
		assert.Zero(t, ev.Score)
		assert.Equal(t, "malformed oracle response", ev.Justification)
	}
}

// TestValidatePayloadOmittedCriterion fills sentinels for criteria the
// oracle skipped while keeping the ones it answered.
func TestValidatePayloadOmittedCriterion(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	payload := []byte(`{
		"cng_fleet": {"criteria_found": true, "score": 1, "quote": "operates CNG trucks daily", "confidence": 90}
	}`)
	requested := []criteria.ID{criteria.CNGFleet, criteria.EmissionGoals}

	out := v.ValidatePayload(payload, requested, Source{Kind: SourcePage, Text: "operates CNG trucks daily"})

	require.Len(t, out, 2)
	assert.True(t, out[criteria.CNGFleet].Found)
	assert.False(t, out[criteria.EmissionGoals].Found)
	assert.Equal(t, "criterion omitted by oracle", out[criteria.EmissionGoals].Justification)
}

// TestValidateIdempotent re-validates already in-range evidence and
// expects it back unchanged.
func TestValidateIdempotent(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	src := Source{URL: "https://example.com/esg", Kind: SourceDocument, Text: "we operate 1200 CNG trucks nationwide"}
	raw := RawFinding{
		Found:         true,
		Score:         float64(2),
		Confidence:    float64(88),
		Quote:         "we operate 1200 CNG trucks",
		Justification: "explicit CNG truck count",
		Number:        float64(1200),
		Unit:          "trucks",
	}

	first := v.Validate(criteria.CNGFleetSize, raw, src)
	require.True(t, first.Found)

	again := RawFinding{
		Found:         first.Found,
		Score:         first.Score,
		Confidence:    first.Confidence,
		Quote:         first.Quote,
		Context:       first.Context,
		Justification: first.Justification,
		Number:        *first.Number,
		Unit:          first.Unit,
	}
	second := v.Validate(criteria.CNGFleetSize, again, src)

	assert.Equal(t, first, second)
}

// TestVerify exercises the fuzzy and numeric verification paths.
func TestVerify(t *testing.T) {
	t.Parallel()

	cng, ok := criteria.Get(criteria.CNGFleet)
	require.True(t, ok)
	fleet, ok := criteria.Get(criteria.TotalTruckFleetSize)
	require.True(t, ok)

	assert.True(t, Verify(cng, "operates CNG trucks in Texas", "The company operates CNG trucks in Texas and Oklahoma."))
	assert.False(t, Verify(cng, "operates CNG trucks in Texas", ""))
	assert.True(t, Verify(fleet, "fleet of 7,500 tractors", "fleet size grew to 7500 tractors"), "comma-insensitive numeric match")
	assert.False(t, Verify(fleet, "", "anything"))
}
