package evidence

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// RawFinding is the loosely typed per-criterion payload the analysis
// oracle returns. The oracle may omit fields, send numbers as strings,
// or return junk; nothing here is trusted until the Validator has run.
type RawFinding struct {
	Found         any    `json:"criteria_found"`
	Score         any    `json:"score"`
	Confidence    any    `json:"confidence"`
	Quote         string `json:"quote"`
	Context       string `json:"context"`
	Justification string `json:"justification"`
	Number        any    `json:"number"`
	Unit          string `json:"unit"`
	RangeMin      any    `json:"range_min"`
	RangeMax      any    `json:"range_max"`
}

// DecodeFindings parses an oracle response body, a JSON object keyed by
// criterion id.
func DecodeFindings(payload []byte) (map[criteria.ID]RawFinding, error) {
	var m map[criteria.ID]RawFinding
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode oracle findings: %w", err)
	}
	return m, nil
}

var numberRun = regexp.MustCompile(`\d[\d.]*`)

// coerceBool accepts the representations the oracle has been seen to
// use for booleans.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
		return false
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}

// coerceFloat extracts a float from numbers or numeric strings,
// tolerating thousands separators. Unparsable values are discarded.
func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		if run := numberRun.FindString(s); run != "" {
			if f, err := strconv.ParseFloat(strings.TrimSuffix(run, "."), 64); err == nil {
				return f, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// coerceInt is coerceFloat truncated toward zero.
func coerceInt(v any) (int, bool) {
	f, ok := coerceFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
