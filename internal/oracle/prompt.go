package oracle

import (
	"fmt"
	"strings"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// systemPrompt pins the oracle to extraction, not generation.
const systemPrompt = "You are an analyst extracting sustainability evidence about trucking and " +
	"logistics companies. Answer only from the supplied text. Respond with a single JSON " +
	"object and nothing else."

// BuildPrompt renders the user message for one batch: the entity, the
// source, the criteria in question, and the response contract the
// evidence validator decodes.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nSource: %s\n\n", req.Entity, req.SourceURL)
	b.WriteString("Evaluate the text below against each criterion. Only direct statements about ")
	b.WriteString(req.Entity)
	b.WriteString(" count as evidence.\n\nCriteria:\n")
	for _, id := range req.Criteria {
		c, ok := criteria.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %q: %s Score 0 to %d.\n", string(id), c.Prompt, c.Ceiling)
	}
	b.WriteString(`
Return a JSON object keyed by criterion id. Each value must contain:
  "criteria_found": true only when the text states the fact for this company
  "score": integer within the criterion's range, 0 when not found
  "confidence": 0 to 100
  "quote": one sentence copied verbatim from the text
  "context": the text surrounding the quote
  "justification": one sentence explaining the decision
  "number", "unit", "range_min", "range_max": numeric details when the criterion asks for a count

Rules:
- Copy quotes exactly; never paraphrase inside "quote".
- Statements about other companies are not evidence.
- Goals, targets, plans, and intentions are not current facts.
- When the text says nothing about a criterion, set criteria_found to false and score to 0.

Text:
`)
	b.WriteString(req.Text)
	return b.String()
}
