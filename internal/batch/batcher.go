// Package batch splits extracted source text into oracle-sized batches.
// Splits land on sentence boundaries wherever possible and adjacent
// batches share a character-budget overlap tail, so a fact straddling a
// split point is fully present in at least one batch.
package batch

import (
	"strings"

	"go.uber.org/zap"
)

// Config holds the batching budgets.
type Config struct {
	// Size is the per-batch character budget.
	Size int
	// Overlap is the tail carried into the next batch.
	Overlap int
	// FirstChunk is the larger budget for a document's opening batch,
	// keeping summaries and tables of contents together.
	FirstChunk int
	// MaxPerDocument caps how many batches one document yields.
	MaxPerDocument int
	// ReductionThreshold is the discarded fraction above which the
	// prefilter is considered too aggressive.
	ReductionThreshold float64
	// MinKeptChars is the material floor below which an aggressive
	// prefilter falls back to recovery sampling.
	MinKeptChars int
}

// Relevance describes what the prefilter keeps: keywords of the still
// needed criteria and the entity's name variants.
type Relevance struct {
	Keywords []string
	Entity   []string
}

// Batcher produces analysis batches from source text.
type Batcher struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Batcher. Zero-value budgets fall back to workable
// defaults so a half-configured batcher cannot loop or emit nothing.
func New(cfg Config, logger *zap.Logger) *Batcher {
	if cfg.Size <= 0 {
		cfg.Size = 8000
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 16
	}
	if cfg.ReductionThreshold <= 0 || cfg.ReductionThreshold > 1 {
		cfg.ReductionThreshold = 0.90
	}
	if cfg.MinKeptChars <= 0 {
		cfg.MinKeptChars = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{cfg: cfg, logger: logger}
}

// Split cuts text into batches under the uniform size cap. Every
// character of the input appears in at least one batch; only a single
// sentence longer than the cap produces an oversized batch.
func (b *Batcher) Split(text string) []string {
	return b.split(text, b.cfg.Size)
}

// BatchesFor prefilters text against the needed criteria, splits it
// with the first-chunk budget applied to the opening batch, and caps
// the batch count for one document.
func (b *Batcher) BatchesFor(text string, rel Relevance) []string {
	filtered := b.Prefilter(text, rel)
	first := b.cfg.Size
	if b.cfg.FirstChunk > first {
		first = b.cfg.FirstChunk
	}
	batches := b.split(filtered, first)
	if maxN := b.cfg.MaxPerDocument; maxN > 0 && len(batches) > maxN {
		b.logger.Debug("capping document batches",
			zap.Int("total", len(batches)),
			zap.Int("kept", maxN))
		batches = batches[:maxN]
	}
	return batches
}

// split walks sentence boundaries, giving the first batch firstBudget
// and every later batch the uniform size cap.
func (b *Batcher) split(text string, firstBudget int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= firstBudget {
		return []string{text}
	}

	ends := sentenceEnds(text)
	var out []string
	start := 0
	for start < len(text) {
		budget := b.cfg.Size
		if len(out) == 0 {
			budget = firstBudget
		}
		limit := start + budget
		if limit >= len(text) {
			out = append(out, text[start:])
			break
		}

		end := lastEndWithin(ends, start, limit)
		if end <= start {
			// The next sentence alone exceeds the budget: emit it whole
			// rather than cutting it mid-word.
			end = firstEndAfter(ends, start)
		}
		out = append(out, text[start:end])
		if end >= len(text) {
			break
		}
		next := end - b.cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// Prefilter drops paragraphs that contain none of the needed keywords,
// no numerals, and no entity mention, keeping paragraphs adjacent to a
// keyword hit for context. When no keyword hits exist at all it falls
// back to a three-point sample, and when the filter would discard
// nearly everything it recovers the head plus entity/numeric
// paragraphs.
func (b *Batcher) Prefilter(text string, rel Relevance) string {
	if text == "" {
		return text
	}
	paras := splitParagraphs(text)
	if len(paras) <= 1 {
		return text
	}

	keywords := lowerAll(rel.Keywords)
	if len(keywords) == 0 {
		return text
	}
	entity := lowerAll(rel.Entity)
	keywordHit := make([]bool, len(paras))
	anyHit := make([]bool, len(paras))
	sawKeyword := false
	for i, p := range paras {
		lp := strings.ToLower(p)
		if containsAnyTerm(lp, keywords) {
			keywordHit[i] = true
			anyHit[i] = true
			sawKeyword = true
			continue
		}
		if containsAnyTerm(lp, entity) || containsDigit(lp) {
			anyHit[i] = true
		}
	}

	if !sawKeyword {
		return b.threePointSample(text)
	}

	var kept []string
	for i := range paras {
		keep := anyHit[i]
		if !keep && i > 0 && keywordHit[i-1] {
			keep = true
		}
		if !keep && i+1 < len(paras) && keywordHit[i+1] {
			keep = true
		}
		if keep {
			kept = append(kept, paras[i])
		}
	}
	joined := strings.Join(kept, "\n\n")
	if len(joined) >= len(text) {
		return text
	}

	discarded := 1 - float64(len(joined))/float64(len(text))
	if discarded > b.cfg.ReductionThreshold && len(joined) < b.cfg.MinKeptChars {
		b.logger.Debug("prefilter too aggressive, recovering sample",
			zap.Float64("discarded", discarded),
			zap.Int("kept_chars", len(joined)))
		return b.recoverSample(text, paras, anyHit)
	}
	return joined
}

// threePointSample returns the head, middle, and tail of the text, one
// batch budget each.
func (b *Batcher) threePointSample(text string) string {
	size := b.cfg.Size
	if len(text) <= 3*size {
		return text
	}
	head := text[:size]
	midStart := len(text)/2 - size/2
	middle := text[midStart : midStart+size]
	tail := text[len(text)-size:]
	return head + "\n\n" + middle + "\n\n" + tail
}

// recoverSample keeps the document head plus any entity or numeric
// paragraphs outside it.
func (b *Batcher) recoverSample(text string, paras []string, anyHit []bool) string {
	head := text
	budget := b.cfg.FirstChunk
	if budget <= 0 {
		budget = b.cfg.Size
	}
	if len(head) > budget {
		head = head[:budget]
	}
	var extra []string
	for i, p := range paras {
		if anyHit[i] && !strings.Contains(head, p) {
			extra = append(extra, p)
		}
	}
	if len(extra) == 0 {
		return head
	}
	return head + "\n\n" + strings.Join(extra, "\n\n")
}

// sentenceEnds returns the sorted offsets just past each sentence
// terminator or newline, always ending with len(text).
func sentenceEnds(text string) []int {
	var ends []int
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || isSpaceByte(text[i+1]) {
				ends = append(ends, i+1)
			}
		case '\n':
			ends = append(ends, i+1)
		}
	}
	if len(ends) == 0 || ends[len(ends)-1] != len(text) {
		ends = append(ends, len(text))
	}
	return ends
}

// lastEndWithin returns the largest end in (start, limit], or 0.
func lastEndWithin(ends []int, start, limit int) int {
	best := 0
	for _, e := range ends {
		if e <= start {
			continue
		}
		if e > limit {
			break
		}
		best = e
	}
	return best
}

// firstEndAfter returns the smallest end > start.
func firstEndAfter(ends []int, start int) int {
	for _, e := range ends {
		if e > start {
			return e
		}
	}
	return start
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsAnyTerm(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
