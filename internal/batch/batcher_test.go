package batch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitCoverageAndReconstruction checks the core contract: no batch
// exceeds the budget, boundaries land on sentence ends, and stitching
// the batches back together minus overlaps reproduces the input.
func TestSplitCoverageAndReconstruction(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 1; i <= 1000; i++ {
		fmt.Fprintf(&sb, "This is sentence number %04d. ", i)
	}
	text := sb.String()

	b := New(Config{Size: 2000, Overlap: 100}, nil)
	batches := b.Split(text)
	require.Greater(t, len(batches), 10)

	for i, batch := range batches {
		assert.LessOrEqual(t, len(batch), 2000, "batch %d over budget", i)
		if i < len(batches)-1 {
			assert.Equal(t, byte('.'), batch[len(batch)-1], "batch %d does not end on a sentence boundary", i)
		}
	}

	rebuilt := batches[0]
	for i := 1; i < len(batches); i++ {
		rebuilt += batches[i][100:]
	}
	assert.Equal(t, text, rebuilt)
}

// TestSplitShortTextSingleBatch returns the input untouched when it
// fits the budget.
func TestSplitShortTextSingleBatch(t *testing.T) {
	t.Parallel()

	b := New(Config{Size: 8000, Overlap: 500}, nil)
	text := "One sentence. Another sentence."
	require.Equal(t, []string{text}, b.Split(text))
}

// TestSplitOversizedSentence emits a sentence longer than the budget as
// its own oversized batch instead of cutting it mid-word.
func TestSplitOversizedSentence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abc ", 300) + "end."
	text := "Intro sentence here. " + long + " Final bit."

	b := New(Config{Size: 500, Overlap: 50}, nil)
	batches := b.Split(text)
	require.GreaterOrEqual(t, len(batches), 3)

	var oversized string
	for _, batch := range batches {
		if len(batch) > 500 {
			oversized = batch
		}
	}
	require.NotEmpty(t, oversized, "expected one oversized batch")
	assert.Contains(t, oversized, long, "the long sentence must survive whole")

	// Every character of the input still appears somewhere.
	joined := strings.Join(batches, "")
	assert.Contains(t, joined, "Intro sentence here.")
	assert.Contains(t, joined, "Final bit.")
}

// TestPrefilterKeepsRelevantAndNeighbors drops noise paragraphs while
// keeping keyword hits, their neighbors, entity mentions, and numeric
// paragraphs.
func TestPrefilterKeepsRelevantAndNeighbors(t *testing.T) {
	t.Parallel()

	paras := []string{
		"Opening remarks about the quarter and the weather.",
		"Our CNG trucks operate on regional routes every day.",
		"Management thanked the teams for their effort.",
		"Acme Logistics also expanded its warehouse footprint.",
		"Deliveries now reach 77 metro areas.",
		"The annual picnic was postponed to September.",
	}
	text := strings.Join(paras, "\n\n")

	b := New(Config{Size: 8000, Overlap: 500}, nil)
	got := b.Prefilter(text, Relevance{
		Keywords: []string{"cng"},
		Entity:   []string{"acme logistics"},
	})

	assert.Contains(t, got, paras[1], "keyword paragraph kept")
	assert.Contains(t, got, paras[0], "neighbor before keyword hit kept")
	assert.Contains(t, got, paras[2], "neighbor after keyword hit kept")
	assert.Contains(t, got, paras[3], "entity paragraph kept")
	assert.Contains(t, got, paras[4], "numeric paragraph kept")
	assert.NotContains(t, got, paras[5], "noise paragraph dropped")
}

// TestPrefilterThreePointFallback samples head, middle, and tail when
// no keyword appears anywhere.
func TestPrefilterThreePointFallback(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(strings.Repeat("noise words only here ", 5))
		sb.WriteString("\n\n")
	}
	text := sb.String()

	b := New(Config{Size: 100, Overlap: 10}, nil)
	got := b.Prefilter(text, Relevance{Keywords: []string{"cng"}})

	assert.Less(t, len(got), len(text))
	assert.True(t, strings.HasPrefix(got, text[:100]), "sample starts with the head")
	assert.True(t, strings.HasSuffix(got, text[len(text)-100:]), "sample ends with the tail")
}

// TestPrefilterRecoversWhenTooAggressive falls back to the head plus
// hit paragraphs when filtering would discard nearly everything.
func TestPrefilterRecoversWhenTooAggressive(t *testing.T) {
	t.Parallel()

	noise := strings.Repeat("plain filler words without anything useful ", 5)
	var paras []string
	for i := 0; i < 50; i++ {
		paras = append(paras, noise)
	}
	paras = append(paras, "CNG fleet.")
	text := strings.Join(paras, "\n\n")

	b := New(Config{
		Size:               100,
		Overlap:            10,
		FirstChunk:         300,
		ReductionThreshold: 0.9,
		MinKeptChars:       1000,
	}, nil)
	got := b.Prefilter(text, Relevance{Keywords: []string{"cng"}})

	assert.True(t, strings.HasPrefix(got, text[:300]), "recovery keeps the document head")
	assert.Contains(t, got, "CNG fleet.")
}

// TestPrefilterWithoutKeywordsIsANoop leaves text alone when there is
// nothing to filter against.
func TestPrefilterWithoutKeywordsIsANoop(t *testing.T) {
	t.Parallel()

	b := New(Config{Size: 100}, nil)
	text := "Alpha.\n\nBeta.\n\nGamma."
	assert.Equal(t, text, b.Prefilter(text, Relevance{}))
}

// TestBatchesForFirstChunkAndCap gives the opening batch the larger
// budget and enforces the per-document cap.
func TestBatchesForFirstChunkAndCap(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "Fleet sentence number %03d follows here. ", i)
	}
	text := sb.String()

	b := New(Config{Size: 100, Overlap: 10, FirstChunk: 300, MaxPerDocument: 4}, nil)
	batches := b.BatchesFor(text, Relevance{Keywords: []string{"fleet"}})

	require.Len(t, batches, 4)
	assert.Greater(t, len(batches[0]), 100, "first batch uses the first-chunk budget")
	assert.LessOrEqual(t, len(batches[0]), 300)
	for _, batch := range batches[1:] {
		assert.LessOrEqual(t, len(batch), 100)
	}
}
