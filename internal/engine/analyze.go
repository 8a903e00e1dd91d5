package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/greenproof/fleetscore/internal/batch"
	"github.com/greenproof/fleetscore/internal/criteria"
	"github.com/greenproof/fleetscore/internal/evidence"
	"github.com/greenproof/fleetscore/internal/extract"
	"github.com/greenproof/fleetscore/internal/fetch"
	"github.com/greenproof/fleetscore/internal/oracle"
	"github.com/greenproof/fleetscore/internal/progress"
	"github.com/greenproof/fleetscore/internal/validate"
)

// fetchSource retrieves the raw body for a source and emits the fetch
// event. A non-2xx status or transport failure drops the URL; retries
// already happened inside the fetcher.
func (r *run) fetchSource(ctx context.Context, phase string, src *Source, out *outcome) ([]byte, error) {
	out.fetchDone = true

	start := r.e.clock.Now()
	resp, err := r.e.fetcher.Fetch(ctx, fetch.Request{URL: src.URL})
	if err != nil {
		r.emitFetch(phase, *src, 0, progress.StatusOther, r.e.clock.Now().Sub(start))
		if errors.Is(err, fetch.ErrRobotsDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	class := progress.ClassifyStatus(resp.StatusCode)
	r.emitFetch(phase, *src, int64(len(resp.Body)), class, resp.Duration)

	if !resp.OK() {
		return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, errors.New("fetch source: empty body")
	}
	return resp.Body, nil
}

// extractSource turns the raw body into text, routing on content
// rather than on what the discovery phase expected: search sometimes
// hands back an HTML landing page for a "PDF" result and vice versa.
func (r *run) extractSource(src *Source, body []byte) ([]string, error) {
	if extract.LooksLikePDF(body) {
		text, err := extract.PDFText(body)
		if err != nil {
			return nil, fmt.Errorf("extract pdf: %w", err)
		}
		if len(text) > r.e.cfg.MaxPDFChars {
			text = text[:r.e.cfg.MaxPDFChars]
		}
		src.Kind = evidence.SourceDocument
		src.Text = text
	} else {
		page, err := extract.HTML(src.URL, body)
		if err != nil {
			return nil, fmt.Errorf("extract html: %w", err)
		}
		if src.Kind == evidence.SourceDocument {
			src.Kind = evidence.SourcePage
		}
		if src.Title == "" {
			src.Title = page.Title
		}
		src.Text = page.Text
		if strings.TrimSpace(src.Text) == "" {
			return nil, errors.New("extract html: no text")
		}
		return page.Links, nil
	}
	if strings.TrimSpace(src.Text) == "" {
		return nil, errors.New("extract pdf: no text")
	}
	return nil, nil
}

// screen applies the document or page validation rules for the source.
func (r *run) screen(src Source) validate.Verdict {
	if src.Kind == evidence.SourceDocument {
		return r.screener.ScreenDocument(src.URL, src.Title, src.Text)
	}
	return r.screener.Screen(src.URL, src.Text)
}

// archiveSource snapshots the raw body of an accepted source under its
// digest. The snapshot is the audit trail behind the evidence; losing
// one is worth a warning, never a failed source.
func (r *run) archiveSource(ctx context.Context, src Source, body []byte, digest string) {
	ext, contentType := ".html", "text/html; charset=utf-8"
	if src.Kind == evidence.SourceDocument {
		ext, contentType = ".pdf", "application/pdf"
	}
	path := fmt.Sprintf("runs/%s/%s%s", r.id, digest, ext)
	uri, err := r.e.archiver.PutObject(ctx, path, contentType, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("source snapshot failed",
			zap.String("url", src.URL),
			zap.Error(err))
		return
	}
	if uri != "" {
		r.logger.Debug("source archived",
			zap.String("url", src.URL),
			zap.String("snapshot", uri))
	}
}

// analyzeSource batches the source text and asks the oracle about the
// criteria still needed, narrowing the asked set as batches find
// evidence. Records from all batches are merged locally; the
// orchestrator consolidates the result into the run table.
func (r *run) analyzeSource(
	ctx context.Context,
	phase string,
	src Source,
	needed []criteria.ID,
	out *outcome,
) map[criteria.ID]evidence.Evidence {
	rel := batch.Relevance{
		Keywords: keywordsFor(needed),
		Entity:   r.registry.Variations(),
	}
	batches := r.batcher.BatchesFor(src.Text, rel)

	records := make(map[criteria.ID]evidence.Evidence)
	pending := needed
	for _, text := range batches {
		if ctx.Err() != nil || len(pending) == 0 {
			break
		}
		start := r.e.clock.Now()
		res, err := r.e.analyzer.Analyze(ctx, oracle.Request{
			Entity:    r.entity,
			SourceURL: src.URL,
			Text:      text,
			Criteria:  pending,
		})
		out.calls++
		r.emitOracle(phase, src, res.TokensUsed, r.e.clock.Now().Sub(start))
		if err != nil {
			r.logger.Warn("oracle call failed",
				zap.String("phase", phase),
				zap.String("url", src.URL),
				zap.Error(err))
			continue
		}
		out.tokens += res.TokensUsed

		found := r.validator.ValidatePayload(res.Payload, pending, evidence.Source{
			URL:  src.URL,
			Kind: src.Kind,
			Text: text,
		})
		for id, ev := range found {
			if cur, ok := records[id]; ok {
				records[id] = evidence.Merge(&cur, ev)
			} else {
				records[id] = evidence.Merge(nil, ev)
			}
		}
		pending = stillUnfound(pending, records)
	}

	foundHere := 0
	for _, ev := range records {
		if ev.Found {
			foundHere++
		}
	}
	r.e.emitter.Emit(progress.Event{
		RunID: r.idBytes,
		TS:    r.e.clock.Now().UTC(),
		Stage: progress.StageSourceAnalyzed,
		Phase: phase,
		Site:  hostOf(src.URL),
		URL:   src.URL,
		Found: foundHere,
	})
	return records
}

func (r *run) emitFetch(phase string, src Source, size int64, class progress.StatusClass, dur time.Duration) {
	site := hostOf(src.URL)
	if site == "" {
		site = "unknown"
	}
	r.e.emitter.Emit(progress.Event{
		RunID:       r.idBytes,
		TS:          r.e.clock.Now().UTC(),
		Stage:       progress.StageSourceFetch,
		Phase:       phase,
		Site:        site,
		URL:         src.URL,
		Bytes:       size,
		StatusClass: class,
		Dur:         dur,
	})
}

func (r *run) emitOracle(phase string, src Source, tokens int, dur time.Duration) {
	r.e.emitter.Emit(progress.Event{
		RunID:  r.idBytes,
		TS:     r.e.clock.Now().UTC(),
		Stage:  progress.StageOracleCall,
		Phase:  phase,
		URL:    src.URL,
		Tokens: tokens,
		Dur:    dur,
	})
}

// stillUnfound filters pending down to criteria without found records.
func stillUnfound(pending []criteria.ID, records map[criteria.ID]evidence.Evidence) []criteria.ID {
	var out []criteria.ID
	for _, id := range pending {
		if ev, ok := records[id]; !ok || !ev.Found {
			out = append(out, id)
		}
	}
	return out
}

// keywordsFor unions the keyword vocabularies of the given criteria.
func keywordsFor(ids []criteria.ID) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		c, ok := criteria.Get(id)
		if !ok {
			continue
		}
		for _, kw := range c.Keywords {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}
