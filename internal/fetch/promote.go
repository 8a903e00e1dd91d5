package fetch

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"
)

// spaMarkers identify single-page-application shells whose static HTML
// carries no content.
var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// Heuristic decides when a static response needs a headless render.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic builds the promotion heuristic.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// ShouldPromote reports whether the static response looks like a
// script-rendered shell: empty, short and script-dominated, or carrying
// an SPA root marker. Only successful HTML responses are candidates.
func (h *Heuristic) ShouldPromote(resp Response) bool {
	if resp.StatusCode != 200 {
		return false
	}
	if ct := resp.ContentType(); ct != "" && !strings.Contains(ct, "html") {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script tags cover at least a
// quarter of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		relStart := strings.Index(lower[pos:], openTag)
		if relStart == -1 {
			break
		}
		start := pos + relStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag; count the remainder as script.
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relEnd := strings.Index(lower[contentStart:], closeTag)
		var next int
		if relEnd == -1 {
			next = total
		} else {
			next = contentStart + relEnd + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	if coverage == 0 {
		return false
	}
	return coverage*100/total >= 25
}

// Promoter is the composite fetcher: static first, rendered when the
// heuristic fires or the request demands it. Render failures fall back
// to the static response rather than failing the fetch.
type Promoter struct {
	static    Fetcher
	renderer  Fetcher
	heuristic *Heuristic
	logger    *zap.Logger
}

// NewPromoter wires the static fetcher to an optional renderer. A nil
// renderer disables promotion entirely.
func NewPromoter(static, renderer Fetcher, heuristic *Heuristic, logger *zap.Logger) *Promoter {
	if heuristic == nil {
		heuristic = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoter{static: static, renderer: renderer, heuristic: heuristic, logger: logger}
}

// Fetch retrieves the URL, promoting to the renderer when needed.
func (p *Promoter) Fetch(ctx context.Context, req Request) (Response, error) {
	if req.Render && p.renderer != nil {
		return p.renderer.Fetch(ctx, req)
	}

	resp, err := p.static.Fetch(ctx, req)
	if err != nil {
		return resp, err
	}
	if p.renderer == nil || !p.heuristic.ShouldPromote(resp) {
		return resp, nil
	}

	p.logger.Debug("promoting to headless render", zap.String("url", req.URL))
	rendered, rerr := p.renderer.Fetch(ctx, req)
	if rerr != nil {
		p.logger.Warn("headless render failed, keeping static body",
			zap.String("url", req.URL), zap.Error(rerr))
		return resp, nil
	}
	rendered.RobotsStatus = resp.RobotsStatus
	return rendered, nil
}
