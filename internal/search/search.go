// Package search wraps the Google Custom Search JSON API and holds the
// query templates used to hunt evidence per criterion.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Result is one search hit.
type Result struct {
	Title   string
	Link    string
	Snippet string
}

// Searcher runs web queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Config holds the Custom Search credentials and limits.
type Config struct {
	APIKey     string
	EngineID   string
	Timeout    time.Duration
	MaxResults int
}

// Google implements Searcher over the Custom Search JSON API.
type Google struct {
	svc      *customsearch.Service
	engineID string
	timeout  time.Duration
	max      int
	logger   *zap.Logger
}

// NewGoogle builds the client. Extra options are passed through to the
// underlying service, which tests use to point at a fake endpoint.
func NewGoogle(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search api key is required")
	}
	if cfg.EngineID == "" {
		return nil, fmt.Errorf("search engine id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 10 {
		cfg.MaxResults = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}
	return &Google{
		svc:      svc,
		engineID: cfg.EngineID,
		timeout:  cfg.Timeout,
		max:      cfg.MaxResults,
		logger:   logger,
	}, nil
}

// Search runs one query and returns up to limit hits.
func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || limit > g.max {
		limit = g.max
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.svc.Cse.List().
		Cx(g.engineID).
		Q(query).
		Num(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
		})
	}
	g.logger.Debug("search completed", zap.String("query", query), zap.Int("hits", len(results)))
	return results, nil
}
