package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls the static HTTP fetcher.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxBodyBytes  int
	RespectRobots bool
	DomainRPS     float64
	DomainBurst   int
	RetryAttempts int
}

// Client is the static fetcher: a Colly collector cloned per request,
// gated by robots.txt and per-host rate limits, with bounded retries
// on transient failures and retryable statuses.
type Client struct {
	cfg     Config
	base    *colly.Collector
	limiter *Limiter
	gate    *Gate
	logger  *zap.Logger
}

// NewClient builds a Client. Robots checking is handled by the Gate
// rather than Colly itself so verdicts are cached per host and
// reported on responses.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := newHTTPTransport()

	base := colly.NewCollector(
		colly.Async(false),
		colly.MaxBodySize(cfg.MaxBodyBytes),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	base.WithTransport(transport)

	c := &Client{
		cfg:     cfg,
		base:    base,
		limiter: NewLimiter(cfg.DomainRPS, cfg.DomainBurst),
		logger:  logger,
	}
	if cfg.RespectRobots {
		gateClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}
		c.gate = NewGate(gateClient, cfg.UserAgent, logger)
	}
	return c
}

// Fetch retrieves one URL. Robots denial comes back as ErrRobotsDenied
// with the status set on the response so callers can skip quietly.
func (c *Client) Fetch(ctx context.Context, req Request) (Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("parse url: %w", err)
	}

	robotsStatus := RobotsUnknown
	if c.gate != nil {
		allowed, status, gerr := c.gate.Allowed(ctx, req.URL)
		if gerr != nil {
			return Response{}, gerr
		}
		robotsStatus = status
		if !allowed {
			return Response{URL: req.URL, RobotsStatus: status}, ErrRobotsDenied
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if serr := sleepWithContext(ctx, retryBackoff(attempt)); serr != nil {
				return Response{}, serr
			}
			c.logger.Debug("retrying fetch",
				zap.String("url", req.URL), zap.Int("attempt", attempt))
		}
		if lerr := c.limiter.Wait(ctx, u.Hostname()); lerr != nil {
			return Response{}, lerr
		}

		resp, verr := c.visit(ctx, req)
		if verr != nil {
			lastErr = verr
			if transientError(verr) {
				continue
			}
			return Response{}, verr
		}
		resp.RobotsStatus = robotsStatus
		if retryableStatus(resp.StatusCode) && attempt < c.cfg.RetryAttempts {
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, req.URL)
			continue
		}
		return resp, nil
	}
	return Response{}, fmt.Errorf("fetch %s: %w", req.URL, lastErr)
}

// visit performs one collector pass. Non-2xx responses are captured as
// results, not errors, so status handling stays with the caller.
func (c *Client) visit(ctx context.Context, req Request) (Response, error) {
	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	start := time.Now()
	var (
		result   Response
		captured bool
		visitErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = responseFromColly(r, start)
		captured = true
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result = responseFromColly(r, start)
			captured = true
			return
		}
		visitErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if captured {
			return result, nil
		}
		if visitErr != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", req.URL, visitErr)
		}
		if err != nil {
			return Response{}, fmt.Errorf("visit %s: %w", req.URL, err)
		}
		return Response{}, fmt.Errorf("no response for %s", req.URL)
	}
}

func responseFromColly(r *colly.Response, start time.Time) Response {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	u := ""
	if r.Request != nil && r.Request.URL != nil {
		u = r.Request.URL.String()
	}
	return Response{
		URL:        u,
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
}

func retryBackoff(attempt int) time.Duration {
	return 500 * time.Millisecond << (attempt - 1)
}
