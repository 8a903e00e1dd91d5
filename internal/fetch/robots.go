package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsEntry is one cached per-host verdict source.
type robotsEntry struct {
	data          *robotstxt.RobotsData
	indeterminate bool
}

// Gate answers "may this agent fetch this URL" with per-host caching.
// A host whose robots.txt cannot be retrieved for transient reasons is
// treated as allow-all and marked indeterminate, mirroring how polite
// crawlers behave when the probe itself is flaky.
type Gate struct {
	client *http.Client
	agent  string
	cache  *gocache.Cache
	logger *zap.Logger
}

// NewGate builds a Gate. The agent string should match the User-Agent
// the fetcher sends.
func NewGate(client *http.Client, agent string, logger *zap.Logger) *Gate {
	if client == nil {
		client = &http.Client{Transport: newHTTPTransport(), Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		client: client,
		agent:  agent,
		cache:  gocache.New(time.Hour, 15*time.Minute),
		logger: logger,
	}
}

// Allowed reports whether rawURL may be fetched and how the robots
// probe resolved.
func (g *Gate) Allowed(ctx context.Context, rawURL string) (bool, RobotsStatus, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, RobotsUnknown, fmt.Errorf("parse url: %w", err)
	}
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	var entry robotsEntry
	if cached, ok := g.cache.Get(key); ok {
		entry = cached.(robotsEntry)
	} else {
		entry = g.probe(ctx, u)
		g.cache.Set(key, entry, gocache.DefaultExpiration)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if entry.data == nil || entry.data.TestAgent(path, g.agent) {
		if entry.indeterminate {
			return true, RobotsIndeterminate, nil
		}
		return true, RobotsAllowed, nil
	}
	return false, RobotsDenied, nil
}

// probe retrieves and parses a host's robots.txt. Transient failures
// are retried on a short backoff and finally degraded to allow-all.
func (g *Gate) probe(ctx context.Context, u *url.URL) robotsEntry {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	attempts := len(robotsRetryBackoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return robotsEntry{indeterminate: true}
		}
		if g.agent != "" {
			req.Header.Set("User-Agent", g.agent)
		}
		resp, err := g.client.Do(req)
		if err == nil {
			data, perr := robotsDataFromResponse(resp)
			if perr != nil {
				g.logger.Debug("robots.txt parse failed", zap.String("host", u.Host), zap.Error(perr))
				return robotsEntry{indeterminate: true}
			}
			return robotsEntry{data: data}
		}
		if !transientError(err) {
			g.logger.Debug("robots.txt probe failed", zap.String("host", u.Host), zap.Error(err))
			return robotsEntry{indeterminate: true}
		}
		if attempt < attempts-1 {
			if serr := sleepWithContext(ctx, robotsRetryBackoff[attempt]); serr != nil {
				return robotsEntry{indeterminate: true}
			}
		}
	}
	g.logger.Debug("robots.txt probe exhausted retries", zap.String("host", u.Host))
	return robotsEntry{indeterminate: true}
}

func robotsDataFromResponse(resp *http.Response) (*robotstxt.RobotsData, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots body: %w", err)
	}
	return data, nil
}
