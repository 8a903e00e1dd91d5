// Package fetch retrieves web resources politely: per-domain rate
// limits, cached robots.txt verdicts, bounded retries, and promotion
// to a headless browser when a page turns out to be script-rendered.
package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RobotsStatus records how the robots.txt check resolved for a fetch.
type RobotsStatus string

const (
	RobotsUnknown       RobotsStatus = ""
	RobotsAllowed       RobotsStatus = "allowed"
	RobotsDenied        RobotsStatus = "denied"
	RobotsIndeterminate RobotsStatus = "indeterminate"
)

// ErrRobotsDenied marks a URL the site's robots.txt forbids. Callers
// skip the URL rather than treating the fetch as failed infrastructure.
var ErrRobotsDenied = errors.New("denied by robots.txt")

// Request describes one resource to retrieve.
type Request struct {
	URL     string
	Headers http.Header
	// Render forces the headless path without probing statically first.
	Render bool
}

// Response is a completed retrieval. A non-2xx status is a response,
// not an error; the caller decides what to do with it.
type Response struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	Rendered     bool
	RobotsStatus RobotsStatus
}

// ContentType returns the media type without parameters.
func (r Response) ContentType() string {
	ct := r.Headers.Get("Content-Type")
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			return ct[:i]
		}
	}
	return ct
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Fetcher retrieves a single resource.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// retryableStatus lists HTTP statuses worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// transientError reports network failures that tend to clear on retry.
func transientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sleepWithContext waits for delay unless ctx ends first.
func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newHTTPTransport builds the pooled transport shared by the static
// client and the robots gate.
func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
