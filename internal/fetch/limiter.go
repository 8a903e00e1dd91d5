package fetch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token-bucket limiter per host so concurrent
// workers stay polite toward each domain independently.
type Limiter struct {
	mu      sync.Mutex
	perHost map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewLimiter allows rps requests per second per host with the given
// burst. Non-positive values fall back to one request per second.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perHost: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Wait blocks until the host's bucket grants a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	l.mu.Lock()
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.perHost[host] = lim
	}
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}
