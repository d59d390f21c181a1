// Package ratelimit enforces per-domain politeness across the whole
// process: however many workers or crawls are running, each source site
// sees at most the configured request rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/metrics"
	"github.com/tastewell/harvester/internal/policy"
)

// Config holds the default per-domain rate.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter hands out tokens per normalized hostname.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter. A non-positive rate disables throttling.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until the URL's domain has a token available.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := policy.NormalizedHost(rawURL)
	if domain == "" {
		domain = "unknown"
	}

	l.mu.Lock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveFetchThrottle(domain, waited)
	}
	return nil
}

// Fetcher wraps a harvest.Fetcher with the limiter.
type Fetcher struct {
	inner   harvest.Fetcher
	limiter *Limiter
}

var _ harvest.Fetcher = (*Fetcher)(nil)

// NewFetcher wraps inner so every Fetch waits for its domain's token.
func NewFetcher(inner harvest.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{inner: inner, limiter: limiter}
}

// Fetch waits for the URL's domain token and delegates to the inner
// fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*harvest.FetchResult, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}
	return f.inner.Fetch(ctx, url)
}
