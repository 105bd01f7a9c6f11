// Package ratelimit throttles outgoing image requests so a gallery host is
// not hammered by the download workers.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the full burst
	Reset()
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	inner *rate.Limiter
}

// NewTokenBucket allows perSecond requests on average with bursts of burst
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	l := rate.Limit(perSecond)
	if perSecond <= 0 {
		l = rate.Inf
	}
	return &TokenBucket{limit: l, burst: burst, inner: rate.NewLimiter(l, burst)}
}

// Every allows one request per interval
func Every(interval time.Duration, burst int) *TokenBucket {
	tb := NewTokenBucket(0, burst)
	tb.limit = rate.Every(interval)
	tb.inner = rate.NewLimiter(tb.limit, tb.burst)
	return tb
}

func (tb *TokenBucket) limiter() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.inner
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter().Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter().Wait(ctx)
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.inner = rate.NewLimiter(tb.limit, tb.burst)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
