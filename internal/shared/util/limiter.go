package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter behind a smaller interface. The
// inventory loader shares one across all remote fetches so a long list
// of external inventories cannot hammer a docs host.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a token bucket refilling r tokens per second with
// burst capacity b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// Allow reports whether an event with weight n may happen now.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available or the context ends.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}
