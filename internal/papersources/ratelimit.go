package papersources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every request a provider client
// issues. It is safe for concurrent use.
//
// Typical settings follow each provider's published policy:
//   - arXiv: NewRateLimiter(3, 1), one request every ~3 seconds is polite
//   - PubMed: NewRateLimiter(3, 3) without an API key, 10 with one
//   - Semantic Scholar: NewRateLimiter(1, 1) for unauthenticated access
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// RateLimiter wraps rate.Limiter.
type RateLimiter struct {
	limiter *rate.Limiter
}

// Wait blocks until a request is allowed or ctx is done, and returns how long
// the caller was held back.
func (r *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// Allow reports whether a request may proceed immediately, consuming a token
// if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
