package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a process-wide minimum interval between remote calls
// and owns the rotating credential pool. Construct one per process and share
// it between every generation caller.
type RateLimiter struct {
	limiter *rate.Limiter

	mu   sync.Mutex
	keys []string
	next int
}

// NewRateLimiter allows one call per minInterval. A non-positive interval
// disables throttling.
func NewRateLimiter(minInterval time.Duration, keys []string) *RateLimiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	pool := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			pool = append(pool, k)
		}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, 1),
		keys:    pool,
	}
}

// WaitIfNeeded blocks until the next call is allowed or ctx is done.
func (r *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Credential returns the current credential.
func (r *RateLimiter) Credential() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", ErrNoCredentials
	}
	return r.keys[r.next%len(r.keys)], nil
}

// NextCredential advances the pool and returns the new current credential.
func (r *RateLimiter) NextCredential() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", ErrNoCredentials
	}
	r.next = (r.next + 1) % len(r.keys)
	return r.keys[r.next], nil
}

// PoolSize returns the number of configured credentials.
func (r *RateLimiter) PoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
