package webhooks

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket per subscription. Each bucket holds up to
// maxTokens and gains one token per refill interval.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	maxTokens int
	interval  time.Duration
	now       func() time.Time
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows maxRequests per period for each key
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	return &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		maxTokens: maxRequests,
		interval:  period / time.Duration(maxRequests),
		now:       time.Now,
	}
}

// Allow takes a token for key if one is available
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.refill(key)
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// Remaining returns the tokens left for key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.refill(key).tokens
}

// refill returns key's bucket topped up for the elapsed time. Callers hold mu.
func (rl *RateLimiter) refill(key string) *tokenBucket {
	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[key] = b
		return b
	}
	if rl.interval <= 0 {
		b.tokens = rl.maxTokens
		return b
	}
	if elapsed := now.Sub(b.lastRefill); elapsed >= rl.interval {
		periods := int(elapsed / rl.interval)
		b.tokens = min(b.tokens+periods, rl.maxTokens)
		b.lastRefill = b.lastRefill.Add(time.Duration(periods) * rl.interval)
	}
	return b
}
