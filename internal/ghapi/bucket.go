package ghapi

import (
	"math"
	"time"
)

// tokenBucket models one upstream quota. Tokens refill continuously with
// elapsed wall clock, clamped to capacity. Not safe for concurrent use;
// the client serializes access.
type tokenBucket struct {
	name        string
	capacity    float64
	refillPerMs float64
	tokens      float64
	last        time.Time
}

func newTokenBucket(name string, capacity float64, refillPer time.Duration, now time.Time) *tokenBucket {
	return &tokenBucket{
		name:        name,
		capacity:    capacity,
		refillPerMs: capacity / float64(refillPer.Milliseconds()),
		tokens:      capacity,
		last:        now,
	}
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+float64(elapsed.Milliseconds())*b.refillPerMs)
	b.last = now
}

// consume takes one token if available and returns zero. Otherwise it
// returns the wait until a token accrues: ceil((1-tokens)/refillPerMs) ms.
func (b *tokenBucket) consume(now time.Time) time.Duration {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	waitMs := math.Ceil((1 - b.tokens) / b.refillPerMs)
	return time.Duration(waitMs) * time.Millisecond
}
