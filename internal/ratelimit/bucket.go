package ratelimit

import (
	"sync/atomic"
	"time"
)

// tokenScale subdivides one admission token so that continuous refill can be
// tracked with integer arithmetic.
const tokenScale = 1_000_000

type Bucket struct {
	capacity      int64
	window        time.Duration
	nanosPerMicro int64
	state         atomic.Pointer[bucketState]
}

type bucketState struct {
	microTokens int64
	refilledAt  int64
}

type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

func NewBucket(capacity int, window time.Duration) *Bucket {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	nanosPerMicro := window.Nanoseconds() / (int64(capacity) * tokenScale)
	if nanosPerMicro < 1 {
		nanosPerMicro = 1
	}

	b := &Bucket{
		capacity:      int64(capacity),
		window:        window,
		nanosPerMicro: nanosPerMicro,
	}
	b.state.Store(&bucketState{
		microTokens: b.capacity * tokenScale,
		refilledAt:  time.Now().UTC().UnixNano(),
	})

	return b
}

func (b *Bucket) TryConsume(cost int64) Result {
	return b.tryConsumeAt(cost, time.Now().UTC())
}

// tryConsumeAt refills proportionally to elapsed time and attempts to take
// cost tokens in a single compare-and-swap step, so concurrent callers on the
// same bucket never double-spend.
func (b *Bucket) tryConsumeAt(cost int64, now time.Time) Result {
	if cost <= 0 {
		cost = 1
	}
	full := b.capacity * tokenScale
	need := cost * tokenScale
	nowNanos := now.UnixNano()

	for {
		cur := b.state.Load()

		micro := cur.microTokens
		refilledAt := cur.refilledAt
		elapsed := nowNanos - refilledAt
		if elapsed < 0 {
			elapsed = 0
		}

		if elapsed >= b.window.Nanoseconds() {
			micro = full
			refilledAt = nowNanos
		} else if elapsed > 0 {
			added := elapsed / b.nanosPerMicro
			micro += added
			// advance by whole refill increments only, keeping the remainder
			refilledAt += added * b.nanosPerMicro
			if micro > full {
				micro = full
				refilledAt = nowNanos
			}
		}

		if micro < need {
			wait := time.Duration((need - micro) * b.nanosPerMicro)
			return Result{Allowed: false, Remaining: 0, RetryAfter: wait}
		}

		next := &bucketState{microTokens: micro - need, refilledAt: refilledAt}
		if b.state.CompareAndSwap(cur, next) {
			return Result{Allowed: true, Remaining: next.microTokens / tokenScale}
		}
	}
}
