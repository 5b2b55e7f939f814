package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestBucketAllowsExactlyCapacity(t *testing.T) {
	b := NewBucket(5, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		result := b.tryConsumeAt(1, now)
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	result := b.tryConsumeAt(1, now)
	if result.Allowed {
		t.Fatal("request beyond capacity should be denied")
	}
	if result.Remaining != 0 {
		t.Fatalf("remaining on denial = %d, want 0", result.Remaining)
	}
	if result.RetryAfter <= 0 {
		t.Fatalf("retry-after on denial = %v, want > 0", result.RetryAfter)
	}
}

func TestBucketRemainingCountsDown(t *testing.T) {
	b := NewBucket(3, time.Minute)
	now := time.Now().UTC()

	want := []int64{2, 1, 0}
	for i, expected := range want {
		result := b.tryConsumeAt(1, now)
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Remaining != expected {
			t.Fatalf("remaining after request %d = %d, want %d", i+1, result.Remaining, expected)
		}
	}
}

func TestBucketFullResetAfterWindow(t *testing.T) {
	b := NewBucket(2, time.Minute)
	now := time.Now().UTC()

	b.tryConsumeAt(2, now)
	if b.tryConsumeAt(1, now).Allowed {
		t.Fatal("bucket should be empty")
	}

	later := now.Add(time.Minute)
	for i := 0; i < 2; i++ {
		if !b.tryConsumeAt(1, later).Allowed {
			t.Fatalf("request %d after full window should be allowed", i+1)
		}
	}
	if b.tryConsumeAt(1, later).Allowed {
		t.Fatal("refill should not exceed capacity")
	}
}

func TestBucketContinuousRefill(t *testing.T) {
	// 2 per minute means one token every 30 seconds.
	b := NewBucket(2, time.Minute)
	now := time.Now().UTC()

	b.tryConsumeAt(2, now)

	if b.tryConsumeAt(1, now.Add(20*time.Second)).Allowed {
		t.Fatal("only two thirds of a token accrued, should be denied")
	}
	if !b.tryConsumeAt(1, now.Add(45*time.Second)).Allowed {
		t.Fatal("1.5 tokens accrued, should be allowed")
	}
	// the half token remainder from the previous refill carries over
	if !b.tryConsumeAt(1, now.Add(75*time.Second)).Allowed {
		t.Fatal("remainder plus one more token accrued, should be allowed")
	}
	if b.tryConsumeAt(1, now.Add(75*time.Second)).Allowed {
		t.Fatal("no whole token left, should be denied")
	}
}

func TestBucketConcurrentConsume(t *testing.T) {
	// One-hour window keeps in-test refill below a single token.
	b := NewBucket(100, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryConsume(1).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Fatalf("allowed = %d, want exactly 100", allowed)
	}
}
