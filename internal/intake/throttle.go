package intake

import (
	"context"
	"fmt"
	"time"
)

const defaultCooldown = 10 * time.Minute

type CooldownError struct {
	Wait time.Duration
}

func (e CooldownError) Error() string {
	return fmt.Sprintf("a similar request was submitted recently, retry in %s", e.Wait.Round(time.Second))
}

// Throttler enforces the resubmission cooldown on a fingerprint pair. It is
// distinct from the permanent duplicate check: the cooldown expires, the
// uniqueness constraint does not.
type Throttler struct {
	store    Store
	cooldown time.Duration
}

func NewThrottler(store Store, cooldown time.Duration) *Throttler {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Throttler{store: store, cooldown: cooldown}
}

func (t *Throttler) CheckCooldown(ctx context.Context, emailHash, phoneHash string, now time.Time) error {
	createdAt, err := t.store.LatestFingerprintAt(ctx, emailHash, phoneHash)
	if err != nil {
		return fmt.Errorf("cooldown lookup: %w", err)
	}
	if createdAt == nil {
		return nil
	}
	elapsed := now.Sub(*createdAt)
	if elapsed < t.cooldown {
		return CooldownError{Wait: t.cooldown - elapsed}
	}
	return nil
}
