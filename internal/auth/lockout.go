package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio-intake/internal/observability"
)

// LockoutTracker is a deterrent against credential stuffing, not a hard
// security boundary: it locks an account after repeated failures and unlocks
// it lazily once the lock window has passed.
type LockoutTracker struct {
	store        AccountStore
	maxAttempts  int
	lockDuration time.Duration
	logger       *observability.Logger
}

func NewLockoutTracker(store AccountStore, maxAttempts int, lockDuration time.Duration, logger *observability.Logger) *LockoutTracker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockDuration <= 0 {
		lockDuration = 30 * time.Minute
	}

	return &LockoutTracker{
		store:        store,
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		logger:       logger,
	}
}

// IsAccountLocked reports the current lock state. An unknown username reads
// as unlocked, indistinguishable from a real unlocked account. An expired
// lock is cleared on read.
func (t *LockoutTracker) IsAccountLocked(ctx context.Context, username string) (bool, error) {
	account, err := t.store.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read lock state: %w", err)
	}

	if !account.IsLocked {
		return false, nil
	}

	if account.LockExpiresAt != nil && time.Now().UTC().After(*account.LockExpiresAt) {
		t.logger.Info("account_lock_expired", map[string]any{"username": username})
		if err := t.store.Unlock(ctx, username); err != nil {
			return false, fmt.Errorf("auto-unlock account: %w", err)
		}
		return false, nil
	}

	return true, nil
}

func (t *LockoutTracker) LockExpiresAt(ctx context.Context, username string) *time.Time {
	account, err := t.store.GetAccount(ctx, username)
	if err != nil {
		return nil
	}
	return account.LockExpiresAt
}

// RecordFailedAttempt always appends a login attempt row, then raises the
// failure counter for existing accounts. Returns the lock expiry when this
// attempt locked the account.
func (t *LockoutTracker) RecordFailedAttempt(ctx context.Context, username, ip, reason string) (*time.Time, error) {
	now := time.Now().UTC()

	if err := t.store.AppendLoginAttempt(ctx, LoginAttempt{
		Username:      username,
		IP:            ip,
		Success:       false,
		FailureReason: reason,
		CreatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("append failed login attempt: %w", err)
	}

	attempts, lockedUntil, err := t.store.IncrementFailedAttempts(ctx, username, t.maxAttempts, t.lockDuration, now)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("increment failed attempts: %w", err)
	}

	if lockedUntil != nil {
		t.logger.Error("account_locked", map[string]any{
			"username":     username,
			"ip":           ip,
			"attempts":     attempts,
			"locked_until": lockedUntil.Format(time.RFC3339),
		})
		return lockedUntil, nil
	}

	t.logger.Info("login_attempt_failed", map[string]any{
		"username": username,
		"ip":       ip,
		"attempts": attempts,
		"reason":   reason,
	})

	return nil, nil
}

func (t *LockoutTracker) RecordSuccessfulLogin(ctx context.Context, username, ip string) error {
	now := time.Now().UTC()

	if err := t.store.AppendLoginAttempt(ctx, LoginAttempt{
		Username:  username,
		IP:        ip,
		Success:   true,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append successful login attempt: %w", err)
	}

	if err := t.store.ResetAfterLogin(ctx, username, ip, now); err != nil {
		return fmt.Errorf("reset lockout state: %w", err)
	}

	return nil
}
