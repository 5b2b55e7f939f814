package auth

import (
	"context"
	"errors"
	"time"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountStore is the persistence contract for account lock state and the
// append-only login attempt log.
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (Account, error)

	AppendLoginAttempt(ctx context.Context, attempt LoginAttempt) error

	// IncrementFailedAttempts raises the counter atomically and locks the
	// account when it reaches maxAttempts. An account already locked with an
	// unexpired lock is left unchanged (no extension); an expired lock
	// restarts the counter at 1. The returned expiry is non-nil only when
	// this call transitioned the account to locked.
	IncrementFailedAttempts(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (int, *time.Time, error)

	// Unlock clears the lock flag, expiry and counter.
	Unlock(ctx context.Context, username string) error

	// ResetAfterLogin zeroes the counter, clears lock fields and stamps the
	// last successful login, all in one update.
	ResetAfterLogin(ctx context.Context, username, ip string, now time.Time) error
}
