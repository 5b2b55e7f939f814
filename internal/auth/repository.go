package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetAccount(ctx context.Context, username string) (Account, error) {
	var account Account
	var lockExpiresAt, lastLoginAt sql.NullTime
	var lastLoginIP sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, is_active, is_locked,
		       failed_attempts, lock_expires_at, last_login_at, last_login_ip,
		       created_at, updated_at
		FROM studio_admins
		WHERE username = $1
	`, username).Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.Role, &account.IsActive, &account.IsLocked, &account.FailedAttempts,
		&lockExpiresAt, &lastLoginAt, &lastLoginIP, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("query account by username: %w", err)
	}

	if lockExpiresAt.Valid {
		value := lockExpiresAt.Time.UTC()
		account.LockExpiresAt = &value
	}
	if lastLoginAt.Valid {
		value := lastLoginAt.Time.UTC()
		account.LastLoginAt = &value
	}
	if lastLoginIP.Valid {
		account.LastLoginIP = lastLoginIP.String
	}

	return account, nil
}

func (r *Repository) AppendLoginAttempt(ctx context.Context, attempt LoginAttempt) error {
	var reason any
	if attempt.FailureReason != "" {
		reason = attempt.FailureReason
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (username, ip_address, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, attempt.Username, attempt.IP, attempt.Success, reason, attempt.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}

	return nil
}

// IncrementFailedAttempts runs under a row lock so concurrent failures for
// the same username cannot under-count.
func (r *Repository) IncrementFailedAttempts(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (int, *time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin failed attempt tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var isLocked bool
	var lockExpiresAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, is_locked, lock_expires_at
		FROM studio_admins
		WHERE username = $1
		FOR UPDATE
	`, username).Scan(&failed, &isLocked, &lockExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrAccountNotFound
		}
		return 0, nil, fmt.Errorf("lock account row: %w", err)
	}

	now = now.UTC()

	// Unexpired lock: the attempt is logged elsewhere, the lock is not
	// extended.
	if isLocked && lockExpiresAt.Valid && now.Before(lockExpiresAt.Time) {
		if err := tx.Commit(); err != nil {
			return 0, nil, fmt.Errorf("commit failed attempt tx: %w", err)
		}
		return failed, nil, nil
	}

	if isLocked {
		// Lock expired but was never cleared by a read: restart the counter.
		failed = 0
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any
	nowLocked := false
	if failed >= maxAttempts {
		until := now.Add(lockDuration)
		nextLock = &until
		nextLockValue = until
		nowLocked = true
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE studio_admins
		SET failed_attempts = $2, is_locked = $3, lock_expires_at = $4, updated_at = $5
		WHERE username = $1
	`, username, failed, nowLocked, nextLockValue, now)
	if err != nil {
		return 0, nil, fmt.Errorf("update failed attempts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit failed attempt tx: %w", err)
	}

	return failed, nextLock, nil
}

func (r *Repository) Unlock(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE studio_admins
		SET is_locked = FALSE, lock_expires_at = NULL, failed_attempts = 0, updated_at = $2
		WHERE username = $1
	`, username, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}

	return nil
}

func (r *Repository) ResetAfterLogin(ctx context.Context, username, ip string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE studio_admins
		SET failed_attempts = 0, is_locked = FALSE, lock_expires_at = NULL,
		    last_login_at = $2, last_login_ip = $3, updated_at = $2
		WHERE username = $1
	`, username, now.UTC(), ip)
	if err != nil {
		return fmt.Errorf("reset account after login: %w", err)
	}

	return nil
}

// UpsertAdmin seeds or rotates the administrative account from the
// environment at startup.
func (r *Repository) UpsertAdmin(ctx context.Context, username, email, plainPassword, role string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO studio_admins
			(id, username, email, password_hash, role, is_active, is_locked, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, 0, $6, $6)
		ON CONFLICT (username)
		DO UPDATE SET
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			is_active = TRUE,
			updated_at = EXCLUDED.updated_at
	`, id.String(), username, email, string(hash), role, now)
	if err != nil {
		return fmt.Errorf("upsert admin account: %w", err)
	}

	return nil
}
