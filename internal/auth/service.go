package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"studio-intake/internal/audit"
	"studio-intake/internal/observability"
)

// ErrInvalidCredentials is the single external failure for unknown username,
// wrong password and disabled account alike; the distinction only exists in
// the attempt log and the audit trail.
var ErrInvalidCredentials = errors.New("invalid credentials")

type AccountLockedError struct {
	Until *time.Time
}

func (e AccountLockedError) Error() string {
	return "account temporarily locked"
}

type Service struct {
	accounts AccountStore
	lockout  *LockoutTracker
	tokens   *TokenManager
	auditor  *audit.Recorder
	logger   *observability.Logger
}

func NewService(accounts AccountStore, lockout *LockoutTracker, tokens *TokenManager, auditor *audit.Recorder, logger *observability.Logger) *Service {
	return &Service{
		accounts: accounts,
		lockout:  lockout,
		tokens:   tokens,
		auditor:  auditor,
		logger:   logger,
	}
}

func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (TokenPair, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}

	locked, err := s.lockout.IsAccountLocked(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if locked {
		until := s.lockout.LockExpiresAt(ctx, username)
		if _, err := s.lockout.RecordFailedAttempt(ctx, username, ip, ReasonAccountLocked); err != nil {
			return TokenPair{}, err
		}
		s.auditor.LogLogin(username, false, ip, userAgent, ReasonAccountLocked)
		return TokenPair{}, AccountLockedError{Until: until}
	}

	account, err := s.accounts.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TokenPair{}, s.failLogin(ctx, username, ip, userAgent, ReasonUnknownUsername)
		}
		return TokenPair{}, err
	}

	if !account.IsActive {
		return TokenPair{}, s.failLogin(ctx, username, ip, userAgent, ReasonAccountDisabled)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, s.failLogin(ctx, username, ip, userAgent, ReasonBadCredentials)
	}

	if err := s.lockout.RecordSuccessfulLogin(ctx, username, ip); err != nil {
		return TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(account.Username, account.Role)
	if err != nil {
		return TokenPair{}, err
	}
	pair.Username = account.Username
	pair.Role = account.Role

	s.auditor.LogLogin(username, true, ip, userAgent, "")
	s.logger.Info("login_success", map[string]any{"username": username, "ip": ip})

	return pair, nil
}

// failLogin records the attempt and maps every internal reason to the same
// client-facing error. If this attempt tripped the lock, the lock wins.
func (s *Service) failLogin(ctx context.Context, username, ip, userAgent, reason string) error {
	lockedUntil, err := s.lockout.RecordFailedAttempt(ctx, username, ip, reason)
	if err != nil {
		return err
	}

	s.auditor.LogLogin(username, false, ip, userAgent, reason)

	if lockedUntil != nil {
		s.auditor.LogAccountLocked(username, ip, userAgent)
		return AccountLockedError{Until: lockedUntil}
	}

	return ErrInvalidCredentials
}

// Refresh validates a REFRESH token and mints a new pair from its embedded
// subject and roles; no credential re-check.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (TokenPair, error) {
	claims, err := s.tokens.ValidateRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		s.auditor.LogSecurityEvent(audit.ActionInvalidTokenAttempt, "refresh rejected", ip, userAgent)
		return TokenPair{}, ErrInvalidToken
	}

	pair, err := s.tokens.IssuePair(claims.Subject, claims.Roles)
	if err != nil {
		return TokenPair{}, err
	}
	pair.Username = claims.Subject
	pair.Role = claims.Roles

	s.auditor.Record(claims.Subject, audit.ActionTokenRefresh, "StudioAdmin", nil, nil, nil, ip, userAgent)

	return pair, nil
}

func (s *Service) Logout(username, ip, userAgent string) {
	// Tokens are stateless; the client discards the pair. The event is still
	// worth a trail entry.
	s.auditor.Record(username, audit.ActionLogout, "StudioAdmin", nil, nil, nil, ip, userAgent)
}
