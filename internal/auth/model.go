package auth

import "time"

type Account struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	Role           string
	IsActive       bool
	IsLocked       bool
	FailedAttempts int
	LockExpiresAt  *time.Time
	LastLoginAt    *time.Time
	LastLoginIP    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LoginAttempt rows are append-only: one per attempt, never mutated.
type LoginAttempt struct {
	ID            int64
	Username      string
	IP            string
	Success       bool
	FailureReason string
	CreatedAt     time.Time
}

type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Username         string `json:"username,omitempty"`
	Role             string `json:"role,omitempty"`
}

// Failure reasons recorded server-side; never exposed to clients.
const (
	ReasonUnknownUsername = "UNKNOWN_USERNAME"
	ReasonBadCredentials  = "BAD_CREDENTIALS"
	ReasonAccountLocked   = "ACCOUNT_LOCKED"
	ReasonAccountDisabled = "ACCOUNT_DISABLED"
)
