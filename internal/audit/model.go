package audit

import (
	"context"
	"time"
)

type Action string

// Closed taxonomy of auditable actions. New kinds are added here, never
// free-formed at call sites.
const (
	ActionViewRequest  Action = "VIEW_REQUEST"
	ActionStatusChange Action = "STATUS_CHANGE"
	ActionSoftDelete   Action = "SOFT_DELETE"
	ActionExportData   Action = "EXPORT_DATA"

	ActionLoginSuccess Action = "LOGIN_SUCCESS"
	ActionLoginFailure Action = "LOGIN_FAILURE"
	ActionLogout       Action = "LOGOUT"
	ActionTokenRefresh Action = "TOKEN_REFRESH"

	ActionAccountLocked   Action = "ACCOUNT_LOCKED"
	ActionAccountUnlocked Action = "ACCOUNT_UNLOCKED"

	ActionViewAuditTrail Action = "VIEW_AUDIT_TRAIL"

	ActionSuspiciousScore     Action = "SUSPICIOUS_SCORE"
	ActionRateLimitExceeded   Action = "RATE_LIMIT_EXCEEDED"
	ActionInvalidTokenAttempt Action = "INVALID_TOKEN_ATTEMPT"
)

var knownActions = map[Action]bool{
	ActionViewRequest:         true,
	ActionStatusChange:        true,
	ActionSoftDelete:          true,
	ActionExportData:          true,
	ActionLoginSuccess:        true,
	ActionLoginFailure:        true,
	ActionLogout:              true,
	ActionTokenRefresh:        true,
	ActionAccountLocked:       true,
	ActionAccountUnlocked:     true,
	ActionViewAuditTrail:      true,
	ActionSuspiciousScore:     true,
	ActionRateLimitExceeded:   true,
	ActionInvalidTokenAttempt: true,
}

func (a Action) Valid() bool {
	return knownActions[a]
}

// Entry is append-only: once written it is never mutated or deleted. Actor is
// the acting username, empty for anonymous or system events.
type Entry struct {
	ID           int64     `json:"id"`
	Actor        string    `json:"actor,omitempty"`
	Action       Action    `json:"action"`
	TargetEntity string    `json:"target_entity"`
	TargetID     *string   `json:"target_id,omitempty"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent,omitempty"`
	PerformedAt  time.Time `json:"performed_at"`
}

type Filter struct {
	Actor        string
	Action       Action
	TargetEntity string
	TargetID     *string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}
