package intake

import (
	"context"
	"errors"
	"time"
)

const (
	StatusPending    = "PENDING"
	StatusReviewing  = "REVIEWING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusReviewing, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const (
	ProjectTypeAndroid = "ANDROID_APP"
	ProjectTypeIOS     = "IOS_APP"
	ProjectTypeWebsite = "WEBSITE"
)

func ValidProjectType(projectType string) bool {
	switch projectType {
	case ProjectTypeAndroid, ProjectTypeIOS, ProjectTypeWebsite:
		return true
	}
	return false
}

// ProjectRequest stores contact fields encrypted at rest; the hash pair is
// what duplicate detection keys on.
type ProjectRequest struct {
	ID             string    `json:"id"`
	FullName       string    `json:"full_name"`
	EmailEncrypted string    `json:"-"`
	PhoneEncrypted string    `json:"-"`
	EmailHash      string    `json:"email_hash"`
	PhoneHash      string    `json:"phone_hash"`
	ProjectType    string    `json:"project_type"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	RiskScore      float64   `json:"risk_score"`
	IsDeleted      bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var ErrRequestNotFound = errors.New("project request not found")

// ErrUnknownStatus covers a status value outside the lifecycle set, whether
// used as a transition target or as a list filter.
var ErrUnknownStatus = errors.New("unknown status")

// ErrDuplicateRequest is the permanent variant: the exact fingerprint pair
// already exists, no amount of waiting helps.
var ErrDuplicateRequest = errors.New("duplicate project request")

type Store interface {
	Create(ctx context.Context, request ProjectRequest) error
	GetByID(ctx context.Context, id string) (ProjectRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]ProjectRequest, error)
	UpdateStatus(ctx context.Context, id, newStatus string, now time.Time) (string, error)
	SoftDelete(ctx context.Context, id string, now time.Time) error

	// ExistsFingerprint is the unbounded permanent duplicate check over
	// non-deleted rows.
	ExistsFingerprint(ctx context.Context, emailHash, phoneHash string) (bool, error)

	// LatestFingerprintAt returns the creation time of the newest non-deleted
	// row with the pair, or nil when none exists.
	LatestFingerprintAt(ctx context.Context, emailHash, phoneHash string) (*time.Time, error)
}
