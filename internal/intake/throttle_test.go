package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	requests []ProjectRequest
}

func (s *memStore) Create(_ context.Context, request ProjectRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (ProjectRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, request := range s.requests {
		if request.ID == id && !request.IsDeleted {
			return request, nil
		}
	}
	return ProjectRequest{}, ErrRequestNotFound
}

func (s *memStore) List(_ context.Context, status string, limit, offset int) ([]ProjectRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ProjectRequest
	for _, request := range s.requests {
		if request.IsDeleted {
			continue
		}
		if status != "" && request.Status != status {
			continue
		}
		out = append(out, request)
	}
	return out, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id, newStatus string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if s.requests[i].ID == id && !s.requests[i].IsDeleted {
			old := s.requests[i].Status
			s.requests[i].Status = newStatus
			s.requests[i].UpdatedAt = now
			return old, nil
		}
	}
	return "", ErrRequestNotFound
}

func (s *memStore) SoftDelete(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if s.requests[i].ID == id && !s.requests[i].IsDeleted {
			s.requests[i].IsDeleted = true
			s.requests[i].UpdatedAt = now
			return nil
		}
	}
	return ErrRequestNotFound
}

func (s *memStore) ExistsFingerprint(_ context.Context, emailHash, phoneHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, request := range s.requests {
		if !request.IsDeleted && request.EmailHash == emailHash && request.PhoneHash == phoneHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) LatestFingerprintAt(_ context.Context, emailHash, phoneHash string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *time.Time
	for _, request := range s.requests {
		if request.IsDeleted || request.EmailHash != emailHash || request.PhoneHash != phoneHash {
			continue
		}
		created := request.CreatedAt
		if latest == nil || created.After(*latest) {
			latest = &created
		}
	}
	return latest, nil
}

func seedRequest(s *memStore, emailHash, phoneHash string, createdAt time.Time) {
	s.requests = append(s.requests, ProjectRequest{
		ID:        "req-" + emailHash[:8],
		EmailHash: emailHash,
		PhoneHash: phoneHash,
		Status:    StatusPending,
		CreatedAt: createdAt,
	})
}

func TestCooldownBlocksInsideWindow(t *testing.T) {
	store := &memStore{}
	throttler := NewThrottler(store, 10*time.Minute)
	now := time.Now().UTC()

	seedRequest(store, "hash-email", "hash-phone", now.Add(-5*time.Minute))

	err := throttler.CheckCooldown(context.Background(), "hash-email", "hash-phone", now)
	var cooldown CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("err = %v, want CooldownError", err)
	}
	if cooldown.Wait <= 0 || cooldown.Wait > 5*time.Minute {
		t.Fatalf("wait = %v, want within remaining 5 minutes", cooldown.Wait)
	}
}

func TestCooldownAllowsAtExactBoundary(t *testing.T) {
	store := &memStore{}
	throttler := NewThrottler(store, 10*time.Minute)
	now := time.Now().UTC()

	seedRequest(store, "hash-email", "hash-phone", now.Add(-10*time.Minute))

	if err := throttler.CheckCooldown(context.Background(), "hash-email", "hash-phone", now); err != nil {
		t.Fatalf("exactly at the window boundary should pass, got %v", err)
	}
}

func TestCooldownBlocksJustInsideBoundary(t *testing.T) {
	store := &memStore{}
	throttler := NewThrottler(store, 10*time.Minute)
	now := time.Now().UTC()

	seedRequest(store, "hash-email", "hash-phone", now.Add(-10*time.Minute+time.Second))

	if err := throttler.CheckCooldown(context.Background(), "hash-email", "hash-phone", now); err == nil {
		t.Fatal("one second inside the window should still block")
	}
}

func TestCooldownIgnoresOtherFingerprints(t *testing.T) {
	store := &memStore{}
	throttler := NewThrottler(store, 10*time.Minute)
	now := time.Now().UTC()

	seedRequest(store, "hash-other", "hash-phone", now.Add(-time.Minute))

	if err := throttler.CheckCooldown(context.Background(), "hash-email", "hash-phone", now); err != nil {
		t.Fatalf("different fingerprint pair should pass, got %v", err)
	}
}

func TestCooldownUsesNewestSubmission(t *testing.T) {
	store := &memStore{}
	throttler := NewThrottler(store, 10*time.Minute)
	now := time.Now().UTC()

	seedRequest(store, "hash-email", "hash-phone", now.Add(-30*time.Minute))
	seedRequest(store, "hash-email", "hash-phone", now.Add(-2*time.Minute))

	if err := throttler.CheckCooldown(context.Background(), "hash-email", "hash-phone", now); err == nil {
		t.Fatal("newest submission is inside the window, should block")
	}
}
