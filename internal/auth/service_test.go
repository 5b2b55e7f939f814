package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studio-intake/internal/audit"
	"studio-intake/internal/observability"
)

type memAuditStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *memAuditStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memAuditStore) List(_ context.Context, _ audit.Filter) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...), nil
}

func newTestService(t *testing.T, store AccountStore) (*Service, *audit.Recorder) {
	t.Helper()
	logger := observability.NewLogger()
	tokens := newTestTokenManager(t, TokenConfig{})
	recorder := audit.NewRecorder(&memAuditStore{}, logger)
	t.Cleanup(recorder.Close)
	tracker := newTestTracker(store)
	return NewService(store, tracker, tokens, recorder, logger), recorder
}

func TestLoginSuccess(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	service, _ := newTestService(t, store)

	pair, err := service.Login(context.Background(), "alice", "hunter22", "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}
	if pair.Username != "alice" || pair.Role != "ADMIN" {
		t.Fatalf("pair identity = %q/%q", pair.Username, pair.Role)
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	service, _ := newTestService(t, store)

	if _, err := service.Login(context.Background(), "  ALICE ", "hunter22", "203.0.113.9", ""); err != nil {
		t.Fatalf("Login with unnormalized username: %v", err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	store.addAccount(t, "bob", "hunter22", false)
	service, _ := newTestService(t, store)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong-password"},
		{"unknown username", "ghost", "hunter22"},
		{"disabled account", "bob", "hunter22"},
	}
	for _, tc := range cases {
		_, err := service.Login(ctx, tc.username, tc.password, "203.0.113.9", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: err = %v, want ErrInvalidCredentials", tc.name, err)
		}
	}
}

func TestLoginFailureReasonsAreDistinctInternally(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	service, _ := newTestService(t, store)
	ctx := context.Background()

	service.Login(ctx, "alice", "wrong-password", "203.0.113.9", "")
	service.Login(ctx, "ghost", "whatever", "203.0.113.9", "")

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.attempts) != 2 {
		t.Fatalf("attempt rows = %d, want 2", len(store.attempts))
	}
	if store.attempts[0].FailureReason != ReasonBadCredentials {
		t.Fatalf("first reason = %q, want %q", store.attempts[0].FailureReason, ReasonBadCredentials)
	}
	if store.attempts[1].FailureReason != ReasonUnknownUsername {
		t.Fatalf("second reason = %q, want %q", store.attempts[1].FailureReason, ReasonUnknownUsername)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	service, _ := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := service.Login(ctx, "alice", "wrong-password", "203.0.113.9", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v", i+1, err)
		}
	}

	var lockedErr AccountLockedError
	_, err := service.Login(ctx, "alice", "wrong-password", "203.0.113.9", "")
	if !errors.As(err, &lockedErr) {
		t.Fatalf("fifth failure: err = %v, want AccountLockedError", err)
	}
	if lockedErr.Until == nil {
		t.Fatal("lock error should carry the expiry")
	}

	// Correct password while locked is still rejected.
	_, err = service.Login(ctx, "alice", "hunter22", "203.0.113.9", "")
	if !errors.As(err, &lockedErr) {
		t.Fatalf("login while locked: err = %v, want AccountLockedError", err)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	service, _ := newTestService(t, store)
	ctx := context.Background()

	pair, err := service.Login(ctx, "alice", "hunter22", "203.0.113.9", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := service.Refresh(ctx, pair.RefreshToken, "203.0.113.9", "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Username != "alice" || refreshed.Role != "ADMIN" {
		t.Fatalf("refreshed identity = %q/%q", refreshed.Username, refreshed.Role)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	store := newMemAccountStore()
	store.addAccount(t, "alice", "hunter22", true)
	service, _ := newTestService(t, store)
	ctx := context.Background()

	pair, err := service.Login(ctx, "alice", "hunter22", "203.0.113.9", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := service.Refresh(ctx, pair.AccessToken, "203.0.113.9", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Refresh with access token: err = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	store := newMemAccountStore()
	service, _ := newTestService(t, store)

	if _, err := service.Refresh(context.Background(), "not-a-token", "203.0.113.9", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
