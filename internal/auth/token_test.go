package auth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"studio-intake/internal/observability"
)

func testSecret(fill byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{fill}, 64))
}

func newTestTokenManager(t *testing.T, config TokenConfig) *TokenManager {
	t.Helper()
	if config.Issuer == "" {
		config.Issuer = "studio-intake-test"
	}
	if config.SecretKey == "" && !config.RequireStrongKey {
		config.SecretKey = testSecret(0x42)
	}
	m, err := NewTokenManager(config, observability.NewLogger())
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return m
}

func TestIssueAndValidatePair(t *testing.T) {
	m := newTestTokenManager(t, TokenConfig{})

	pair, err := m.IssuePair("alice", "ADMIN")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("token type = %q, want Bearer", pair.TokenType)
	}

	claims, err := m.ValidateAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != "alice" || claims.Roles != "ADMIN" {
		t.Fatalf("claims = %q/%q, want alice/ADMIN", claims.Subject, claims.Roles)
	}

	if _, err := m.ValidateRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
}

func TestValidateRejectsWrongTokenType(t *testing.T) {
	m := newTestTokenManager(t, TokenConfig{})

	pair, err := m.IssuePair("alice", "ADMIN")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := m.ValidateRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token as refresh: err = %v, want ErrInvalidToken", err)
	}
	if _, err := m.ValidateAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token as access: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	m := newTestTokenManager(t, TokenConfig{})

	pair, err := m.IssuePair("alice", "ADMIN")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	payload := []byte(parts[1])
	payload[len(payload)/2] ^= 0x01
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := m.ValidateAccess(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuerA := newTestTokenManager(t, TokenConfig{SecretKey: testSecret(0x01)})
	issuerB := newTestTokenManager(t, TokenConfig{SecretKey: testSecret(0x02)})

	pair, err := issuerA.IssuePair("alice", "ADMIN")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := issuerB.ValidateAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	key := testSecret(0x42)
	issuerA := newTestTokenManager(t, TokenConfig{SecretKey: key, Issuer: "service-a"})
	issuerB := newTestTokenManager(t, TokenConfig{SecretKey: key, Issuer: "service-b"})

	pair, err := issuerA.IssuePair("alice", "ADMIN")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := issuerB.ValidateAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("issuer mismatch: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := newTestTokenManager(t, TokenConfig{})

	token, err := m.issue("alice", "ADMIN", TokenTypeAccess, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.ValidateAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newTestTokenManager(t, TokenConfig{})

	for _, input := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		if _, err := m.ValidateAccess(input); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("input %q: err = %v, want ErrInvalidToken", input, err)
		}
	}
}

func TestStrictModeRequiresSecret(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{
		Issuer:           "studio-intake-test",
		RequireStrongKey: true,
	}, observability.NewLogger())
	if err == nil {
		t.Fatal("strict mode with no secret should fail")
	}
}

func TestRelaxedModeFallsBackToEphemeralKey(t *testing.T) {
	m, err := NewTokenManager(TokenConfig{
		Issuer: "studio-intake-test",
	}, observability.NewLogger())
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	pair, err := m.IssuePair("alice", "ADMIN")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.ValidateAccess(pair.AccessToken); err != nil {
		t.Fatalf("ephemeral key should validate its own tokens: %v", err)
	}
}

func TestRejectsShortSecret(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	_, err := NewTokenManager(TokenConfig{
		Issuer:    "studio-intake-test",
		SecretKey: short,
	}, observability.NewLogger())
	if err == nil {
		t.Fatal("32-byte key should be rejected for HS512")
	}
}
