package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studio-intake/internal/observability"
)

const (
	TokenTypeAccess  = "ACCESS"
	TokenTypeRefresh = "REFRESH"

	// HS512 wants a key at least as long as the hash output.
	minKeyBytes = 64
)

// ErrInvalidToken is the uniform external outcome for every validation
// failure; the distinct reason is only ever logged.
var ErrInvalidToken = errors.New("invalid token")

type TokenConfig struct {
	SecretKey        string
	Issuer           string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RequireStrongKey bool
}

type Claims struct {
	Roles     string `json:"roles"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *observability.Logger
}

func NewTokenManager(config TokenConfig, logger *observability.Logger) (*TokenManager, error) {
	m := &TokenManager{
		issuer:     config.Issuer,
		accessTTL:  config.AccessTTL,
		refreshTTL: config.RefreshTTL,
		logger:     logger,
	}
	if m.issuer == "" {
		return nil, errors.New("token issuer must be configured")
	}
	if m.accessTTL <= 0 {
		m.accessTTL = 15 * time.Minute
	}
	if m.refreshTTL <= 0 {
		m.refreshTTL = 7 * 24 * time.Hour
	}

	secret := strings.TrimSpace(config.SecretKey)
	if secret == "" {
		if config.RequireStrongKey {
			return nil, errors.New("token secret key must be provided in strict mode")
		}

		// Ephemeral key: tokens will not survive a restart and cannot be
		// shared across processes.
		key := make([]byte, minKeyBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		m.key = key
		logger.Error("token_secret_missing", map[string]any{
			"message": "no token secret configured; using ephemeral key, all tokens invalidate on restart",
		})
		return m, nil
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("token secret key is not valid base64: %w", err)
	}
	if len(key) < minKeyBytes {
		return nil, fmt.Errorf("token secret key too short: need at least %d bytes for HS512", minKeyBytes)
	}

	m.key = key
	return m, nil
}

func (m *TokenManager) IssuePair(subject, roles string) (TokenPair, error) {
	access, err := m.issue(subject, roles, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.issue(subject, roles, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(m.accessTTL.Seconds()),
		RefreshExpiresIn: int64(m.refreshTTL.Seconds()),
	}, nil
}

func (m *TokenManager) issue(subject, roles, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Roles:     roles,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return signed, nil
}

// Validate runs the full pipeline: signature, expiry, algorithm allow-list,
// issuer, then required type. Any failure logs its reason and yields the
// uniform ErrInvalidToken.
func (m *TokenManager) Validate(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		m.logger.Info("token_rejected", map[string]any{"reason": classifyTokenError(err)})
		return nil, ErrInvalidToken
	}

	if claims.TokenType != wantType {
		m.logger.Info("token_rejected", map[string]any{
			"reason": "wrong_token_type",
			"want":   wantType,
		})
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *TokenManager) ValidateAccess(tokenString string) (*Claims, error) {
	return m.Validate(tokenString, TokenTypeAccess)
}

func (m *TokenManager) ValidateRefresh(tokenString string) (*Claims, error) {
	return m.Validate(tokenString, TokenTypeRefresh)
}

// classifyTokenError keeps the internally distinct rejection reasons; none of
// these strings ever reach a client.
func classifyTokenError(err error) string {
	switch {
	case err == nil:
		return "not_valid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer_mismatch"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable_algorithm"
	default:
		return "invalid"
	}
}
