package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"studio-intake/internal/observability"
)

// neutralScore is returned when the verification service is unreachable:
// availability over strictness, the submission proceeds with a neutral score.
const neutralScore = 0.5

var ErrMissingToken = errors.New("verification token is missing")

type LowScoreError struct {
	Score float64
}

func (e LowScoreError) Error() string {
	return "verification score below threshold"
}

type Config struct {
	Enabled   bool
	VerifyURL string
	Secret    string
	MinScore  float64
}

type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *observability.Logger
}

func NewClient(config Config, logger *observability.Logger) (*Client, error) {
	if config.Enabled {
		if strings.TrimSpace(config.VerifyURL) == "" || strings.TrimSpace(config.Secret) == "" {
			return nil, errors.New("risk verification enabled but verify url or secret missing")
		}
	}
	if config.MinScore <= 0 || config.MinScore > 1 {
		config.MinScore = 0.5
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		// the verification API is shared capacity; cap outbound calls
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		logger:  logger,
	}, nil
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify submits the client token for scoring. A score below the threshold
// fails with LowScoreError; an unreachable verification service passes with
// the neutral score rather than rejecting the request.
func (c *Client) Verify(ctx context.Context, token, clientIP string) (float64, error) {
	if !c.config.Enabled {
		return 1.0, nil
	}

	if strings.TrimSpace(token) == "" {
		return 0, ErrMissingToken
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("wait for verify slot: %w", err)
	}

	form := url.Values{}
	form.Set("secret", c.config.Secret)
	form.Set("response", token)
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.VerifyURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("risk_verify_unreachable", map[string]any{"error": err.Error()})
		return neutralScore, nil
	}
	defer resp.Body.Close()

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Error("risk_verify_bad_response", map[string]any{"error": err.Error()})
		return neutralScore, nil
	}

	if !result.Success {
		c.logger.Info("risk_verify_rejected", map[string]any{
			"ip":          clientIP,
			"error_codes": result.ErrorCodes,
		})
		return result.Score, LowScoreError{Score: result.Score}
	}

	if result.Score < c.config.MinScore {
		c.logger.Info("risk_score_below_threshold", map[string]any{
			"ip":    clientIP,
			"score": result.Score,
			"min":   c.config.MinScore,
		})
		return result.Score, LowScoreError{Score: result.Score}
	}

	return result.Score, nil
}
