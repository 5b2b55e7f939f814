package intake

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio-intake/internal/audit"
	"studio-intake/internal/crypto"
	"studio-intake/internal/observability"
	"studio-intake/internal/risk"
)

type SubmitInput struct {
	FullName    string
	Email       string
	Phone       string
	ProjectType string
	Description string
	RiskToken   string
	IP          string
	UserAgent   string
}

type Service struct {
	store    Store
	throttle *Throttler
	cipher   *crypto.FieldCipher
	risk     *risk.Client
	auditor  *audit.Recorder
	logger   *observability.Logger
}

func NewService(store Store, throttle *Throttler, cipher *crypto.FieldCipher, riskClient *risk.Client, auditor *audit.Recorder, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		throttle: throttle,
		cipher:   cipher,
		risk:     riskClient,
		auditor:  auditor,
		logger:   logger,
	}
}

func (s *Service) Submit(ctx context.Context, input SubmitInput) (ProjectRequest, error) {
	score, err := s.risk.Verify(ctx, input.RiskToken, input.IP)
	if err != nil {
		var lowScore risk.LowScoreError
		if errors.As(err, &lowScore) {
			s.auditor.LogSecurityEvent(audit.ActionSuspiciousScore,
				fmt.Sprintf("score %.2f below threshold", lowScore.Score), input.IP, input.UserAgent)
		}
		return ProjectRequest{}, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	phone := strings.TrimSpace(input.Phone)
	emailHash := crypto.Fingerprint(email)
	phoneHash := crypto.Fingerprint(phone)

	now := time.Now().UTC()
	if err := s.throttle.CheckCooldown(ctx, emailHash, phoneHash, now); err != nil {
		return ProjectRequest{}, err
	}

	exists, err := s.store.ExistsFingerprint(ctx, emailHash, phoneHash)
	if err != nil {
		return ProjectRequest{}, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return ProjectRequest{}, ErrDuplicateRequest
	}

	emailEncrypted, err := s.cipher.Encrypt(email)
	if err != nil {
		return ProjectRequest{}, fmt.Errorf("encrypt email: %w", err)
	}
	phoneEncrypted, err := s.cipher.Encrypt(phone)
	if err != nil {
		return ProjectRequest{}, fmt.Errorf("encrypt phone: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return ProjectRequest{}, fmt.Errorf("generate id: %w", err)
	}

	request := ProjectRequest{
		ID:             id.String(),
		FullName:       strings.TrimSpace(input.FullName),
		EmailEncrypted: emailEncrypted,
		PhoneEncrypted: phoneEncrypted,
		EmailHash:      emailHash,
		PhoneHash:      phoneHash,
		ProjectType:    input.ProjectType,
		Description:    strings.TrimSpace(input.Description),
		Status:         StatusPending,
		RiskScore:      score,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, request); err != nil {
		return ProjectRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("project_request_created", map[string]any{
		"request_id":   request.ID,
		"project_type": request.ProjectType,
		"risk_score":   score,
	})
	return request, nil
}

func (s *Service) Get(ctx context.Context, actor, id, ip, userAgent string) (ProjectRequest, string, string, error) {
	request, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ProjectRequest{}, "", "", err
	}
	email, err := s.cipher.Decrypt(request.EmailEncrypted)
	if err != nil {
		return ProjectRequest{}, "", "", fmt.Errorf("decrypt email: %w", err)
	}
	phone, err := s.cipher.Decrypt(request.PhoneEncrypted)
	if err != nil {
		return ProjectRequest{}, "", "", fmt.Errorf("decrypt phone: %w", err)
	}
	s.auditor.LogView(actor, id, ip, userAgent)
	return request, email, phone, nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]ProjectRequest, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, status)
	}
	return s.store.List(ctx, status, limit, offset)
}

func (s *Service) ChangeStatus(ctx context.Context, actor, id, newStatus, ip, userAgent string) error {
	if !ValidStatus(newStatus) {
		return fmt.Errorf("%w %q", ErrUnknownStatus, newStatus)
	}
	oldStatus, err := s.store.UpdateStatus(ctx, id, newStatus, time.Now().UTC())
	if err != nil {
		return err
	}
	s.auditor.LogStatusChange(actor, id, oldStatus, newStatus, ip, userAgent)
	return nil
}

func (s *Service) SoftDelete(ctx context.Context, actor, id, ip, userAgent string) error {
	if err := s.store.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return err
	}
	s.auditor.LogDelete(actor, id, ip, userAgent)
	return nil
}

// ExportCSV decrypts contact fields for every matching row, so exports are
// always audited.
func (s *Service) ExportCSV(ctx context.Context, actor, status, ip, userAgent string) ([]byte, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, status)
	}
	requests, err := s.store.List(ctx, status, 10000, 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "full_name", "email", "phone", "project_type", "status", "risk_score", "created_at"})
	for _, request := range requests {
		email, err := s.cipher.Decrypt(request.EmailEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt email for %s: %w", request.ID, err)
		}
		phone, err := s.cipher.Decrypt(request.PhoneEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt phone for %s: %w", request.ID, err)
		}
		_ = w.Write([]string{
			request.ID,
			request.FullName,
			email,
			phone,
			request.ProjectType,
			request.Status,
			strconv.FormatFloat(request.RiskScore, 'f', 2, 64),
			request.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	s.auditor.LogExport(actor, fmt.Sprintf("%d rows", len(requests)), ip, userAgent)
	return buf.Bytes(), nil
}
