package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (s *Repository) Create(ctx context.Context, request ProjectRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_requests
			(id, full_name, email_encrypted, phone_encrypted, email_hash, phone_hash,
			 project_type, description, status, risk_score, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)
	`, request.ID, request.FullName, request.EmailEncrypted, request.PhoneEncrypted,
		request.EmailHash, request.PhoneHash, request.ProjectType, request.Description,
		request.Status, request.RiskScore, request.CreatedAt, request.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project request: %w", err)
	}
	return nil
}

func (s *Repository) GetByID(ctx context.Context, id string) (ProjectRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email_encrypted, phone_encrypted, email_hash, phone_hash,
		       project_type, description, status, risk_score, is_deleted, created_at, updated_at
		FROM project_requests
		WHERE id = $1 AND NOT is_deleted
	`, id)
	return scanRequest(row)
}

func (s *Repository) List(ctx context.Context, status string, limit, offset int) ([]ProjectRequest, error) {
	if limit <= 0 || limit > 10000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, full_name, email_encrypted, phone_encrypted, email_hash, phone_hash,
		       project_type, description, status, risk_score, is_deleted, created_at, updated_at
		FROM project_requests
		WHERE NOT is_deleted`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list project requests: %w", err)
	}
	defer rows.Close()

	requests := []ProjectRequest{}
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

func (s *Repository) UpdateStatus(ctx context.Context, id, newStatus string, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM project_requests
		WHERE id = $1 AND NOT is_deleted
		FOR UPDATE
	`, id).Scan(&oldStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRequestNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lock project request: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE project_requests SET status = $1, updated_at = $2 WHERE id = $3
	`, newStatus, now, id)
	if err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return oldStatus, nil
}

func (s *Repository) SoftDelete(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE project_requests SET is_deleted = TRUE, updated_at = $1
		WHERE id = $2 AND NOT is_deleted
	`, now, id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (s *Repository) ExistsFingerprint(ctx context.Context, emailHash, phoneHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_requests
			WHERE email_hash = $1 AND phone_hash = $2 AND NOT is_deleted
		)
	`, emailHash, phoneHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("fingerprint exists: %w", err)
	}
	return exists, nil
}

func (s *Repository) LatestFingerprintAt(ctx context.Context, emailHash, phoneHash string) (*time.Time, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM project_requests
		WHERE email_hash = $1 AND phone_hash = $2 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT 1
	`, emailHash, phoneHash).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest fingerprint: %w", err)
	}
	return &createdAt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (ProjectRequest, error) {
	var request ProjectRequest
	err := row.Scan(&request.ID, &request.FullName, &request.EmailEncrypted, &request.PhoneEncrypted,
		&request.EmailHash, &request.PhoneHash, &request.ProjectType, &request.Description,
		&request.Status, &request.RiskScore, &request.IsDeleted, &request.CreatedAt, &request.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return ProjectRequest{}, fmt.Errorf("scan project request: %w", err)
	}
	return request, nil
}
