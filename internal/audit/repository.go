package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append resolves the actor to an account row via a scalar subquery; an
// unknown or empty actor stores NULL rather than failing the write.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	var actor any
	if strings.TrimSpace(entry.Actor) != "" {
		actor = entry.Actor
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_trail
			(admin_user_id, actor_username, action, target_entity, target_id,
			 old_value, new_value, ip_address, user_agent, performed_at)
		VALUES
			((SELECT id FROM studio_admins WHERE username = $1), $1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, actor, string(entry.Action), entry.TargetEntity, entry.TargetID,
		entry.OldValue, entry.NewValue, entry.IP, entry.UserAgent, entry.PerformedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, COALESCE(actor_username, ''), action, target_entity, target_id,
		       old_value, new_value, ip_address, COALESCE(user_agent, ''), performed_at
		FROM audit_trail
	`)

	conditions := make([]string, 0, 5)
	args := make([]any, 0, 5)
	arg := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Actor != "" {
		conditions = append(conditions, "actor_username = "+arg(filter.Actor))
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = "+arg(string(filter.Action)))
	}
	if filter.TargetEntity != "" {
		conditions = append(conditions, "target_entity = "+arg(filter.TargetEntity))
	}
	if filter.TargetID != nil {
		conditions = append(conditions, "target_id = "+arg(*filter.TargetID))
	}
	if filter.From != nil {
		conditions = append(conditions, "performed_at >= "+arg(filter.From.UTC()))
	}
	if filter.To != nil {
		conditions = append(conditions, "performed_at <= "+arg(filter.To.UTC()))
	}

	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query.WriteString(" ORDER BY performed_at DESC, id DESC")
	query.WriteString(" LIMIT " + arg(limit) + " OFFSET " + arg(offset))

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var action string
		if err := rows.Scan(&entry.ID, &entry.Actor, &action, &entry.TargetEntity, &entry.TargetID,
			&entry.OldValue, &entry.NewValue, &entry.IP, &entry.UserAgent, &entry.PerformedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = Action(action)
		entry.PerformedAt = entry.PerformedAt.UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}
