package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietgrow/askgate/internal/types"
)

// GetUser returns the user with the given id, or (nil, nil) when not found
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*types.UserProfile, error) {
	var u types.UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, quota_used, last_reset_date
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.QuotaUsed, &u.LastResetDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpsertUser creates or replaces a user profile
func (s *SQLiteStorage) UpsertUser(ctx context.Context, u *types.UserProfile) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, quota_used, last_reset_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			quota_used = excluded.quota_used,
			last_reset_date = excluded.last_reset_date,
			updated_at = excluded.updated_at
	`, u.ID, u.Email, u.QuotaUsed, u.LastResetDate, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpdateUserQuota records a user's quota usage for a date.
// Unknown users are created so the quota is never lost.
func (s *SQLiteStorage) UpdateUserQuota(ctx context.Context, id string, used int, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, quota_used, last_reset_date, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			quota_used = excluded.quota_used,
			last_reset_date = excluded.last_reset_date,
			updated_at = excluded.updated_at
	`, id, used, date, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to update user quota: %w", err)
	}
	return nil
}
