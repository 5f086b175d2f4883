package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vietgrow/askgate/internal/types"
)

// AppendTopic stores a topic
func (s *SQLiteStorage) AppendTopic(ctx context.Context, t *types.Topic) error {
	samples, err := json.Marshal(t.Samples)
	if err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO topics (id, title, question_count, samples, popularity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.QuestionCount, string(samples), t.Popularity, toNanos(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append topic: %w", err)
	}
	return nil
}

// RecentTopics returns up to limit topics, newest first
func (s *SQLiteStorage) RecentTopics(ctx context.Context, limit int) ([]*types.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, question_count, samples, popularity, created_at
		FROM topics
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent topics: %w", err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

// TopTopics returns up to limit topics by popularity, newest first among equals
func (s *SQLiteStorage) TopTopics(ctx context.Context, limit int) ([]*types.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, question_count, samples, popularity, created_at
		FROM topics
		ORDER BY popularity DESC, created_at DESC, seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top topics: %w", err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

func scanTopics(rows *sql.Rows) ([]*types.Topic, error) {
	var out []*types.Topic
	for rows.Next() {
		var (
			t       types.Topic
			samples string
			created int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.QuestionCount, &samples, &t.Popularity, &created); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		if err := json.Unmarshal([]byte(samples), &t.Samples); err != nil {
			return nil, fmt.Errorf("failed to decode samples for %s: %w", t.ID, err)
		}
		t.CreatedAt = fromNanos(created)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return out, nil
}
