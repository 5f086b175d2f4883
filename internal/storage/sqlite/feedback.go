package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vietgrow/askgate/internal/types"
)

// AppendFeedback stores a feedback entry
func (s *SQLiteStorage) AppendFeedback(ctx context.Context, fb *types.Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, question_id, question, rating, note, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fb.ID, fb.QuestionID, fb.Question, string(fb.Rating), fb.Note, fb.IP, toNanos(fb.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// RecentFeedback returns up to limit feedback entries, newest first
func (s *SQLiteStorage) RecentFeedback(ctx context.Context, limit int) ([]*types.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_id, question, rating, note, ip, created_at
		FROM feedback
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent feedback: %w", err)
	}
	defer rows.Close()

	var out []*types.Feedback
	for rows.Next() {
		var (
			fb      types.Feedback
			rating  string
			created int64
		)
		if err := rows.Scan(&fb.ID, &fb.QuestionID, &fb.Question, &rating, &fb.Note, &fb.IP, &created); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		fb.Rating = types.Rating(rating)
		fb.CreatedAt = fromNanos(created)
		out = append(out, &fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}
	return out, nil
}

// AppendSummary stores a learning summary
func (s *SQLiteStorage) AppendSummary(ctx context.Context, sum *types.LearningSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_summaries (id, summary, feedback_count, topic_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sum.ID, sum.Summary, sum.FeedbackCount, sum.TopicCount, toNanos(sum.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append summary: %w", err)
	}
	return nil
}

// LatestSummary returns the newest learning summary, or (nil, nil) if none exist
func (s *SQLiteStorage) LatestSummary(ctx context.Context) (*types.LearningSummary, error) {
	var (
		sum     types.LearningSummary
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, summary, feedback_count, topic_count, created_at
		FROM learning_summaries
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`).Scan(&sum.ID, &sum.Summary, &sum.FeedbackCount, &sum.TopicCount, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}
	sum.CreatedAt = fromNanos(created)
	return &sum, nil
}
