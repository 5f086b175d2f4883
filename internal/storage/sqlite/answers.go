package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vietgrow/askgate/internal/types"
)

// feedbackCountExpr counts feedback rows that reference an answer by id, or by
// question text when the feedback carries no id.
const feedbackCountExpr = `(
	SELECT COUNT(*) FROM feedback f
	WHERE f.question_id = a.id
	   OR (f.question_id = '' AND f.question = a.question)
)`

// AppendAnswer stores an answer record
func (s *SQLiteStorage) AppendAnswer(ctx context.Context, rec *types.AnswerRecord) error {
	embedding := ""
	if len(rec.Embedding) > 0 {
		data, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embedding = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (id, question, answer, embedding, ip, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Question, rec.Answer, embedding, rec.IP, rec.UserID, toNanos(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append answer: %w", err)
	}
	return nil
}

// ListAnswers returns every answer in insertion order with feedback counts
func (s *SQLiteStorage) ListAnswers(ctx context.Context) ([]*types.AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.question, a.answer, a.embedding, a.ip, a.user_id, a.created_at,
		       `+feedbackCountExpr+`
		FROM answers a
		ORDER BY a.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()
	return scanAnswers(rows)
}

// RecentAnswers returns up to limit answers, newest first
func (s *SQLiteStorage) RecentAnswers(ctx context.Context, limit int) ([]*types.AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.question, a.answer, a.embedding, a.ip, a.user_id, a.created_at,
		       `+feedbackCountExpr+`
		FROM answers a
		ORDER BY a.seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent answers: %w", err)
	}
	defer rows.Close()
	return scanAnswers(rows)
}

// FindAnswer returns the newest answer to exactly this question, or (nil, nil)
func (s *SQLiteStorage) FindAnswer(ctx context.Context, question string) (*types.AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.question, a.answer, a.embedding, a.ip, a.user_id, a.created_at,
		       `+feedbackCountExpr+`
		FROM answers a
		WHERE a.question = ?
		ORDER BY a.seq DESC
		LIMIT 1
	`, question)
	if err != nil {
		return nil, fmt.Errorf("failed to find answer: %w", err)
	}
	defer rows.Close()

	recs, err := scanAnswers(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func scanAnswers(rows *sql.Rows) ([]*types.AnswerRecord, error) {
	var out []*types.AnswerRecord
	for rows.Next() {
		var (
			rec       types.AnswerRecord
			embedding string
			created   int64
		)
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, &embedding,
			&rec.IP, &rec.UserID, &created, &rec.FeedbackCount); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if embedding != "" {
			if err := json.Unmarshal([]byte(embedding), &rec.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for %s: %w", rec.ID, err)
			}
		}
		rec.CreatedAt = fromNanos(created)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}
	return out, nil
}
