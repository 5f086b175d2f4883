// Package feedback records ratings left against answers.
//
// Each entry goes to the local feedback log first and then to the store;
// either write may fail without failing the call.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/similarity"
	"github.com/vietgrow/askgate/internal/types"
)

// Store is the durable side of the service
type Store interface {
	AppendFeedback(ctx context.Context, fb *types.Feedback) error
}

// Service records feedback
type Service struct {
	store   Store
	fbLog   *mirror.Log[types.Feedback]
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service. store and fbLog may each be nil.
func NewService(store Store, fbLog *mirror.Log[types.Feedback], logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		fbLog:   fbLog,
		now:     time.Now,
		log:     logging.OrNop(logger).Named("feedback"),
		metrics: m,
	}
}

// Record validates and saves fb. Invalid input wraps types.ErrInvalidInput;
// storage failures are logged only.
func (s *Service) Record(ctx context.Context, fb types.Feedback) (*types.Feedback, error) {
	fb.Question = similarity.Normalize(fb.Question)
	fb.QuestionID = strings.TrimSpace(fb.QuestionID)
	fb.Note = strings.TrimSpace(fb.Note)
	if err := fb.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, types.ErrInvalidInput)
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now().UTC()
	}

	if s.fbLog != nil {
		err := s.fbLog.Append(fb)
		if s.metrics != nil {
			s.metrics.MirrorWrites.WithLabelValues(mirror.FeedbackFile, metrics.Result(err)).Inc()
		}
		if err != nil {
			s.log.Warn("failed to append feedback mirror",
				zap.Error(&types.PersistenceError{Op: "append feedback mirror", Err: err}))
		}
	}

	if s.store != nil {
		if err := s.store.AppendFeedback(ctx, &fb); err != nil {
			s.log.Error("failed to store feedback",
				zap.Error(&types.PersistenceError{Op: "append feedback", Err: err}))
		}
	}

	if s.metrics != nil {
		s.metrics.FeedbackRecorded.WithLabelValues(string(fb.Rating)).Inc()
	}
	s.log.Info("feedback recorded",
		zap.String("rating", string(fb.Rating)), zap.String("question_id", fb.QuestionID))
	return &fb, nil
}
