// Package learning writes the periodic "what the system learned" digest from
// recent feedback and topics.
package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vietgrow/askgate/internal/ai"
	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/types"
)

// ErrNothingToLearn is returned by Run when there is no feedback and no topic
var ErrNothingToLearn = errors.New("no feedback or topics to learn from")

const (
	feedbackWindow = 100
	topicWindow    = 10

	// Only the newest entries are quoted in the prompt
	promptFeedback = 50

	fallbackSummary = "No summary could be produced this week."
)

// Store is the durable side of the service
type Store interface {
	RecentFeedback(ctx context.Context, limit int) ([]*types.Feedback, error)
	RecentTopics(ctx context.Context, limit int) ([]*types.Topic, error)
	AppendSummary(ctx context.Context, s *types.LearningSummary) error
	LatestSummary(ctx context.Context) (*types.LearningSummary, error)
}

// Service builds and serves learning summaries
type Service struct {
	store      Store
	summarizer ai.Summarizer
	sumLog     *mirror.Log[types.LearningSummary]
	now        func() time.Time
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// NewService creates a Service. summarizer may be nil when only Latest is used.
func NewService(store Store, summarizer ai.Summarizer, sumLog *mirror.Log[types.LearningSummary], logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:      store,
		summarizer: summarizer,
		sumLog:     sumLog,
		now:        time.Now,
		log:        logging.OrNop(logger).Named("learning"),
		metrics:    m,
	}
}

// Run summarizes recent feedback and topics and saves the summary
func (s *Service) Run(ctx context.Context) (*types.LearningSummary, error) {
	if s.summarizer == nil {
		return nil, fmt.Errorf("no summarizer configured")
	}

	var feedback []*types.Feedback
	var topics []*types.Topic

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		feedback, err = s.store.RecentFeedback(gctx, feedbackWindow)
		if err != nil {
			return fmt.Errorf("failed to load recent feedback: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		topics, err = s.store.RecentTopics(gctx, topicWindow)
		if err != nil {
			return fmt.Errorf("failed to load recent topics: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(feedback) == 0 && len(topics) == 0 {
		return nil, ErrNothingToLearn
	}

	summary, err := s.summarizer.Summarize(ctx, buildPrompt(feedback, topics))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = fallbackSummary
	}

	entry := &types.LearningSummary{
		ID:            uuid.NewString(),
		Summary:       summary,
		FeedbackCount: len(feedback),
		TopicCount:    len(topics),
		CreatedAt:     s.now().UTC(),
	}

	if err := s.store.AppendSummary(ctx, entry); err != nil {
		s.log.Warn("failed to store summary",
			zap.Error(&types.PersistenceError{Op: "append summary", Err: err}))
	}
	if s.sumLog != nil {
		err := s.sumLog.Append(*entry)
		if s.metrics != nil {
			s.metrics.MirrorWrites.WithLabelValues(mirror.SummariesFile, metrics.Result(err)).Inc()
		}
		if err != nil {
			s.log.Warn("failed to append summary mirror",
				zap.Error(&types.PersistenceError{Op: "append summary mirror", Err: err}))
		}
	}

	s.log.Info("learning summary written",
		zap.Int("feedback", entry.FeedbackCount), zap.Int("topics", entry.TopicCount))
	return entry, nil
}

// Latest returns the newest summary, or nil when none exists.
// The mirror is read when the store has nothing or fails.
func (s *Service) Latest(ctx context.Context) (*types.LearningSummary, error) {
	latest, err := s.store.LatestSummary(ctx)
	if err != nil {
		s.log.Warn("store unavailable, reading latest summary from mirror", zap.Error(err))
	}
	if latest != nil {
		return latest, nil
	}
	if s.sumLog == nil {
		return nil, nil
	}

	tail, mirrorErr := s.sumLog.Tail(1)
	if mirrorErr != nil {
		return nil, fmt.Errorf("failed to read summary mirror: %w", mirrorErr)
	}
	if len(tail) == 0 {
		return nil, nil
	}
	return &tail[0], nil
}

func buildPrompt(feedback []*types.Feedback, topics []*types.Topic) string {
	var b strings.Builder
	b.WriteString("You are the community learning digest of a question-answering service.\n")
	b.WriteString("Below are the user feedback and the topics from the past week.\n")
	b.WriteString("Write a short summary (5-10 lines) of what the system learned from the community this week, ")
	b.WriteString("and the trends, topics or improvements worth noting.\n\n")

	b.WriteString("=== USER FEEDBACK ===\n")
	for i, fb := range feedback {
		if i == promptFeedback {
			break
		}
		note := fb.Note
		if note == "" {
			note = "(no note)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", fb.Rating, note)
	}

	b.WriteString("\n=== TOP TOPICS ===\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "* %s (%d questions, interest %d)\n", t.Title, t.QuestionCount, t.Popularity)
	}

	b.WriteString("\nAnswer in a warm, natural tone.\n")
	return b.String()
}
