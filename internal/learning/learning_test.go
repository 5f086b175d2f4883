package learning

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/storage/sqlite"
	"github.com/vietgrow/askgate/internal/types"
)

type fakeSummarizer struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

// outageStore wraps a real store and fails selected reads
type outageStore struct {
	*sqlite.SQLiteStorage
	failLatest bool
	failTopics bool
}

func (s *outageStore) LatestSummary(ctx context.Context) (*types.LearningSummary, error) {
	if s.failLatest {
		return nil, errors.New("store down")
	}
	return s.SQLiteStorage.LatestSummary(ctx)
}

func (s *outageStore) RecentTopics(ctx context.Context, limit int) ([]*types.Topic, error) {
	if s.failTopics {
		return nil, errors.New("store down")
	}
	return s.SQLiteStorage.RecentTopics(ctx, limit)
}

func setup(t *testing.T) (*outageStore, *mirror.Log[types.LearningSummary]) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.New(filepath.Join(dir, "askgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &outageStore{SQLiteStorage: db}, mirror.NewLog[types.LearningSummary](filepath.Join(dir, mirror.SummariesFile))
}

func TestRunNothingToLearn(t *testing.T) {
	store, sumLog := setup(t)
	sum := &fakeSummarizer{reply: "x"}
	svc := NewService(store, sum, sumLog, zaptest.NewLogger(t), nil)

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrNothingToLearn)
	assert.Empty(t, sum.prompt, "the summarizer is not called")
}

func TestRunWritesSummary(t *testing.T) {
	store, sumLog := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendFeedback(ctx, &types.Feedback{
		ID: "f1", QuestionID: "a1", Rating: types.RatingHelpful, Note: "clear steps", CreatedAt: now,
	}))
	require.NoError(t, store.AppendFeedback(ctx, &types.Feedback{
		ID: "f2", QuestionID: "a2", Rating: types.RatingNotHelpful, CreatedAt: now.Add(time.Second),
	}))
	require.NoError(t, store.AppendTopic(ctx, &types.Topic{
		ID: "t1", Title: "how to grow rice", QuestionCount: 4, Samples: []string{}, Popularity: 7, CreatedAt: now,
	}))

	sum := &fakeSummarizer{reply: "  Farmers asked about rice.  "}
	svc := NewService(store, sum, sumLog, zaptest.NewLogger(t), nil)
	svc.now = func() time.Time { return now }

	entry, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Farmers asked about rice.", entry.Summary)
	assert.Equal(t, 2, entry.FeedbackCount)
	assert.Equal(t, 1, entry.TopicCount)
	assert.Equal(t, now, entry.CreatedAt)

	assert.Contains(t, sum.prompt, "- helpful: clear steps")
	assert.Contains(t, sum.prompt, "- not_helpful: (no note)")
	assert.Contains(t, sum.prompt, "* how to grow rice (4 questions, interest 7)")

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, entry.ID, latest.ID)

	logged, _, err := sumLog.ReadAll()
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}

func TestRunEmptyReplyUsesFallback(t *testing.T) {
	store, sumLog := setup(t)
	require.NoError(t, store.AppendFeedback(context.Background(), &types.Feedback{
		ID: "f1", QuestionID: "a1", Rating: types.RatingHelpful, CreatedAt: time.Now(),
	}))

	svc := NewService(store, &fakeSummarizer{reply: "  "}, sumLog, zaptest.NewLogger(t), nil)
	entry, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fallbackSummary, entry.Summary)
}

func TestRunErrors(t *testing.T) {
	store, sumLog := setup(t)
	require.NoError(t, store.AppendFeedback(context.Background(), &types.Feedback{
		ID: "f1", QuestionID: "a1", Rating: types.RatingHelpful, CreatedAt: time.Now(),
	}))

	svc := NewService(store, &fakeSummarizer{err: errors.New("503")}, sumLog, zaptest.NewLogger(t), nil)
	_, err := svc.Run(context.Background())
	assert.Error(t, err)

	store.failTopics = true
	svc = NewService(store, &fakeSummarizer{reply: "x"}, sumLog, zaptest.NewLogger(t), nil)
	_, err = svc.Run(context.Background())
	assert.Error(t, err)

	svc = NewService(store, nil, sumLog, zaptest.NewLogger(t), nil)
	_, err = svc.Run(context.Background())
	assert.Error(t, err)
}

func TestLatestFallsBackToMirror(t *testing.T) {
	store, sumLog := setup(t)
	svc := NewService(store, nil, sumLog, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, sumLog.Append(types.LearningSummary{ID: "s1", Summary: "old"}))
	require.NoError(t, sumLog.Append(types.LearningSummary{ID: "s2", Summary: "new"}))

	store.failLatest = true
	latest, err = svc.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.Summary)
}

func TestPromptQuotesNewestFeedbackOnly(t *testing.T) {
	var feedback []*types.Feedback
	for i := 0; i < 80; i++ {
		feedback = append(feedback, &types.Feedback{Rating: types.RatingHelpful, Note: fmt.Sprintf("note-%d", i)})
	}
	prompt := buildPrompt(feedback, nil)
	assert.Equal(t, promptFeedback, strings.Count(prompt, "- helpful: "))
	assert.Contains(t, prompt, "note-0\n")
	assert.NotContains(t, prompt, "note-50\n")
}
