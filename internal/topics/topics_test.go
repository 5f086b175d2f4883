package topics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/storage/sqlite"
	"github.com/vietgrow/askgate/internal/types"
)

const (
	riceHere  = "how do i grow rice in the wet season here"
	riceThere = "how do i grow rice in the wet season there" // 9 of 10 tokens shared
	mango     = "what is the best fertilizer for mango trees during flowering"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type fixture struct {
	dir         string
	store       *sqlite.SQLiteStorage
	answerLog   *mirror.Log[types.AnswerRecord]
	feedbackLog *mirror.Log[types.Feedback]
	metrics     *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "askgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &fixture{
		dir:         dir,
		store:       store,
		answerLog:   mirror.NewLog[types.AnswerRecord](filepath.Join(dir, mirror.AnswersFile)),
		feedbackLog: mirror.NewLog[types.Feedback](filepath.Join(dir, mirror.FeedbackFile)),
		metrics:     metrics.New(),
	}
}

func (f *fixture) mirrorPath() string {
	return filepath.Join(f.dir, mirror.TopicsFile)
}

func (f *fixture) clusterer(t *testing.T, store Store, mutate func(*Options)) *Clusterer {
	t.Helper()
	opts := Options{
		Store:       store,
		AnswerLog:   f.answerLog,
		FeedbackLog: f.feedbackLog,
		MirrorPath:  f.mirrorPath(),
		Clock:       func() time.Time { return fixedNow },
		Logger:      zaptest.NewLogger(t),
		Metrics:     f.metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

// ask records a question in both the store and the mirror
func (f *fixture) ask(t *testing.T, id, question string) {
	t.Helper()
	rec := &types.AnswerRecord{ID: id, Question: question, Answer: "a", CreatedAt: fixedNow}
	require.NoError(t, f.store.AppendAnswer(context.Background(), rec))
	require.NoError(t, f.answerLog.Append(*rec))
}

// failingStore fails every call
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) ListAnswers(context.Context) ([]*types.AnswerRecord, error) {
	return nil, errStoreDown
}
func (failingStore) AppendTopic(context.Context, *types.Topic) error { return errStoreDown }
func (failingStore) RecentTopics(context.Context, int) ([]*types.Topic, error) {
	return nil, errStoreDown
}
func (failingStore) TopTopics(context.Context, int) ([]*types.Topic, error) {
	return nil, errStoreDown
}

type fakeMatcher map[string]string

func (m fakeMatcher) Lookup(_ context.Context, question string) (types.CacheHit, bool) {
	match, ok := m[question]
	return types.CacheHit{Question: match, Score: 1}, ok
}

func TestRunGroupsOverlappingQuestions(t *testing.T) {
	f := newFixture(t)
	f.ask(t, "a1", riceHere)
	f.ask(t, "a2", riceThere)
	f.ask(t, "a3", mango)

	topics, err := f.clusterer(t, f.store, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 2)

	assert.Equal(t, riceHere, topics[0].Title)
	assert.Equal(t, 2, topics[0].QuestionCount)
	assert.Equal(t, []string{riceHere, riceThere}, topics[0].Samples)
	assert.Equal(t, 2, topics[0].Popularity)
	assert.Equal(t, fixedNow, topics[0].CreatedAt)
	assert.NotEmpty(t, topics[0].ID)

	assert.Equal(t, mango, topics[1].Title)
	assert.Equal(t, 1, topics[1].QuestionCount)

	stored, err := f.store.RecentTopics(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	var mirrored []types.Topic
	found, err := mirror.ReadJSON(f.mirrorPath(), &mirrored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, mirrored, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TopicsCreated))
}

func TestRunTwiceYieldsNothingNew(t *testing.T) {
	tests := []struct {
		name  string
		store func(f *fixture) Store
	}{
		{"with store", func(f *fixture) Store { return f.store }},
		{"mirror only", func(f *fixture) Store { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ask(t, "a1", riceHere)
			f.ask(t, "a2", riceThere)
			f.ask(t, "a3", mango)

			c := f.clusterer(t, tt.store(f), nil)
			first, err := c.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, first, 2)

			second, err := c.Run(context.Background())
			require.NoError(t, err)
			assert.Empty(t, second)
			assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TopicsDiscarded))

			// The mirror still holds the first batch
			var mirrored []types.Topic
			_, err = mirror.ReadJSON(f.mirrorPath(), &mirrored)
			require.NoError(t, err)
			assert.Len(t, mirrored, 2)
		})
	}
}

func TestRunEmptyCorpusWritesNothing(t *testing.T) {
	f := newFixture(t)
	topics, err := f.clusterer(t, f.store, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, topics)
	assert.NoFileExists(t, f.mirrorPath())
}

func TestRunFallsBackToMirrorWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	f.ask(t, "a1", riceHere)
	f.ask(t, "a2", riceThere)
	require.NoError(t, f.feedbackLog.Append(types.Feedback{ID: "f1", QuestionID: "a1", Rating: types.RatingHelpful}))
	require.NoError(t, f.feedbackLog.Append(types.Feedback{ID: "f2", QuestionID: "a1", Rating: types.RatingHelpful}))
	require.NoError(t, f.feedbackLog.Append(types.Feedback{ID: "f3", Question: "  " + strings.ToUpper(riceThere), Rating: types.RatingNotHelpful}))

	topics, err := f.clusterer(t, failingStore{}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 2, topics[0].QuestionCount)
	assert.Equal(t, 3, topics[0].Popularity, "weights come from the feedback mirror")

	// Store append failed, the mirror still got the batch
	var mirrored []types.Topic
	found, err := mirror.ReadJSON(f.mirrorPath(), &mirrored)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRunFailsWhenNoSourceIsReadable(t *testing.T) {
	f := newFixture(t)
	// A directory where the answer log should be
	require.NoError(t, os.MkdirAll(f.answerLog.Path(), 0755))

	_, err := f.clusterer(t, failingStore{}, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestRunPopularityUsesFeedbackCounts(t *testing.T) {
	f := newFixture(t)
	f.ask(t, "a1", riceHere)
	f.ask(t, "a2", riceThere)
	ctx := context.Background()
	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, f.store.AppendFeedback(ctx, &types.Feedback{
			ID: id, QuestionID: "a2", Rating: types.RatingHelpful, CreatedAt: fixedNow,
		}))
	}

	topics, err := f.clusterer(t, f.store, nil).Run(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 4, topics[0].Popularity, "1 for a1 plus 3 for a2")
}

func TestRunDedupAgainstRecentTopics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AppendTopic(ctx, &types.Topic{
		ID: "old", Title: "How do I grow RICE in the wet season", QuestionCount: 4, Samples: []string{}, CreatedAt: fixedNow.Add(-time.Hour),
	}))
	f.ask(t, "a1", riceHere)
	f.ask(t, "a2", mango)

	topics, err := f.clusterer(t, f.store, nil).Run(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1, "9 of 10 title tokens already announced")
	assert.Equal(t, mango, topics[0].Title)
}

func TestRunDedupThreshold(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		wantFresh int
	}{
		{"seven of ten tokens", "how do i grow rice in the", 0},
		{"six of ten tokens", "how do i grow rice in", 1},
		{"unrelated", "mango flowering", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.store.AppendTopic(context.Background(), &types.Topic{
				ID: "old", Title: tt.existing, QuestionCount: 1, Samples: []string{}, CreatedAt: fixedNow,
			}))
			f.ask(t, "a1", riceHere)

			topics, err := f.clusterer(t, f.store, nil).Run(context.Background())
			require.NoError(t, err)
			assert.Len(t, topics, tt.wantFresh)
		})
	}
}

func TestRunMatcherSignal(t *testing.T) {
	f := newFixture(t)
	f.ask(t, "a1", "rice seedlings turning yellow")
	f.ask(t, "a2", "why are my paddy leaves pale")

	matcher := fakeMatcher{"why are my paddy leaves pale": "rice seedlings turning yellow"}
	topics, err := f.clusterer(t, f.store, func(o *Options) { o.Matcher = matcher }).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 2, topics[0].QuestionCount)

	// Without the matcher the two share no tokens
	f2 := newFixture(t)
	f2.ask(t, "a1", "rice seedlings turning yellow")
	f2.ask(t, "a2", "why are my paddy leaves pale")
	topics, err = f2.clusterer(t, f2.store, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, topics, 2)
}

func TestRunGreedyOrderDependence(t *testing.T) {
	f := newFixture(t)
	// b is close to a; c is close to b but not to a. Single pass seeds on a only.
	f.ask(t, "a", "one two three four")
	f.ask(t, "b", "one two three four five six")
	f.ask(t, "c", "three four five six seven eight")

	topics, err := f.clusterer(t, f.store, func(o *Options) { o.DedupThreshold = 1 }).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, []string{"one two three four", "one two three four five six"}, topics[0].Samples)
	assert.Equal(t, 1, topics[1].QuestionCount)
}

func TestTopicShape(t *testing.T) {
	long := strings.Repeat("rice ", 20) // 100 characters
	group := []*types.AnswerRecord{
		{Question: long}, {Question: "b", FeedbackCount: 5}, {Question: "c"}, {Question: "d"},
	}
	topic := newTopic(group, fixedNow)

	assert.Len(t, []rune(topic.Title), titleLength)
	assert.Equal(t, 4, topic.QuestionCount)
	assert.Equal(t, []string{long, "b", "c"}, topic.Samples)
	assert.Equal(t, 8, topic.Popularity)
}

func TestTitleTruncatesRunes(t *testing.T) {
	q := strings.Repeat("lúa ", 20)
	topic := newTopic([]*types.AnswerRecord{{Question: q}}, fixedNow)
	assert.Equal(t, string([]rune(q)[:titleLength]), topic.Title)
}

func TestTop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, p := range []int{3, 9, 1, 9} {
		require.NoError(t, f.store.AppendTopic(ctx, &types.Topic{
			ID: string(rune('a' + i)), Title: "t", QuestionCount: 1, Samples: []string{},
			Popularity: p, CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	top, err := f.clusterer(t, f.store, nil).Top(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "d", top[0].ID, "newest wins a popularity tie")
	assert.Equal(t, "b", top[1].ID)
	assert.Equal(t, "a", top[2].ID)
}

func TestTopFallsBackToMirror(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, mirror.WriteJSON(f.mirrorPath(), []types.Topic{
		{ID: "x", Title: "x", Popularity: 1, CreatedAt: fixedNow},
		{ID: "y", Title: "y", Popularity: 5, CreatedAt: fixedNow},
	}))

	top, err := f.clusterer(t, failingStore{}, nil).Top(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "y", top[0].ID)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{MirrorPath: "t.json"})
	assert.Error(t, err)
	_, err = New(Options{MirrorPath: "t.json", Store: failingStore{}, Threshold: 2})
	assert.Error(t, err)
}
