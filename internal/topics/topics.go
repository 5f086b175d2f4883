// Package topics groups the question corpus into community topics.
//
// Clustering is a single greedy pass over the corpus in insertion order: each
// unvisited question seeds a group and absorbs every later unvisited question
// that scores at or above the threshold against the seed. New topics whose
// titles overlap a recently announced topic are dropped before persisting.
package topics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/similarity"
	"github.com/vietgrow/askgate/internal/types"
)

// Defaults
const (
	DefaultThreshold      = 0.85
	DefaultDedupThreshold = 0.70
	DefaultLookback       = 50
	DefaultTopN           = 5

	// matchSignal is the score given when the cache's best match for a
	// question is the group seed
	matchSignal = 0.9

	titleLength = 60
	sampleCount = 3
)

// Store is the durable side of the clusterer
type Store interface {
	ListAnswers(ctx context.Context) ([]*types.AnswerRecord, error)
	AppendTopic(ctx context.Context, t *types.Topic) error
	RecentTopics(ctx context.Context, limit int) ([]*types.Topic, error)
	TopTopics(ctx context.Context, limit int) ([]*types.Topic, error)
}

// Matcher finds the closest known question
type Matcher interface {
	Lookup(ctx context.Context, question string) (types.CacheHit, bool)
}

// Options configures a Clusterer
type Options struct {
	// Store may be nil; the mirrors are used alone then
	Store Store

	// Matcher is optional
	Matcher Matcher

	// AnswerLog is the qa.jsonl mirror, read when the store fails
	AnswerLog *mirror.Log[types.AnswerRecord]

	// FeedbackLog supplies popularity weights for mirror reads (optional)
	FeedbackLog *mirror.Log[types.Feedback]

	// MirrorPath is topics.json
	MirrorPath string

	Threshold      float64
	DedupThreshold float64
	Lookback       int

	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Clusterer builds and lists topics
type Clusterer struct {
	store       Store
	matcher     Matcher
	answerLog   *mirror.Log[types.AnswerRecord]
	feedbackLog *mirror.Log[types.Feedback]
	path        string
	threshold   float64
	dedup       float64
	lookback    int
	now         func() time.Time
	log         *zap.Logger
	metrics     *metrics.Metrics
}

// New creates a Clusterer
func New(opts Options) (*Clusterer, error) {
	if opts.MirrorPath == "" {
		return nil, fmt.Errorf("mirror path is required")
	}
	if opts.Store == nil && opts.AnswerLog == nil {
		return nil, fmt.Errorf("a store or an answer log is required")
	}

	c := &Clusterer{
		store:       opts.Store,
		matcher:     opts.Matcher,
		answerLog:   opts.AnswerLog,
		feedbackLog: opts.FeedbackLog,
		path:        opts.MirrorPath,
		threshold:   opts.Threshold,
		dedup:       opts.DedupThreshold,
		lookback:    opts.Lookback,
		now:         opts.Clock,
		log:         logging.OrNop(opts.Logger).Named("topics"),
		metrics:     opts.Metrics,
	}
	if c.threshold == 0 {
		c.threshold = DefaultThreshold
	}
	if c.dedup == 0 {
		c.dedup = DefaultDedupThreshold
	}
	if c.lookback <= 0 {
		c.lookback = DefaultLookback
	}
	if c.threshold < 0 || c.threshold > 1 || c.dedup < 0 || c.dedup > 1 {
		return nil, fmt.Errorf("thresholds must be between 0.0 and 1.0")
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Run clusters the corpus and persists the topics that are not duplicates of
// recent ones. It returns the new topics.
func (c *Clusterer) Run(ctx context.Context) ([]types.Topic, error) {
	startTime := time.Now()

	var corpus []*types.AnswerRecord
	var recent []*types.Topic

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		corpus, err = c.loadCorpus(gctx)
		return err
	})
	g.Go(func() error {
		recent = c.loadRecent(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(corpus) == 0 {
		c.log.Info("no questions found, skipping topic build")
		return nil, nil
	}

	built := c.cluster(ctx, corpus)

	fresh := make([]types.Topic, 0, len(built))
	for _, t := range built {
		if c.isDuplicate(t, recent) {
			continue
		}
		fresh = append(fresh, t)
	}
	discarded := len(built) - len(fresh)

	c.save(ctx, fresh)

	if c.metrics != nil {
		c.metrics.TopicsCreated.Add(float64(len(fresh)))
		c.metrics.TopicsDiscarded.Add(float64(discarded))
	}
	c.log.Info("topic build complete",
		zap.Int("questions", len(corpus)),
		zap.Int("groups", len(built)),
		zap.Int("created", len(fresh)),
		zap.Int("discarded", discarded),
		zap.Duration("duration", time.Since(startTime)))
	return fresh, nil
}

// cluster is the greedy single-link pass
func (c *Clusterer) cluster(ctx context.Context, corpus []*types.AnswerRecord) []types.Topic {
	now := c.now().UTC()
	visited := make([]bool, len(corpus))
	matches := make(map[int]string)

	var out []types.Topic
	for i := range corpus {
		if visited[i] {
			continue
		}
		visited[i] = true
		group := []*types.AnswerRecord{corpus[i]}

		for j := i + 1; j < len(corpus); j++ {
			if visited[j] {
				continue
			}
			if c.score(ctx, corpus, i, j, matches) >= c.threshold {
				visited[j] = true
				group = append(group, corpus[j])
			}
		}

		out = append(out, newTopic(group, now))
	}
	return out
}

// score compares j against seed i. A cache match pointing at the seed wins;
// otherwise the token-overlap ratio is used with the seed as reference.
func (c *Clusterer) score(ctx context.Context, corpus []*types.AnswerRecord, i, j int, matches map[int]string) float64 {
	if c.matcher != nil {
		best, ok := matches[j]
		if !ok {
			if hit, found := c.matcher.Lookup(ctx, corpus[j].Question); found {
				best = hit.Question
			}
			matches[j] = best
		}
		if best != "" && best == similarity.Normalize(corpus[i].Question) {
			return matchSignal
		}
	}
	return similarity.OverlapRatio(corpus[i].Question, corpus[j].Question)
}

func newTopic(group []*types.AnswerRecord, now time.Time) types.Topic {
	popularity := 0
	samples := make([]string, 0, sampleCount)
	for _, rec := range group {
		popularity += rec.Weight()
		if len(samples) < sampleCount {
			samples = append(samples, rec.Question)
		}
	}

	title := []rune(group[0].Question)
	if len(title) > titleLength {
		title = title[:titleLength]
	}

	return types.Topic{
		ID:            uuid.NewString(),
		Title:         string(title),
		QuestionCount: len(group),
		Samples:       samples,
		Popularity:    popularity,
		CreatedAt:     now,
	}
}

// isDuplicate reports whether t's title overlaps any recent title enough
func (c *Clusterer) isDuplicate(t types.Topic, recent []*types.Topic) bool {
	title := similarity.Normalize(t.Title)
	for _, r := range recent {
		if similarity.OverlapRatio(title, similarity.Normalize(r.Title)) >= c.dedup {
			return true
		}
	}
	return false
}

// loadCorpus reads every answer from the store, falling back to the mirror
func (c *Clusterer) loadCorpus(ctx context.Context) ([]*types.AnswerRecord, error) {
	if c.store != nil {
		corpus, err := c.store.ListAnswers(ctx)
		if err == nil {
			return corpus, nil
		}
		if c.answerLog == nil {
			return nil, fmt.Errorf("failed to load questions: %w", err)
		}
		c.log.Warn("store unavailable, reading questions from mirror", zap.Error(err))
	}

	entries, skipped, err := c.answerLog.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read answer mirror: %w", err)
	}
	if skipped > 0 {
		c.log.Warn("skipped undecodable answer mirror lines", zap.Int("skipped", skipped))
	}

	counts := c.feedbackCounts()
	corpus := make([]*types.AnswerRecord, 0, len(entries))
	for i := range entries {
		rec := entries[i]
		if n := counts[rec.ID] + counts["q:"+similarity.Normalize(rec.Question)]; n > rec.FeedbackCount {
			rec.FeedbackCount = n
		}
		corpus = append(corpus, &rec)
	}
	return corpus, nil
}

// feedbackCounts indexes the feedback mirror by question id and by "q:"+question
func (c *Clusterer) feedbackCounts() map[string]int {
	counts := make(map[string]int)
	if c.feedbackLog == nil {
		return counts
	}
	entries, _, err := c.feedbackLog.ReadAll()
	if err != nil {
		c.log.Warn("failed to read feedback mirror, using unit weights", zap.Error(err))
		return counts
	}
	for _, fb := range entries {
		if fb.QuestionID != "" {
			counts[fb.QuestionID]++
		} else {
			counts["q:"+similarity.Normalize(fb.Question)]++
		}
	}
	return counts
}

// loadRecent returns the most recent topics. Any failure means no recent topics.
func (c *Clusterer) loadRecent(ctx context.Context) []*types.Topic {
	if c.store != nil {
		recent, err := c.store.RecentTopics(ctx, c.lookback)
		if err == nil {
			return recent
		}
		c.log.Warn("store unavailable, reading recent topics from mirror", zap.Error(err))
	}

	topics, err := c.readMirror()
	if err != nil {
		c.log.Warn("failed to read topics mirror, treating as empty", zap.Error(err))
		return nil
	}
	if len(topics) > c.lookback {
		topics = topics[:c.lookback]
	}
	return topics
}

func (c *Clusterer) readMirror() ([]*types.Topic, error) {
	var topics []*types.Topic
	if _, err := mirror.ReadJSON(c.path, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// save appends to the store and overwrites the mirror with this batch.
// Both are best-effort.
func (c *Clusterer) save(ctx context.Context, fresh []types.Topic) {
	if len(fresh) == 0 {
		return
	}

	if c.store != nil {
		failed := 0
		for i := range fresh {
			if err := c.store.AppendTopic(ctx, &fresh[i]); err != nil {
				failed++
				c.log.Error("failed to store topic",
					zap.String("title", fresh[i].Title),
					zap.Error(&types.PersistenceError{Op: "append topic", Err: err}))
			}
		}
		if failed == 0 {
			c.log.Debug("topics saved to store", zap.Int("count", len(fresh)))
		}
	}

	err := mirror.WriteJSON(c.path, fresh)
	if c.metrics != nil {
		c.metrics.MirrorWrites.WithLabelValues(mirror.TopicsFile, metrics.Result(err)).Inc()
	}
	if err != nil {
		c.log.Error("failed to write topics mirror",
			zap.Error(&types.PersistenceError{Op: "write topics mirror", Err: err}))
	}
}

// Top returns up to n topics by popularity, newest first among equals.
// The mirror is used when the store fails or has no topics.
func (c *Clusterer) Top(ctx context.Context, n int) ([]*types.Topic, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	if c.store != nil {
		top, err := c.store.TopTopics(ctx, n)
		if err == nil && len(top) > 0 {
			return top, nil
		}
		if err != nil {
			c.log.Warn("store unavailable, reading top topics from mirror", zap.Error(err))
		}
	}

	topics, err := c.readMirror()
	if err != nil && !errors.Is(err, mirror.ErrCorrupt) {
		return nil, fmt.Errorf("failed to read topics mirror: %w", err)
	}
	if err != nil {
		c.log.Warn("topics mirror is corrupt", zap.Error(err))
		return nil, nil
	}

	sort.SliceStable(topics, func(a, b int) bool {
		if topics[a].Popularity != topics[b].Popularity {
			return topics[a].Popularity > topics[b].Popularity
		}
		return topics[a].CreatedAt.After(topics[b].CreatedAt)
	})
	if len(topics) > n {
		topics = topics[:n]
	}
	return topics, nil
}
