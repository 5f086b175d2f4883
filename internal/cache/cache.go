// Package cache short-circuits repeat questions.
//
// Entries are keyed by normalized question text and kept in insertion order;
// lookups score every key and the first best score wins. The whole table is
// mirrored to a JSON file on every store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/similarity"
	"github.com/vietgrow/askgate/internal/types"
)

// DefaultThreshold is the minimum score for a hit
const DefaultThreshold = 0.85

// Options configures a Cache
type Options struct {
	// Threshold defaults to DefaultThreshold
	Threshold float64

	// MirrorPath is the JSON file backing the cache (usually <data>/vectors.json)
	MirrorPath string

	// Scorer defaults to similarity.TokenOverlap. It is called as
	// Score(storedKey, normalizedQuery).
	Scorer similarity.Scorer

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// mirrorEntry is the on-disk form; a list keeps insertion order
type mirrorEntry struct {
	Question string    `json:"question"`
	Vector   []float64 `json:"vector"`
	Answer   string    `json:"answer"`
}

// Cache is the similarity cache
type Cache struct {
	threshold float64
	path      string
	scorer    similarity.Scorer
	log       *zap.Logger
	metrics   *metrics.Metrics

	loadOnce sync.Once

	mu      sync.RWMutex
	keys    []string
	entries map[string]types.CacheEntry

	writeMu sync.Mutex
}

// New creates a Cache. The mirror is read lazily on first use.
func New(opts Options) (*Cache, error) {
	if opts.MirrorPath == "" {
		return nil, fmt.Errorf("mirror path is required")
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0.0 and 1.0 (got %.2f)", threshold)
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = similarity.TokenOverlap
	}

	return &Cache{
		threshold: threshold,
		path:      opts.MirrorPath,
		scorer:    scorer,
		log:       logging.OrNop(opts.Logger).Named("cache"),
		metrics:   opts.Metrics,
		entries:   make(map[string]types.CacheEntry),
	}, nil
}

// Threshold returns the hit threshold
func (c *Cache) Threshold() float64 {
	return c.threshold
}

// Lookup finds the stored question most similar to question, ignoring
// entries without an answer. It reports a hit only when the best score
// reaches the threshold.
func (c *Cache) Lookup(ctx context.Context, question string) (types.CacheHit, bool) {
	c.ensureLoaded()
	query := similarity.Normalize(question)

	c.mu.RLock()
	bestKey, bestScore := "", -1.0
	for _, key := range c.keys {
		if c.entries[key].Answer == "" {
			continue
		}
		// Strict comparison: ties keep the earliest key
		if score := c.scorer.Score(key, query); score > bestScore {
			bestKey, bestScore = key, score
		}
	}
	var entry types.CacheEntry
	if bestKey != "" {
		entry = c.entries[bestKey]
	}
	c.mu.RUnlock()

	return c.result(bestKey, bestScore, entry)
}

// LookupVector is Lookup by cosine similarity against stored vectors
func (c *Cache) LookupVector(ctx context.Context, vector []float64) (types.CacheHit, bool) {
	c.ensureLoaded()
	if len(vector) == 0 {
		return c.result("", -1, types.CacheEntry{})
	}

	c.mu.RLock()
	bestKey, bestScore := "", -1.0
	for _, key := range c.keys {
		if c.entries[key].Answer == "" {
			continue
		}
		if score := similarity.Cosine(c.entries[key].Vector, vector); score > bestScore {
			bestKey, bestScore = key, score
		}
	}
	var entry types.CacheEntry
	if bestKey != "" {
		entry = c.entries[bestKey]
	}
	c.mu.RUnlock()

	return c.result(bestKey, bestScore, entry)
}

func (c *Cache) result(key string, score float64, entry types.CacheEntry) (types.CacheHit, bool) {
	if key == "" || score < c.threshold {
		if c.metrics != nil {
			c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		c.log.Debug("cache miss", zap.Float64("best_score", score))
		return types.CacheHit{}, false
	}

	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
	}
	c.log.Debug("cache hit", zap.String("matched", key), zap.Float64("score", score))
	return types.CacheHit{Question: key, Score: score, Answer: entry.Answer}, true
}

// Store records the answer and vector for question and rewrites the mirror.
// A missing vector makes Store a no-op. An entry with an empty answer keeps
// its vector but never matches a lookup. Mirror failures are logged only.
func (c *Cache) Store(ctx context.Context, question string, vector []float64, answer string) {
	if len(vector) == 0 {
		c.log.Warn("no embedding for question, skipping cache store",
			zap.String("question", truncate(question, 40)))
		return
	}
	c.ensureLoaded()
	key := similarity.Normalize(question)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.entries[key] = types.CacheEntry{Vector: vector, Answer: answer}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(len(snapshot)))
	}

	err := mirror.WriteJSON(c.path, snapshot)
	if c.metrics != nil {
		c.metrics.MirrorWrites.WithLabelValues(mirror.VectorsFile, metrics.Result(err)).Inc()
	}
	if err != nil {
		c.log.Error("failed to write cache mirror",
			zap.Error(&types.PersistenceError{Op: "write cache mirror", Err: err}))
	}
}

// Len returns the number of cached questions
func (c *Cache) Len() int {
	c.ensureLoaded()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *Cache) snapshotLocked() []mirrorEntry {
	out := make([]mirrorEntry, 0, len(c.keys))
	for _, key := range c.keys {
		e := c.entries[key]
		out = append(out, mirrorEntry{Question: key, Vector: e.Vector, Answer: e.Answer})
	}
	return out
}

// ensureLoaded reads the mirror once; a missing or unreadable file is an empty cache
func (c *Cache) ensureLoaded() {
	c.loadOnce.Do(func() {
		var loaded []mirrorEntry
		found, err := mirror.ReadJSON(c.path, &loaded)
		switch {
		case err != nil && errors.Is(err, mirror.ErrCorrupt):
			c.log.Error("cache mirror is corrupt, starting empty", zap.String("path", c.path), zap.Error(err))
			loaded = nil
		case err != nil:
			c.log.Error("failed to load cache mirror, starting empty", zap.String("path", c.path), zap.Error(err))
			loaded = nil
		case !found:
			c.log.Info("no cache mirror yet, starting empty", zap.String("path", c.path))
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, e := range loaded {
			key := similarity.Normalize(e.Question)
			if key == "" {
				continue
			}
			if _, exists := c.entries[key]; !exists {
				c.keys = append(c.keys, key)
			}
			c.entries[key] = types.CacheEntry{Vector: e.Vector, Answer: e.Answer}
		}
		if c.metrics != nil {
			c.metrics.CacheEntries.Set(float64(len(c.keys)))
		}
		if len(c.keys) > 0 {
			c.log.Info("cache loaded", zap.Int("entries", len(c.keys)))
		}
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
