// Package orchestrator runs the answer pipeline for a single question.
//
// A question is normalized, checked against the similarity cache and, on a
// miss, sent to the generator and the embedder at the same time. Whatever
// comes back is persisted and cached in parallel. Provider and persistence
// failures degrade the answer; they never fail the request.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/ai"
	"github.com/vietgrow/askgate/internal/config"
	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/similarity"
	"github.com/vietgrow/askgate/internal/types"
)

// Default per-branch timeouts
const (
	DefaultGenerationTimeout = 60 * time.Second
	DefaultEmbeddingTimeout  = 30 * time.Second
)

// Cache is the part of the similarity cache the pipeline needs
type Cache interface {
	Lookup(ctx context.Context, question string) (types.CacheHit, bool)
	LookupVector(ctx context.Context, vector []float64) (types.CacheHit, bool)
	Store(ctx context.Context, question string, vector []float64, answer string)
}

// AnswerStore receives every generated answer
type AnswerStore interface {
	AppendAnswer(ctx context.Context, rec *types.AnswerRecord) error
}

// Options configures an Orchestrator
type Options struct {
	Cache     Cache
	Generator ai.Generator

	// Embedder may be nil; answers are then never cached
	Embedder ai.Embedder

	// Store and Log receive answer records; either may be nil
	Store AnswerStore
	Log   *mirror.Log[types.AnswerRecord]

	// SimilarityMode is config.SimilarityToken (default) or config.SimilarityCosine
	SimilarityMode string

	GenerationTimeout time.Duration
	EmbeddingTimeout  time.Duration

	// FallbackAnswer replaces a failed generation
	FallbackAnswer string

	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Orchestrator answers questions
type Orchestrator struct {
	cache     Cache
	generator ai.Generator
	embedder  ai.Embedder
	store     AnswerStore
	qaLog     *mirror.Log[types.AnswerRecord]
	cosine    bool
	genTO     time.Duration
	embedTO   time.Duration
	fallback  string
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// New creates an Orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	switch opts.SimilarityMode {
	case "", config.SimilarityToken, config.SimilarityCosine:
	default:
		return nil, fmt.Errorf("unknown similarity mode %q", opts.SimilarityMode)
	}

	o := &Orchestrator{
		cache:     opts.Cache,
		generator: opts.Generator,
		embedder:  opts.Embedder,
		store:     opts.Store,
		qaLog:     opts.Log,
		cosine:    opts.SimilarityMode == config.SimilarityCosine,
		genTO:     opts.GenerationTimeout,
		embedTO:   opts.EmbeddingTimeout,
		fallback:  opts.FallbackAnswer,
		now:       opts.Clock,
		log:       logging.OrNop(opts.Logger).Named("orchestrator"),
		metrics:   opts.Metrics,
	}
	if o.genTO <= 0 {
		o.genTO = DefaultGenerationTimeout
	}
	if o.embedTO <= 0 {
		o.embedTO = DefaultEmbeddingTimeout
	}
	if o.fallback == "" {
		o.fallback = config.Default().FallbackAnswer
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Answer returns an answer for question on behalf of id.
// Blank input fails with types.ErrInvalidInput; nothing else fails the call.
// Admission is the caller's job.
func (o *Orchestrator) Answer(ctx context.Context, question string, id types.Identity) (*types.AnswerResult, error) {
	normalized := similarity.Normalize(question)
	if normalized == "" {
		return nil, fmt.Errorf("question is empty: %w", types.ErrInvalidInput)
	}
	startTime := time.Now()

	// In cosine mode the vector drives the lookup and is reused on a miss
	var vector []float64
	vectorDone := false
	var hit types.CacheHit
	var ok bool
	if o.cosine {
		vector = o.embed(ctx, normalized)
		vectorDone = true
		hit, ok = o.cache.LookupVector(ctx, vector)
	} else {
		hit, ok = o.cache.Lookup(ctx, normalized)
	}

	if ok {
		o.log.Info("answered from cache",
			zap.String("matched", hit.Question), zap.Float64("score", hit.Score))
		o.observe(types.SourceCache, startTime)
		return &types.AnswerResult{
			Answer:          hit.Answer,
			Source:          types.SourceCache,
			MatchedQuestion: hit.Question,
			Score:           hit.Score,
		}, nil
	}

	answer, vector, generated := o.generate(ctx, normalized, vector, vectorDone)

	rec := &types.AnswerRecord{
		ID:        uuid.NewString(),
		Question:  normalized,
		Answer:    answer,
		Embedding: vector,
		IP:        id.IP,
		UserID:    id.UserID(),
		CreatedAt: o.now().UTC(),
	}
	// A fallback keeps its vector but caches no answer, so the next similar
	// question regenerates instead of serving the placeholder
	cached := answer
	if !generated {
		cached = ""
	}
	o.persist(ctx, rec, cached)

	o.observe(types.SourceGenerated, startTime)
	return &types.AnswerResult{Answer: answer, Source: types.SourceGenerated}, nil
}

// generate runs generation and, unless a vector is already known, embedding
// concurrently. Both branches always settle. generated is false when the
// fallback answer was substituted.
func (o *Orchestrator) generate(ctx context.Context, question string, vector []float64, vectorDone bool) (answer string, _ []float64, generated bool) {
	var (
		wg     sync.WaitGroup
		genErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		genCtx, cancel := context.WithTimeout(ctx, o.genTO)
		defer cancel()
		answer, genErr = o.generator.Generate(genCtx, question)
	}()

	if !vectorDone {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vector = o.embed(ctx, question)
		}()
	}

	wg.Wait()

	if genErr != nil || answer == "" {
		if genErr == nil {
			genErr = fmt.Errorf("empty answer")
		}
		o.log.Error("generation failed, using fallback answer",
			zap.Error(&types.GenerationError{Question: question, Err: genErr}))
		return o.fallback, vector, false
	}
	return answer, vector, true
}

// embed returns nil on any failure
func (o *Orchestrator) embed(ctx context.Context, text string) []float64 {
	if o.embedder == nil {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, o.embedTO)
	defer cancel()

	vector, err := o.embedder.Embed(embedCtx, text)
	if err != nil {
		o.log.Warn("embedding failed, answer will not be cached", zap.Error(err))
		return nil
	}
	return vector
}

// persist writes the record and caches cachedAnswer under its vector
// concurrently. Each side effect is isolated; failures are logged and dropped.
func (o *Orchestrator) persist(ctx context.Context, rec *types.AnswerRecord, cachedAnswer string) {
	// Side effects outlive a caller that has gone away
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	if o.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.store.AppendAnswer(ctx, rec); err != nil {
				o.log.Error("failed to store answer",
					zap.Error(&types.PersistenceError{Op: "append answer", Err: err}))
			}
		}()
	}
	if o.qaLog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := o.qaLog.Append(*rec)
			if o.metrics != nil {
				o.metrics.MirrorWrites.WithLabelValues(mirror.AnswersFile, metrics.Result(err)).Inc()
			}
			if err != nil {
				o.log.Error("failed to append answer mirror",
					zap.Error(&types.PersistenceError{Op: "append answer mirror", Err: err}))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.cache.Store(ctx, rec.Question, rec.Embedding, cachedAnswer)
	}()
	wg.Wait()
}

func (o *Orchestrator) observe(source types.AnswerSource, start time.Time) {
	if o.metrics != nil {
		o.metrics.AnswerDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}
}
