package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/admission"
	"github.com/vietgrow/askgate/internal/ai"
	"github.com/vietgrow/askgate/internal/cache"
	"github.com/vietgrow/askgate/internal/config"
	"github.com/vietgrow/askgate/internal/feedback"
	"github.com/vietgrow/askgate/internal/identity"
	"github.com/vietgrow/askgate/internal/learning"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/orchestrator"
	"github.com/vietgrow/askgate/internal/similarity"
	"github.com/vietgrow/askgate/internal/storage"
	"github.com/vietgrow/askgate/internal/topics"
	"github.com/vietgrow/askgate/internal/types"
)

// app holds every wired component for one process
type app struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   storage.Storage

	admission  *admission.Controller
	cache      *cache.Cache
	identities *identity.Resolver
	topics     *topics.Clusterer
	feedback   *feedback.Service
	learning   *learning.Service

	// nil without ANTHROPIC_API_KEY
	generator *ai.AnthropicGenerator
	answers   *orchestrator.Orchestrator

	redis *admission.RedisCounter
}

// newApp wires components from cfg. Provider clients are only built when
// their credentials are present; commands that need them check for nil.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     logger,
		metrics: metrics.New(),
	}

	store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.store = store

	path := func(name string) string { return filepath.Join(cfg.DataDir, name) }
	answerLog := mirror.NewLog[types.AnswerRecord](path(mirror.AnswersFile))
	feedbackLog := mirror.NewLog[types.Feedback](path(mirror.FeedbackFile))
	summaryLog := mirror.NewLog[types.LearningSummary](path(mirror.SummariesFile))

	admOpts := admission.Options{
		Quota:      cfg.Quota,
		MirrorPath: path(mirror.LimitsFile),
		Users:      store,
		Logger:     logger,
		Metrics:    a.metrics,
	}
	if cfg.RedisAddr != "" {
		counter, err := admission.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = counter
		admOpts.Shared = counter
	}
	if a.admission, err = admission.New(admOpts); err != nil {
		a.Close()
		return nil, err
	}

	a.cache, err = cache.New(cache.Options{
		Threshold:  cfg.CacheThreshold,
		MirrorPath: path(mirror.VectorsFile),
		Scorer:     similarity.TokenOverlap,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.identities = identity.NewResolver(store, logger)
	a.feedback = feedback.NewService(store, feedbackLog, logger, a.metrics)

	a.topics, err = topics.New(topics.Options{
		Store:          store,
		Matcher:        a.cache,
		AnswerLog:      answerLog,
		FeedbackLog:    feedbackLog,
		MirrorPath:     path(mirror.TopicsFile),
		Threshold:      cfg.ClusterThreshold,
		DedupThreshold: cfg.TopicDedupThreshold,
		Lookback:       cfg.TopicLookback,
		Logger:         logger,
		Metrics:        a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	retry := ai.DefaultRetryConfig()
	retry.Timeout = cfg.GenerationTimeout
	retry.RequestsPerSecond = cfg.RequestsPerSecond

	var summarizer ai.Summarizer
	if cfg.AnthropicAPIKey != "" {
		a.generator, err = ai.NewAnthropicGenerator(ai.GeneratorConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			Retry:   retry,
			Logger:  logger,
			Metrics: a.metrics,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		summarizer = a.generator
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, answering and learning are disabled")
	}
	a.learning = learning.NewService(store, summarizer, summaryLog, logger, a.metrics)

	if a.generator != nil {
		orchOpts := orchestrator.Options{
			Cache:             a.cache,
			Generator:         a.generator,
			Store:             store,
			Log:               answerLog,
			SimilarityMode:    cfg.SimilarityMode,
			GenerationTimeout: cfg.GenerationTimeout,
			EmbeddingTimeout:  cfg.EmbeddingTimeout,
			FallbackAnswer:    cfg.FallbackAnswer,
			Logger:            logger,
			Metrics:           a.metrics,
		}

		if cfg.OpenAIAPIKey != "" || cfg.EmbeddingBaseURL != "" {
			embedRetry := retry
			embedRetry.Timeout = cfg.EmbeddingTimeout
			embedder, err := ai.NewOpenAIEmbedder(ai.EmbedderConfig{
				APIKey:  cfg.OpenAIAPIKey,
				Model:   cfg.EmbeddingModel,
				BaseURL: cfg.EmbeddingBaseURL,
				Timeout: cfg.EmbeddingTimeout,
				Retry:   embedRetry,
				Logger:  logger,
				Metrics: a.metrics,
			})
			if err != nil {
				a.Close()
				return nil, err
			}
			orchOpts.Embedder = embedder
		} else {
			logger.Info("no embedding provider configured, answers will not be cached")
		}

		if a.answers, err = orchestrator.New(orchOpts); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// requireAnswers fails when no generation provider is configured
func (a *app) requireAnswers() error {
	if a.answers == nil {
		return fmt.Errorf("ANTHROPIC_API_KEY is required for this command")
	}
	return nil
}

// lockDataDir takes the data directory lock for the calling command. The
// returned release flushes the quota table before unlocking, so the next
// holder loads this process's counts.
func (a *app) lockDataDir(holder string) (release func(), err error) {
	lockPath, err := storage.AcquireExclusiveLock(a.cfg.DataDir, holder, version)
	if err != nil {
		return nil, err
	}
	return func() {
		a.flush()
		if err := storage.ReleaseExclusiveLock(lockPath); err != nil {
			a.log.Warn("failed to release data directory lock", zap.Error(err))
		}
	}, nil
}

func (a *app) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := a.admission.Flush(ctx); err != nil {
		a.log.Warn("failed to flush quota table", zap.Error(err))
	}
}

// Close flushes the quota table and releases connections
func (a *app) Close() {
	if a.admission != nil {
		a.flush()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close database", zap.Error(err))
		}
	}
}
