package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
)

// DefaultEmbeddingModel is used when EmbedderConfig.Model is empty
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbedderConfig configures an OpenAIEmbedder
type EmbedderConfig struct {
	APIKey string
	Model  string

	// BaseURL points at any OpenAI-compatible server. Empty means OpenAI.
	BaseURL string

	// Timeout bounds each HTTP request (default: 30s)
	Timeout time.Duration

	Retry   RetryConfig
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// OpenAIEmbedder computes embeddings through the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	guard   *guard
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewOpenAIEmbedder creates an embedder
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		apiKey = "dummy-key" // Local services don't need real key
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	config := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{
		Timeout: timeout,
	}

	log := logging.OrNop(cfg.Logger).Named("embedder")
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		guard:   newGuard(cfg.Retry, log),
		log:     log,
		metrics: cfg.Metrics,
	}, nil
}

// Embed returns the embedding of text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vector, err := e.embed(ctx, text)
	if e.metrics != nil {
		e.metrics.EmbeddingRequests.WithLabelValues(metrics.Result(err)).Inc()
	}
	return vector, err
}

func (e *OpenAIEmbedder) embed(ctx context.Context, text string) ([]float64, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}

	var resp openai.EmbeddingResponse
	err := e.guard.do(ctx, "embed", func(attemptCtx context.Context) error {
		r, apiErr := e.client.CreateEmbeddings(attemptCtx, req)
		if apiErr != nil {
			return apiErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API call failed: %w", err)
	}

	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("API returned %d embeddings for 1 text", len(resp.Data))
	}
	raw := resp.Data[0].Embedding
	if len(raw) == 0 {
		return nil, fmt.Errorf("API returned an empty embedding")
	}

	vector := make([]float64, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}
	e.log.Debug("embedding computed", zap.Int("dimensions", len(vector)))
	return vector, nil
}
