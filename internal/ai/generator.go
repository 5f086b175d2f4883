// Package ai talks to the answer and embedding providers.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
)

// DefaultModel is used when GeneratorConfig.Model is empty
const DefaultModel = "claude-3-5-haiku-20241022"

const (
	answerMaxTokens  = 1024
	summaryMaxTokens = 2048
)

// Generator produces answer text for a question
type Generator interface {
	Generate(ctx context.Context, question string) (string, error)
}

// Summarizer turns a prompt into free-form summary text
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// GeneratorConfig configures an AnthropicGenerator
type GeneratorConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for proxies and tests
	Retry   RetryConfig
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// AnthropicGenerator answers questions with the Anthropic Messages API
type AnthropicGenerator struct {
	client  anthropic.Client
	model   string
	guard   *guard
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewAnthropicGenerator creates a generator. Retries are handled by the
// generator's own guard, so the SDK retry loop is disabled.
func NewAnthropicGenerator(cfg GeneratorConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	log := logging.OrNop(cfg.Logger).Named("generator")
	return &AnthropicGenerator{
		client:  anthropic.NewClient(opts...),
		model:   model,
		guard:   newGuard(cfg.Retry, log),
		log:     log,
		metrics: cfg.Metrics,
	}, nil
}

// Generate returns the model's answer to question
func (g *AnthropicGenerator) Generate(ctx context.Context, question string) (string, error) {
	text, err := g.call(ctx, "generate", question, answerMaxTokens)
	if g.metrics != nil {
		g.metrics.GenerationRequests.WithLabelValues(metrics.Result(err)).Inc()
	}
	return text, err
}

// Summarize sends prompt as-is and returns the reply
func (g *AnthropicGenerator) Summarize(ctx context.Context, prompt string) (string, error) {
	return g.call(ctx, "summarize", prompt, summaryMaxTokens)
}

func (g *AnthropicGenerator) call(ctx context.Context, operation, prompt string, maxTokens int64) (string, error) {
	startTime := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var response *anthropic.Message
	err := g.guard.do(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := g.client.Messages.New(attemptCtx, params)
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	g.log.Debug("provider call complete",
		zap.String("operation", operation),
		zap.Int64("input_tokens", response.Usage.InputTokens),
		zap.Int64("output_tokens", response.Usage.OutputTokens),
		zap.Duration("duration", time.Since(startTime)))

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("anthropic API returned no text for %s", operation)
	}
	return out, nil
}
