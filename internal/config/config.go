package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Similarity modes for the answer cache
const (
	SimilarityToken  = "token"
	SimilarityCosine = "cosine"
)

// Config is the full askgate configuration
type Config struct {
	Quota QuotaConfig `yaml:"quota"`

	// CacheThreshold is the minimum similarity (0.0-1.0) for a cache hit
	// Default: 0.85
	CacheThreshold float64 `yaml:"cache_threshold"`

	// ClusterThreshold is the minimum similarity (0.0-1.0) for two questions
	// to land in the same topic
	// Default: 0.85
	ClusterThreshold float64 `yaml:"cluster_threshold"`

	// TopicDedupThreshold is the title overlap at which a new topic is
	// considered a repeat of a recent one
	// Default: 0.70
	TopicDedupThreshold float64 `yaml:"topic_dedup_threshold"`

	// TopicLookback is how many recent topics new topics are deduplicated against
	// Default: 50
	TopicLookback int `yaml:"topic_lookback"`

	// SimilarityMode selects token overlap or embedding cosine for cache lookups
	// Default: "token"
	SimilarityMode string `yaml:"similarity_mode"`

	DataDir   string `yaml:"data_dir"`
	DBPath    string `yaml:"db_path"`
	RedisAddr string `yaml:"redis_addr"`

	Model            string `yaml:"model"`
	EmbeddingModel   string `yaml:"embedding_model"`
	EmbeddingBaseURL string `yaml:"embedding_base_url"`
	AnthropicAPIKey  string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`

	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	EmbeddingTimeout  time.Duration `yaml:"embedding_timeout"`

	// RequestsPerSecond paces provider calls; 0 disables pacing
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// FallbackAnswer is returned when generation fails
	FallbackAnswer string `yaml:"fallback_answer"`

	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Quota:               DefaultQuotaConfig(),
		CacheThreshold:      0.85,
		ClusterThreshold:    0.85,
		TopicDedupThreshold: 0.70,
		TopicLookback:       50,
		SimilarityMode:      SimilarityToken,
		DataDir:             "data",
		DBPath:              filepath.Join("data", "askgate.db"),
		Model:               "claude-3-5-haiku-20241022",
		EmbeddingModel:      "text-embedding-3-small",
		GenerationTimeout:   60 * time.Second,
		EmbeddingTimeout:    30 * time.Second,
		RequestsPerSecond:   5,
		FallbackAnswer:      "(no answer available)",
		HTTPAddr:            ":8080",
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}
	for name, v := range map[string]float64{
		"cache_threshold":       c.CacheThreshold,
		"cluster_threshold":     c.ClusterThreshold,
		"topic_dedup_threshold": c.TopicDedupThreshold,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", name, v)
		}
	}
	if c.TopicLookback <= 0 || c.TopicLookback > 500 {
		return fmt.Errorf("topic_lookback must be between 1 and 500 (got %d)", c.TopicLookback)
	}
	if c.SimilarityMode != SimilarityToken && c.SimilarityMode != SimilarityCosine {
		return fmt.Errorf("similarity_mode must be %q or %q (got %q)",
			SimilarityToken, SimilarityCosine, c.SimilarityMode)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.GenerationTimeout <= 0 || c.GenerationTimeout > 5*time.Minute {
		return fmt.Errorf("generation_timeout must be in (0, 5m] (got %v)", c.GenerationTimeout)
	}
	if c.EmbeddingTimeout <= 0 || c.EmbeddingTimeout > 5*time.Minute {
		return fmt.Errorf("embedding_timeout must be in (0, 5m] (got %v)", c.EmbeddingTimeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative (got %.2f)", c.RequestsPerSecond)
	}
	return nil
}

// String returns a human-readable representation of the config.
// API keys are never printed.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{%s, CacheThreshold: %.2f, ClusterThreshold: %.2f, Mode: %s, "+
			"DataDir: %s, DB: %s, Redis: %q, Model: %s, Embedding: %s, HTTP: %s}",
		c.Quota, c.CacheThreshold, c.ClusterThreshold, c.SimilarityMode,
		c.DataDir, c.DBPath, c.RedisAddr, c.Model, c.EmbeddingModel, c.HTTPAddr,
	)
}

// Load builds a Config from defaults, an optional YAML file, and the environment,
// in that order of precedence (environment wins).
//
// Environment variables:
//   - ASKGATE_CACHE_THRESHOLD, ASKGATE_CLUSTER_THRESHOLD: similarity thresholds (default: 0.85)
//   - ASKGATE_SIMILARITY_MODE: token or cosine (default: token)
//   - ASKGATE_DATA_DIR: local mirror directory (default: data)
//   - ASKGATE_DB_PATH: sqlite database path (default: data/askgate.db)
//   - ASKGATE_REDIS_ADDR: shared quota counter address (default: disabled)
//   - ASKGATE_MODEL, ASKGATE_EMBEDDING_MODEL, ASKGATE_EMBEDDING_BASE_URL: providers
//   - ASKGATE_GENERATION_TIMEOUT_SECS, ASKGATE_EMBEDDING_TIMEOUT_SECS: per-call timeouts
//   - ASKGATE_HTTP_ADDR, ASKGATE_LOG_LEVEL, ASKGATE_LOG_FORMAT
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY: provider credentials
//
// Quota variables are listed on applyQuotaEnv.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv is Load without a config file
func FromEnv() (Config, error) {
	return Load("")
}

func applyEnv(c *Config) error {
	if err := applyQuotaEnv(&c.Quota); err != nil {
		return err
	}

	floats := []struct {
		key  string
		dest *float64
	}{
		{"ASKGATE_CACHE_THRESHOLD", &c.CacheThreshold},
		{"ASKGATE_CLUSTER_THRESHOLD", &c.ClusterThreshold},
		{"ASKGATE_TOPIC_DEDUP_THRESHOLD", &c.TopicDedupThreshold},
		{"ASKGATE_REQUESTS_PER_SECOND", &c.RequestsPerSecond},
	}
	for _, f := range floats {
		if err := parseEnvFloat(f.key, f.dest); err != nil {
			return err
		}
	}

	if err := parseEnvInt("ASKGATE_TOPIC_LOOKBACK", &c.TopicLookback); err != nil {
		return err
	}
	if err := parseEnvDuration("ASKGATE_GENERATION_TIMEOUT_SECS", &c.GenerationTimeout, time.Second); err != nil {
		return err
	}
	if err := parseEnvDuration("ASKGATE_EMBEDDING_TIMEOUT_SECS", &c.EmbeddingTimeout, time.Second); err != nil {
		return err
	}

	strs := []struct {
		key  string
		dest *string
	}{
		{"ASKGATE_SIMILARITY_MODE", &c.SimilarityMode},
		{"ASKGATE_DATA_DIR", &c.DataDir},
		{"ASKGATE_DB_PATH", &c.DBPath},
		{"ASKGATE_REDIS_ADDR", &c.RedisAddr},
		{"ASKGATE_MODEL", &c.Model},
		{"ASKGATE_EMBEDDING_MODEL", &c.EmbeddingModel},
		{"ASKGATE_EMBEDDING_BASE_URL", &c.EmbeddingBaseURL},
		{"ASKGATE_FALLBACK_ANSWER", &c.FallbackAnswer},
		{"ASKGATE_HTTP_ADDR", &c.HTTPAddr},
		{"ASKGATE_LOG_LEVEL", &c.LogLevel},
		{"ASKGATE_LOG_FORMAT", &c.LogFormat},
		{"ANTHROPIC_API_KEY", &c.AnthropicAPIKey},
		{"OPENAI_API_KEY", &c.OpenAIAPIKey},
	}
	for _, s := range strs {
		if err := parseEnvString(s.key, s.dest); err != nil {
			return err
		}
	}
	return nil
}
