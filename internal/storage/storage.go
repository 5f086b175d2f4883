package storage

import (
	"context"
	"path/filepath"

	"github.com/vietgrow/askgate/internal/storage/sqlite"
	"github.com/vietgrow/askgate/internal/types"
)

// Storage defines the interface for the durable store.
//
// Callers treat every method as fallible I/O: reads fall back to the local
// mirrors and writes are best-effort.
type Storage interface {
	// Users
	GetUser(ctx context.Context, id string) (*types.UserProfile, error)
	UpsertUser(ctx context.Context, u *types.UserProfile) error
	UpdateUserQuota(ctx context.Context, id string, used int, date string) error

	// Answers (append-only, insertion order preserved)
	AppendAnswer(ctx context.Context, rec *types.AnswerRecord) error
	ListAnswers(ctx context.Context) ([]*types.AnswerRecord, error)
	RecentAnswers(ctx context.Context, limit int) ([]*types.AnswerRecord, error)
	FindAnswer(ctx context.Context, question string) (*types.AnswerRecord, error)

	// Topics
	AppendTopic(ctx context.Context, t *types.Topic) error
	RecentTopics(ctx context.Context, limit int) ([]*types.Topic, error)
	TopTopics(ctx context.Context, limit int) ([]*types.Topic, error)

	// Feedback and learning
	AppendFeedback(ctx context.Context, fb *types.Feedback) error
	RecentFeedback(ctx context.Context, limit int) ([]*types.Feedback, error)
	AppendSummary(ctx context.Context, s *types.LearningSummary) error
	LatestSummary(ctx context.Context) (*types.LearningSummary, error)

	// Lifecycle
	Close() error
}

// Compile-time check that the SQLite backend implements Storage
var _ Storage = (*sqlite.SQLiteStorage)(nil)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: "data/askgate.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: filepath.Join("data", "askgate.db"),
	}
}

// NewStorage creates a new SQLite storage backend
// The ctx parameter is currently unused but kept for API consistency
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Default to standard path if not specified
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}

	return sqlite.New(cfg.Path)
}
