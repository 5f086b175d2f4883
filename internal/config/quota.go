package config

import (
	"fmt"
	"time"
)

// QuotaConfig holds configuration for per-identity daily admission
type QuotaConfig struct {
	// DailyLimit is the number of questions an identity may ask per calendar day
	// Default: 3, Range: 1-10000
	DailyLimit int `yaml:"daily_limit"`

	// RetentionDays is how long a quota record survives after its last use.
	// Records whose date is at least this many days old are dropped by the
	// daily cleanup.
	// Default: 1, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// DebounceWindow coalesces quota-table writes to the local mirror
	// Default: 300ms, Range: 0-1m
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// CleanupEnabled controls whether the once-per-day cleanup runs
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`

	// SharedKeyPrefix namespaces redis counter keys when a shared counter is configured
	// Default: "askgate:quota:"
	SharedKeyPrefix string `yaml:"shared_key_prefix"`
}

// DefaultQuotaConfig returns the default admission configuration
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		DailyLimit:      3,
		RetentionDays:   1,
		DebounceWindow:  300 * time.Millisecond,
		CleanupEnabled:  true,
		SharedKeyPrefix: "askgate:quota:",
	}
}

// Validate checks if the configuration has valid values
func (c QuotaConfig) Validate() error {
	if c.DailyLimit < 1 || c.DailyLimit > 10000 {
		return fmt.Errorf("daily_limit must be between 1 and 10000 (got %d)", c.DailyLimit)
	}
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window cannot be negative (got %v)", c.DebounceWindow)
	}
	if c.DebounceWindow > time.Minute {
		return fmt.Errorf("debounce_window too large (got %v, max 1m)", c.DebounceWindow)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c QuotaConfig) String() string {
	return fmt.Sprintf(
		"QuotaConfig{DailyLimit: %d, RetentionDays: %d, Debounce: %v, Cleanup: %t}",
		c.DailyLimit, c.RetentionDays, c.DebounceWindow, c.CleanupEnabled,
	)
}

// applyQuotaEnv overrides quota settings from the environment
//
// Environment variables:
//   - ASKGATE_DAILY_LIMIT: Questions per identity per day (default: 3)
//   - ASKGATE_RETENTION_DAYS: Quota record retention in days (default: 1)
//   - ASKGATE_DEBOUNCE_MS: Mirror write debounce in milliseconds (default: 300)
//   - ASKGATE_QUOTA_CLEANUP_ENABLED: Enable the daily cleanup (default: true)
func applyQuotaEnv(c *QuotaConfig) error {
	if err := parseEnvInt("ASKGATE_DAILY_LIMIT", &c.DailyLimit); err != nil {
		return err
	}
	if err := parseEnvInt("ASKGATE_RETENTION_DAYS", &c.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvDuration("ASKGATE_DEBOUNCE_MS", &c.DebounceWindow, time.Millisecond); err != nil {
		return err
	}
	if err := parseEnvBool("ASKGATE_QUOTA_CLEANUP_ENABLED", &c.CleanupEnabled); err != nil {
		return err
	}
	return parseEnvString("ASKGATE_REDIS_KEY_PREFIX", &c.SharedKeyPrefix)
}
