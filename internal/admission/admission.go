// Package admission bounds how many questions each identity may ask per day.
//
// The quota table lives in memory and is authoritative for the process. A
// local JSON mirror lags behind it through a debounced writer, and stale
// records are dropped by a cleanup that runs once per calendar day.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/config"
	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/mirror"
	"github.com/vietgrow/askgate/internal/types"
)

// UserQuotaUpdater propagates a registered user's usage to the durable store
type UserQuotaUpdater interface {
	UpdateUserQuota(ctx context.Context, id string, used int, date string) error
}

// SharedCounter enforces a limit across processes
type SharedCounter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// Options configures a Controller
type Options struct {
	Quota config.QuotaConfig

	// MirrorPath is the quota table's JSON file (usually <data>/limits.json)
	MirrorPath string

	// Users receives usage for registered users (optional)
	Users UserQuotaUpdater

	// Shared is consulted after the in-memory gate (optional)
	Shared SharedCounter

	// Clock defaults to time.Now
	Clock func() time.Time

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Controller is the admission gate
type Controller struct {
	cfg     config.QuotaConfig
	path    string
	users   UserQuotaUpdater
	shared  SharedCounter
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics

	loadOnce sync.Once

	mu          sync.Mutex
	records     map[string]types.QuotaRecord
	lastCleanup string

	// version counts table mutations; written is the version last on disk
	version uint64
	written uint64

	persister *debouncer
	tasks     sync.WaitGroup
}

// New creates a Controller. Nothing is read from disk until the first check.
func New(opts Options) (*Controller, error) {
	if err := opts.Quota.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quota config: %w", err)
	}
	if opts.MirrorPath == "" {
		return nil, fmt.Errorf("mirror path is required")
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		cfg:     opts.Quota,
		path:    opts.MirrorPath,
		users:   opts.Users,
		shared:  opts.Shared,
		now:     now,
		log:     logging.OrNop(opts.Logger).Named("admission"),
		metrics: opts.Metrics,
		records: make(map[string]types.QuotaRecord),
	}
	c.persister = newDebouncer(opts.Quota.DebounceWindow, c.persist, func(err error) {
		c.log.Error("failed to persist quota table", zap.Error(err))
	})
	return c, nil
}

// Check admits one question for id, or returns an error wrapping
// types.ErrQuotaExceeded. Only the limit check can fail the call; storage
// and propagation problems are logged.
func (c *Controller) Check(ctx context.Context, id types.Identity) error {
	c.ensureLoaded()

	today := c.now().UTC().Format(types.DateLayout)
	c.maybeCleanup(today)

	key := id.Key()
	limit := c.cfg.DailyLimit

	c.mu.Lock()
	rec, ok := c.records[key]
	if !ok && id.User != nil {
		// First sighting of a registered user: seed from the profile
		rec = types.QuotaRecord{Date: id.User.LastResetDate, Count: id.User.QuotaUsed}
	}
	if rec.Date != today {
		rec = types.QuotaRecord{Date: today, Count: 0}
	}
	if rec.Count >= limit {
		c.mu.Unlock()
		c.deny(key, rec.Count)
		return fmt.Errorf("%s has used %d/%d questions today: %w", key, rec.Count, limit, types.ErrQuotaExceeded)
	}
	rec.Count++
	c.records[key] = rec
	c.version++
	size := len(c.records)
	c.mu.Unlock()

	if c.shared != nil {
		if allowed := c.checkShared(ctx, key, today); !allowed {
			c.rollback(key, today)
			c.deny(key, limit)
			return fmt.Errorf("%s has used %d/%d questions today across instances: %w",
				key, limit, limit, types.ErrQuotaExceeded)
		}
	}

	c.persister.Schedule()

	if id.User != nil && c.users != nil {
		if err := c.users.UpdateUserQuota(ctx, id.User.ID, rec.Count, today); err != nil {
			c.log.Warn("failed to propagate user quota",
				zap.String("user", id.User.ID), zap.Error(err))
		}
	}

	if c.metrics != nil {
		c.metrics.AdmissionChecks.WithLabelValues("allowed").Inc()
		c.metrics.QuotaRecords.Set(float64(size))
	}
	c.log.Debug("question admitted",
		zap.String("key", key), zap.Int("count", rec.Count), zap.Int("limit", limit))
	return nil
}

// checkShared fails open: a broken counter never blocks a question
func (c *Controller) checkShared(ctx context.Context, key, today string) bool {
	window := time.Duration(c.cfg.RetentionDays) * 24 * time.Hour
	allowed, err := c.shared.Allow(ctx, c.cfg.SharedKeyPrefix+key+":"+today, int64(c.cfg.DailyLimit), window)
	if err != nil {
		c.log.Warn("shared quota counter unavailable, using local count", zap.Error(err))
		return true
	}
	return allowed
}

func (c *Controller) rollback(key, today string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[key]; ok && rec.Date == today && rec.Count > 0 {
		rec.Count--
		c.records[key] = rec
		c.version++
	}
}

func (c *Controller) deny(key string, count int) {
	if c.metrics != nil {
		c.metrics.AdmissionChecks.WithLabelValues("denied").Inc()
	}
	c.log.Info("daily limit reached",
		zap.String("key", key), zap.Int("count", count), zap.Int("limit", c.cfg.DailyLimit))
}

// ensureLoaded reads the mirror once per Controller.
// A missing or corrupt mirror yields an empty table and a fresh file.
func (c *Controller) ensureLoaded() {
	c.loadOnce.Do(func() {
		loaded := make(map[string]types.QuotaRecord)
		found, err := mirror.ReadJSON(c.path, &loaded)

		switch {
		case err != nil:
			if errors.Is(err, mirror.ErrCorrupt) {
				c.log.Error("quota mirror is corrupt, starting empty", zap.String("path", c.path), zap.Error(err))
			} else {
				c.log.Error("failed to load quota mirror, starting empty", zap.String("path", c.path), zap.Error(err))
			}
			loaded = make(map[string]types.QuotaRecord)
			c.recreateMirror()
		case !found:
			c.log.Info("quota mirror not found, creating", zap.String("path", c.path))
			c.recreateMirror()
		default:
			c.log.Info("quota table loaded", zap.Int("records", len(loaded)))
		}

		c.mu.Lock()
		for k, v := range loaded {
			if _, exists := c.records[k]; !exists {
				c.records[k] = v
			}
		}
		c.mu.Unlock()
	})
}

func (c *Controller) recreateMirror() {
	if err := mirror.WriteJSON(c.path, map[string]types.QuotaRecord{}); err != nil {
		c.log.Error("failed to create quota mirror", zap.String("path", c.path), zap.Error(err))
	}
}

// maybeCleanup starts the day's cleanup exactly once per calendar day.
// The scan runs in the background and is tracked for Flush.
func (c *Controller) maybeCleanup(today string) {
	if !c.cfg.CleanupEnabled {
		return
	}

	c.mu.Lock()
	if c.lastCleanup == today {
		c.mu.Unlock()
		return
	}
	c.lastCleanup = today
	c.mu.Unlock()

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if removed := c.cleanup(today); removed > 0 {
			c.log.Info("removed stale quota records", zap.Int("removed", removed))
			c.persister.Schedule()
		}
	}()
}

// cleanup drops records at least RetentionDays old; unparseable dates go too
func (c *Controller) cleanup(today string) int {
	now, err := time.Parse(types.DateLayout, today)
	if err != nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, rec := range c.records {
		date, err := time.Parse(types.DateLayout, rec.Date)
		if err != nil || int(now.Sub(date).Hours()/24) >= c.cfg.RetentionDays {
			delete(c.records, key)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	if c.metrics != nil {
		c.metrics.QuotaRecords.Set(float64(len(c.records)))
	}
	return removed
}

// persist writes a snapshot of the table to the mirror
func (c *Controller) persist() error {
	c.mu.Lock()
	snapshot := make(map[string]types.QuotaRecord, len(c.records))
	for k, v := range c.records {
		snapshot[k] = v
	}
	version := c.version
	c.mu.Unlock()

	err := mirror.WriteJSON(c.path, snapshot)
	if c.metrics != nil {
		c.metrics.MirrorWrites.WithLabelValues(mirror.LimitsFile, metrics.Result(err)).Inc()
	}
	if err != nil {
		return &types.PersistenceError{Op: "write quota mirror", Err: err}
	}

	c.mu.Lock()
	if version > c.written {
		c.written = version
	}
	c.mu.Unlock()
	return nil
}

// dirty reports whether the table changed since the last successful write
func (c *Controller) dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version != c.written
}

// Stats returns a copy of the quota table
func (c *Controller) Stats() map[string]types.QuotaRecord {
	c.ensureLoaded()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.QuotaRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}

// Keys returns the tracked identity keys in sorted order
func (c *Controller) Keys() []string {
	stats := c.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remaining reports how many questions id may still ask today
func (c *Controller) Remaining(id types.Identity) int {
	c.ensureLoaded()
	today := c.now().UTC().Format(types.DateLayout)

	c.mu.Lock()
	rec, ok := c.records[id.Key()]
	c.mu.Unlock()

	if !ok && id.User != nil {
		rec = types.QuotaRecord{Date: id.User.LastResetDate, Count: id.User.QuotaUsed}
	}
	if rec.Date != today {
		return c.cfg.DailyLimit
	}
	if left := c.cfg.DailyLimit - rec.Count; left > 0 {
		return left
	}
	return 0
}

// Wait blocks until background cleanup and pending writes have finished
func (c *Controller) Wait(ctx context.Context) error {
	if err := waitGroup(ctx, &c.tasks); err != nil {
		return err
	}
	return c.persister.Wait(ctx)
}

// Flush waits for background work, then writes the table synchronously if
// it changed since the last write. A process that never admitted anything
// leaves the mirror alone.
func (c *Controller) Flush(ctx context.Context) error {
	if err := c.Wait(ctx); err != nil {
		return err
	}
	if !c.dirty() {
		return nil
	}
	return c.persister.WriteNow()
}
