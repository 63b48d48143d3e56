// Package cache stores reconciled records and not-found tombstones with
// separate lifetimes. Backend failures never fail a lookup: reads degrade
// to a miss and writes are dropped with a warning.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/metrics"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Default lifetimes.
const (
	DefaultPositiveTTL = 7 * 24 * time.Hour
	DefaultNegativeTTL = 24 * time.Hour
	DefaultKeyPrefix   = "verify:"
)

// Entry is the persisted payload.
type Entry struct {
	Found     bool          `json:"found"`
	Record    *model.Record `json:"record,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Options configures a Cache. Zero values take the defaults.
type Options struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	KeyPrefix   string
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Cache maps EINs to entries.
type Cache struct {
	store   Store
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Cache over store.
func New(store Store, opts Options) *Cache {
	if opts.PositiveTTL <= 0 {
		opts.PositiveTTL = DefaultPositiveTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:   store,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "cache")),
		metrics: opts.Metrics,
	}
}

// Key is the backend key for ein.
func (c *Cache) Key(ein string) string { return c.opts.KeyPrefix + ein }

// Get returns the live entry for ein. Entries past ExpiresAt are misses even
// if the backend still holds them.
func (c *Cache) Get(ctx context.Context, ein string) (*Entry, bool) {
	raw, ok, err := c.store.Get(ctx, c.Key(ein))
	if err != nil {
		c.log.Warn("cache read failed", zap.String("ein", ein), zap.Error(err))
		c.metrics.IncCache("error")
		return nil, false
	}
	if !ok {
		c.metrics.IncCache("miss")
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("ein", ein), zap.Error(err))
		c.metrics.IncCache("error")
		return nil, false
	}
	if !c.opts.Now().Before(e.ExpiresAt) || (e.Found && e.Record == nil) {
		c.metrics.IncCache("miss")
		return nil, false
	}

	if e.Found {
		c.metrics.IncCache("hit")
	} else {
		c.metrics.IncCache("tombstone")
	}
	return &e, true
}

// PutRecord caches rec for the positive lifetime.
func (c *Cache) PutRecord(ctx context.Context, rec *model.Record) {
	c.put(ctx, rec.EIN, Entry{Found: true, Record: rec}, c.opts.PositiveTTL)
}

// PutNotFound caches a tombstone for the negative lifetime.
func (c *Cache) PutNotFound(ctx context.Context, ein string) {
	c.put(ctx, ein, Entry{Found: false}, c.opts.NegativeTTL)
}

// Invalidate drops any entry for ein.
func (c *Cache) Invalidate(ctx context.Context, ein string) {
	if err := c.store.Delete(ctx, c.Key(ein)); err != nil {
		c.log.Warn("cache delete failed", zap.String("ein", ein), zap.Error(err))
	}
}

func (c *Cache) put(ctx context.Context, ein string, e Entry, ttl time.Duration) {
	now := c.opts.Now().UTC()
	e.FetchedAt = now
	e.ExpiresAt = now.Add(ttl)

	raw, err := json.Marshal(e)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("ein", ein), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.Key(ein), raw, ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("ein", ein), zap.Error(err))
	}
}

// Close releases the backend.
func (c *Cache) Close() error { return c.store.Close() }
