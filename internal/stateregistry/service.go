package stateregistry

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/metrics"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Defaults.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultKeyPrefix = "state:"
)

// Options configures a Service. Zero values take the defaults.
type Options struct {
	// Store caches per-state answers, absence included. Nil disables caching.
	Store     cache.Store
	KeyPrefix string
	Timeout   time.Duration
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Service runs every configured checker for an EIN.
type Service struct {
	checkers []Checker
	opts     Options
	log      *zap.Logger
}

// New creates a Service over checkers, queried in the order given.
func New(checkers []Checker, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		checkers: checkers,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "stateregistry")),
	}
}

// entry is the cached answer for one state. A nil Registration records
// that the EIN is not registered there.
type entry struct {
	Registration *model.StateRegistration `json:"registration,omitempty"`
	ExpiresAt    time.Time                `json:"expires_at"`
}

// CheckAll queries every state concurrently and returns the registrations
// found, in checker order. A failing state is logged and omitted; failures
// are not cached.
func (s *Service) CheckAll(ctx context.Context, ein string) []model.StateRegistration {
	found := make([]*model.StateRegistration, len(s.checkers))

	var g errgroup.Group
	for i, c := range s.checkers {
		g.Go(func() error {
			found[i] = s.check(ctx, c, ein)
			return nil
		})
	}
	_ = g.Wait()

	var out []model.StateRegistration
	for _, r := range found {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Service) check(ctx context.Context, c Checker, ein string) *model.StateRegistration {
	key := s.opts.KeyPrefix + c.State() + ":" + ein
	if e, ok := s.cached(ctx, key); ok {
		s.opts.Metrics.IncStateCheck(c.State(), "cached")
		return e.Registration
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	reg, err := c.Check(cctx, ein)
	if err != nil {
		s.log.Warn("state registry check failed",
			zap.String("state", c.State()),
			zap.String("ein", ein),
			zap.Error(err),
		)
		s.opts.Metrics.IncStateCheck(c.State(), "failed")
		return nil
	}

	if reg != nil {
		s.opts.Metrics.IncStateCheck(c.State(), "registered")
	} else {
		s.opts.Metrics.IncStateCheck(c.State(), "absent")
	}
	s.store(ctx, key, entry{Registration: reg, ExpiresAt: s.opts.Now().Add(c.TTL())}, c.TTL())
	return reg
}

func (s *Service) cached(ctx context.Context, key string) (entry, bool) {
	var e entry
	if s.opts.Store == nil {
		return e, false
	}
	raw, ok, err := s.opts.Store.Get(ctx, key)
	if err != nil {
		s.log.Warn("state registry cache read failed", zap.String("key", key), zap.Error(err))
		return e, false
	}
	if !ok || json.Unmarshal(raw, &e) != nil {
		return e, false
	}
	return e, s.opts.Now().Before(e.ExpiresAt)
}

func (s *Service) store(ctx context.Context, key string, e entry, ttl time.Duration) {
	if s.opts.Store == nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.opts.Store.Set(ctx, key, raw, ttl); err != nil {
		s.log.Warn("state registry cache write failed", zap.String("key", key), zap.Error(err))
	}
}
