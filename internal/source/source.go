// Package source implements the per-origin adapters the reconciler fans out
// to. Every adapter turns its failures into a SourceResult status instead of
// an error: NotFound when the origin authoritatively has no record,
// Unavailable for everything else.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/metrics"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/resilience"
)

// ErrNotFound marks an authoritative absence inside an adapter.
var ErrNotFound = eris.New("source: no record")

// ErrNotLoaded means the adapter's backing dataset has not been loaded yet.
var ErrNotLoaded = eris.New("source: dataset not loaded")

// Adapter fetches one origin's view of an organization.
type Adapter interface {
	Origin() model.Origin
	Fetch(ctx context.Context, key ident.Key) model.SourceResult
}

// Guard is the per-adapter envelope: a timeout, an optional breaker, and
// outcome metrics.
type Guard struct {
	Timeout time.Duration
	Breaker *resilience.Breaker
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// NewBreaker builds a breaker for origin that ignores authoritative
// absences and mirrors its state into m.
func NewBreaker(origin model.Origin, failureThreshold, resetTimeoutSecs int, m *metrics.Metrics) *resilience.Breaker {
	cfg := resilience.NewBreakerConfig(string(origin), failureThreshold, resetTimeoutSecs)
	cfg.ShouldTrip = func(err error) bool { return err != nil && !errors.Is(err, ErrNotFound) }
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		zap.L().Warn("source breaker state change",
			zap.String("origin", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		m.SetBreakerOpen(name, to == resilience.Open)
	}
	return resilience.NewBreaker(cfg)
}

type fetched struct {
	fields *model.Fields
	asOf   time.Time
}

type fetchFunc func(ctx context.Context, ein string) (fetched, error)

func (g Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// run executes fn for key under the guard and classifies the outcome.
func (g Guard) run(ctx context.Context, origin model.Origin, key ident.Key, fn fetchFunc) model.SourceResult {
	log := zap.L().With(zap.String("component", "source"), zap.String("origin", string(origin)))
	start := time.Now()

	if !key.IsEIN() {
		return model.Unavailable(origin, g.now(), eris.Errorf("source: %s requires an EIN key", origin))
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	call := func(ctx context.Context) (fetched, error) { return fn(ctx, key.EIN) }
	var (
		out fetched
		err error
	)
	if g.Breaker != nil {
		out, err = resilience.Call(ctx, g.Breaker, call)
	} else {
		out, err = call(ctx)
	}
	fetchedAt := g.now()

	var res model.SourceResult
	switch {
	case err == nil:
		res = model.Found(origin, out.fields, fetchedAt, out.asOf)
		log.Debug("source found", zap.String("ein", key.EIN))
	case errors.Is(err, ErrNotFound):
		res = model.NotFound(origin, fetchedAt)
		log.Debug("source not found", zap.String("ein", key.EIN))
	default:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = eris.Wrapf(err, "source: %s timed out after %s", origin, g.Timeout)
		}
		res = model.Unavailable(origin, fetchedAt, err)
		log.Warn("source unavailable", zap.String("ein", key.EIN), zap.Error(err))
	}

	g.Metrics.ObserveSource(string(origin), res.Status.String(), time.Since(start))
	return res
}
