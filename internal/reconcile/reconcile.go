// Package reconcile fans a lookup out to every source adapter and merges
// the results into one record by per-category origin precedence.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/source"
)

// Outcome is the overall result of one reconciliation.
type Outcome int

const (
	OutcomeFound Outcome = iota + 1
	OutcomeNotFound
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result carries the outcome, the merged record when Found, and every
// adapter's raw result in adapter order.
type Result struct {
	Outcome Outcome
	Record  *model.Record
	Sources []model.SourceResult
}

// Reconciler owns the adapters and the precedence table.
type Reconciler struct {
	adapters   []source.Adapter
	precedence Precedence
	now        func() time.Time
}

// New creates a Reconciler. A nil precedence uses DefaultPrecedence.
func New(adapters []source.Adapter, p Precedence) *Reconciler {
	if p == nil {
		p = DefaultPrecedence()
	}
	return &Reconciler{adapters: adapters, precedence: p, now: time.Now}
}

// Reconcile queries every adapter concurrently and waits for all of them.
// Each adapter bounds its own call, so no extra deadline is applied here.
func (r *Reconciler) Reconcile(ctx context.Context, key ident.Key) Result {
	slots := make([]model.SourceResult, len(r.adapters))

	var g errgroup.Group
	for i, a := range r.adapters {
		g.Go(func() error {
			slots[i] = a.Fetch(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Outcome: Classify(slots), Sources: slots}
	if res.Outcome == OutcomeFound {
		res.Record = Merge(key.EIN, slots, r.precedence, r.now().UTC())
	}

	fields := []zap.Field{zap.String("ein", key.EIN), zap.String("outcome", res.Outcome.String())}
	for _, s := range slots {
		fields = append(fields, zap.String(string(s.Origin), s.Status.String()))
	}
	zap.L().Debug("reconciled", fields...)
	return res
}

// Classify derives the overall outcome. Any Found wins; otherwise the
// result is NotFound only when every adapter said so authoritatively.
func Classify(results []model.SourceResult) Outcome {
	if len(results) == 0 {
		return OutcomeUnavailable
	}
	notFound := 0
	for _, r := range results {
		switch r.Status {
		case model.StatusFound:
			return OutcomeFound
		case model.StatusNotFound:
			notFound++
		}
	}
	if notFound == len(results) {
		return OutcomeNotFound
	}
	return OutcomeUnavailable
}
