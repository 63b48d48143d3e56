package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/reconcile"
)

// Outcome tags a finished lookup.
type Outcome string

const (
	OutcomeFound       Outcome = "found"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeInvalid     Outcome = "invalid_identifier"
)

// LookupResult is the answer to one lookup. Record is set only when Found.
type LookupResult struct {
	Outcome Outcome       `json:"outcome"`
	EIN     string        `json:"ein,omitempty"`
	Record  *model.Record `json:"record,omitempty"`
	Cached  bool          `json:"cached"`
	// Match is the registry candidate a name lookup resolved to.
	Match *string `json:"matched_name,omitempty"`
}

type lookupState int

const (
	stateNormalizing lookupState = iota
	stateCacheCheck
	stateReconciling
	stateDone
)

// lookupRun carries one lookup through the state machine.
type lookupRun struct {
	raw    string
	// region is the optional two-letter state filter for name lookups.
	region string
	key    ident.Key
	// fresh drops any cached entry and reconciles regardless.
	fresh  bool
	res    LookupResult
	err    error
}

// Lookup resolves an EIN or organization name to a unified record.
// NotFound is a normal outcome; Unavailable and invalid input are errors.
func (s *Service) Lookup(ctx context.Context, raw, state string) (*LookupResult, error) {
	return s.lookup(ctx, &lookupRun{raw: raw, region: state})
}

// Reverify is Lookup without the cache read: any entry for the resolved EIN
// is invalidated and the sources are queried again. The new answer is
// cached as usual.
func (s *Service) Reverify(ctx context.Context, raw, state string) (*LookupResult, error) {
	return s.lookup(ctx, &lookupRun{raw: raw, region: state, fresh: true})
}

func (s *Service) lookup(ctx context.Context, run *lookupRun) (*LookupResult, error) {
	start := time.Now()

	for st := stateNormalizing; st != stateDone; {
		switch st {
		case stateNormalizing:
			st = s.normalize(run)
		case stateCacheCheck:
			st = s.checkCache(ctx, run)
		case stateReconciling:
			st = s.reconcile(ctx, run)
		}
	}

	s.opts.Metrics.ObserveLookup(string(run.res.Outcome), time.Since(start))
	if run.err != nil {
		return nil, run.err
	}
	return &run.res, nil
}

func (s *Service) normalize(run *lookupRun) lookupState {
	key, err := ident.Normalize(run.raw, run.region)
	if err != nil {
		run.res.Outcome = OutcomeInvalid
		run.err = eris.Wrap(err, "verify: normalize")
		return stateDone
	}
	if key.IsEIN() {
		run.key = key
		run.res.EIN = key.EIN
		return stateCacheCheck
	}

	// Name lookups resolve to the top registry match, then proceed by EIN.
	snap := s.registry.Current()
	if snap == nil {
		run.res.Outcome = OutcomeUnavailable
		run.err = eris.Wrap(ErrUnavailable, "verify: registry snapshot not loaded")
		return stateDone
	}
	m, ok := s.opts.Matcher.Best(snap.Index(), key.Name, key.State)
	if !ok {
		run.res.Outcome = OutcomeNotFound
		return stateDone
	}
	run.key = ident.Key{Kind: ident.KindEIN, EIN: m.EIN}
	run.res.EIN = m.EIN
	run.res.Match = model.StrPtr(m.Name)
	return stateCacheCheck
}

func (s *Service) checkCache(ctx context.Context, run *lookupRun) lookupState {
	if s.cache == nil {
		return stateReconciling
	}
	if run.fresh {
		s.cache.Invalidate(ctx, run.key.EIN)
		return stateReconciling
	}
	entry, ok := s.cache.Get(ctx, run.key.EIN)
	if !ok {
		return stateReconciling
	}
	run.res.Cached = true
	if entry.Found {
		run.res.Outcome = OutcomeFound
		run.res.Record = entry.Record
	} else {
		run.res.Outcome = OutcomeNotFound
	}
	return stateDone
}

func (s *Service) reconcile(ctx context.Context, run *lookupRun) lookupState {
	result := s.reconciler.Reconcile(ctx, run.key)
	switch result.Outcome {
	case reconcile.OutcomeFound:
		run.res.Outcome = OutcomeFound
		run.res.Record = result.Record
		if s.states != nil {
			result.Record.StateRegistrations = s.states.CheckAll(ctx, run.key.EIN)
		}
		if s.cache != nil {
			s.cache.PutRecord(ctx, result.Record)
		}
	case reconcile.OutcomeNotFound:
		run.res.Outcome = OutcomeNotFound
		if s.cache != nil {
			s.cache.PutNotFound(ctx, run.key.EIN)
		}
	default:
		run.res.Outcome = OutcomeUnavailable
		run.err = eris.Wrapf(ErrUnavailable, "verify: lookup %s", run.key.EIN)
		s.log.Warn("lookup unavailable",
			zap.String("ein", run.key.EIN),
			zap.Strings("unavailable", unavailableOrigins(result.Sources)),
		)
	}
	return stateDone
}

func unavailableOrigins(results []model.SourceResult) []string {
	var out []string
	for _, r := range results {
		if r.Status == model.StatusUnavailable {
			out = append(out, string(r.Origin))
		}
	}
	return out
}
