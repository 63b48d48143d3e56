package verify

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/bmf"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// RefreshResult summarizes one registry refresh.
type RefreshResult struct {
	RunID    string        `json:"run_id,omitempty"`
	Orgs     int           `json:"orgs"`
	Source   string        `json:"source"`
	BuiltAt  time.Time     `json:"built_at"`
	Duration time.Duration `json:"duration"`
}

// RefreshRegistrySnapshot rebuilds the registry snapshot and its name index
// from locations (the configured locations when empty) and swaps it in as a
// unit. The previous snapshot keeps serving if the load fails. When a store
// is configured the rows and the run are persisted; a persist failure marks
// the run failed but leaves the new snapshot serving.
func (s *Service) RefreshRegistrySnapshot(ctx context.Context, locations []string) (*RefreshResult, error) {
	if s.loader == nil {
		return nil, eris.New("verify: no registry loader configured")
	}
	if len(locations) == 0 {
		locations = s.opts.RegistryLocations
	}
	source := strings.Join(locations, ",")
	start := s.opts.Now()
	log := s.log.With(zap.String("source", source))

	var runID string
	if s.store != nil {
		run, err := s.store.StartRefresh(ctx, source)
		if err != nil {
			return nil, eris.Wrap(err, "verify: start refresh")
		}
		runID = run.ID
	}

	orgs, err := s.loader.Load(ctx, locations)
	if err != nil {
		s.failRun(ctx, runID, err)
		s.opts.Metrics.ObserveRefresh(string(model.RunStatusFailed), 0)
		return nil, eris.Wrap(err, "verify: load registry")
	}
	if len(orgs) == 0 {
		err := eris.New("verify: registry load produced no rows")
		s.failRun(ctx, runID, err)
		s.opts.Metrics.ObserveRefresh(string(model.RunStatusFailed), 0)
		return nil, err
	}

	builtAt := s.opts.Now().UTC()
	snap := bmf.NewSnapshot(orgs, builtAt, source)
	s.registry.Swap(snap)
	log.Info("registry snapshot swapped", zap.Int("orgs", snap.Len()))

	result := &RefreshResult{
		RunID:    runID,
		Orgs:     snap.Len(),
		Source:   source,
		BuiltAt:  builtAt,
		Duration: s.opts.Now().Sub(start),
	}

	if s.store != nil {
		n, err := s.store.ReplaceRegistry(ctx, snap.Orgs())
		if err != nil {
			s.failRun(ctx, runID, err)
			s.opts.Metrics.ObserveRefresh(string(model.RunStatusFailed), snap.Len())
			return result, eris.Wrap(err, "verify: persist registry")
		}
		if err := s.store.CompleteRefresh(ctx, runID, n); err != nil {
			log.Warn("complete refresh run", zap.Error(err))
		}
	}

	s.opts.Metrics.ObserveRefresh(string(model.RunStatusComplete), snap.Len())
	return result, nil
}

func (s *Service) failRun(ctx context.Context, id string, cause error) {
	if s.store == nil || id == "" {
		return
	}
	if err := s.store.FailRefresh(ctx, id, cause); err != nil {
		s.log.Warn("mark refresh failed", zap.String("run_id", id), zap.Error(err))
	}
}

// RestoreSnapshot loads the last persisted registry into memory so lookups
// can be served before the next refresh. It reports whether anything was
// restored.
func (s *Service) RestoreSnapshot(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	orgs, err := s.store.LoadRegistry(ctx)
	if err != nil {
		return false, eris.Wrap(err, "verify: restore registry")
	}
	if len(orgs) == 0 {
		return false, nil
	}

	builtAt, source := s.opts.Now().UTC(), "store"
	last, err := s.store.LastRefresh(ctx)
	if err != nil {
		return false, eris.Wrap(err, "verify: last refresh")
	}
	if last != nil {
		source = last.Source
		builtAt = last.StartedAt
		if last.CompletedAt != nil {
			builtAt = *last.CompletedAt
		}
	}

	snap := bmf.NewSnapshot(orgs, builtAt, source)
	s.registry.Swap(snap)
	s.opts.Metrics.ObserveRefresh("restored", snap.Len())
	s.log.Info("registry snapshot restored",
		zap.Int("orgs", snap.Len()),
		zap.Time("built_at", builtAt),
	)
	return true, nil
}

// RefreshFilingIndex reloads the filing index. On failure the previous
// index keeps serving.
func (s *Service) RefreshFilingIndex(ctx context.Context) (int, error) {
	if s.filings == nil {
		return 0, eris.New("verify: no filing archive configured")
	}
	ix, err := s.filings.LoadIndex(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "verify: refresh filing index")
	}
	s.log.Info("filing index loaded", zap.Int("eins", ix.Len()), zap.Ints("years", ix.Years()))
	return ix.Len(), nil
}

// Refreshes lists recent refresh runs, newest first.
func (s *Service) Refreshes(ctx context.Context, limit int) ([]model.RefreshRun, error) {
	if s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListRefreshes(ctx, limit)
	return runs, eris.Wrap(err, "verify: list refreshes")
}
