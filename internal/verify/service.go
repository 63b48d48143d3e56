// Package verify is the retrieval entry point: it normalizes input, serves
// from cache, drives reconciliation on a miss, and owns registry refreshes.
package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/bmf"
	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/metrics"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/namematch"
	"github.com/sells-group/nonprofit-verify/internal/reconcile"
	"github.com/sells-group/nonprofit-verify/internal/store"
	"github.com/sells-group/nonprofit-verify/pkg/irs990"
)

// ErrInvalidIdentifier is a caller error; never retried.
var ErrInvalidIdentifier = ident.ErrInvalidIdentifier

// ErrUnavailable means the required sources could not answer. Retryable.
var ErrUnavailable = eris.New("verify: sources unavailable")

// ErrBatchTooLarge rejects batches over the configured size.
var ErrBatchTooLarge = eris.New("verify: batch too large")

// Reconciler merges adapter results for one key.
type Reconciler interface {
	Reconcile(ctx context.Context, key ident.Key) reconcile.Result
}

// RegistryLoader reads bulk registry files.
type RegistryLoader interface {
	Load(ctx context.Context, locations []string) ([]model.RegistryOrg, error)
}

// FilingIndexLoader refreshes the filing index.
type FilingIndexLoader interface {
	LoadIndex(ctx context.Context) (*irs990.Index, error)
	Index() *irs990.Index
}

// StateChecker looks an EIN up in state charity registries.
type StateChecker interface {
	CheckAll(ctx context.Context, ein string) []model.StateRegistration
}

// Options tunes the service. Zero values take defaults.
type Options struct {
	Matcher           namematch.Matcher
	RegistryLocations []string
	BatchMaxSize      int
	BatchConcurrency  int
	Metrics           *metrics.Metrics
	Now               func() time.Time
}

// Service wires the engine together.
type Service struct {
	reconciler Reconciler
	cache      *cache.Cache
	registry   *bmf.Registry
	loader     RegistryLoader
	filings    FilingIndexLoader
	store      store.Store
	states     StateChecker
	opts       Options
	log        *zap.Logger
}

// Deps are the collaborators a Service needs. Loader, Filings, Store, and
// States may be nil when the corresponding operation is not used.
type Deps struct {
	Reconciler Reconciler
	Cache      *cache.Cache
	Registry   *bmf.Registry
	Loader     RegistryLoader
	Filings    FilingIndexLoader
	Store      store.Store
	States     StateChecker
}

// New creates a Service.
func New(d Deps, opts Options) *Service {
	if opts.Matcher == (namematch.Matcher{}) {
		opts.Matcher = namematch.NewMatcher(0, 0, 0)
	}
	if opts.BatchMaxSize <= 0 {
		opts.BatchMaxSize = 50
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		reconciler: d.Reconciler,
		cache:      d.Cache,
		registry:   d.Registry,
		loader:     d.Loader,
		filings:    d.Filings,
		store:      d.Store,
		states:     d.States,
		opts:       opts,
		log:        zap.L().With(zap.String("component", "verify")),
	}
}

// Status summarizes loaded datasets.
type Status struct {
	RegistryOrgs     int       `json:"registry_orgs"`
	RegistryBuiltAt  time.Time `json:"registry_built_at,omitzero"`
	RegistrySource   string    `json:"registry_source,omitempty"`
	FilingIndexEINs  int       `json:"filing_index_eins"`
	FilingIndexYears []int     `json:"filing_index_years,omitempty"`
}

// Status reports what the service is serving from.
func (s *Service) Status() Status {
	var st Status
	if snap := s.registry.Current(); snap != nil {
		st.RegistryOrgs = snap.Len()
		st.RegistryBuiltAt = snap.BuiltAt()
		st.RegistrySource = snap.Source()
	}
	if s.filings != nil {
		if ix := s.filings.Index(); ix != nil {
			st.FilingIndexEINs = ix.Len()
			st.FilingIndexYears = ix.Years()
		}
	}
	return st
}
