// Package bmf holds the in-memory Registry Snapshot built from the IRS
// Exempt Organizations Business Master File and its derived name index.
package bmf

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/namematch"
)

// Snapshot is an immutable registry extract plus the NameIndex built from it.
type Snapshot struct {
	orgs    map[string]model.RegistryOrg
	index   *namematch.Index
	builtAt time.Time
	source  string
}

// NewSnapshot indexes orgs. Later rows win when an EIN repeats.
func NewSnapshot(orgs []model.RegistryOrg, builtAt time.Time, source string) *Snapshot {
	byEIN := make(map[string]model.RegistryOrg, len(orgs))
	for _, o := range orgs {
		byEIN[o.EIN] = o
	}

	cands := make([]namematch.Candidate, 0, len(byEIN))
	for _, o := range byEIN {
		c := namematch.Candidate{
			EIN:     o.EIN,
			Name:    o.Name,
			City:    o.City,
			State:   o.State,
			Revenue: o.RevenueAmt,
		}
		if o.SortName != "" {
			c.AltNames = []string{o.SortName}
		}
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].EIN < cands[j].EIN })

	return &Snapshot{
		orgs:    byEIN,
		index:   namematch.Build(cands),
		builtAt: builtAt,
		source:  source,
	}
}

// Get looks up an organization by 9-digit EIN.
func (s *Snapshot) Get(ein string) (model.RegistryOrg, bool) {
	o, ok := s.orgs[ein]
	return o, ok
}

// Len returns the number of organizations.
func (s *Snapshot) Len() int { return len(s.orgs) }

// Index returns the name index for this snapshot.
func (s *Snapshot) Index() *namematch.Index { return s.index }

// BuiltAt is when the underlying bulk file was loaded.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Source describes where the snapshot came from.
func (s *Snapshot) Source() string { return s.source }

// Orgs returns every organization sorted by EIN.
func (s *Snapshot) Orgs() []model.RegistryOrg {
	out := make([]model.RegistryOrg, 0, len(s.orgs))
	for _, o := range s.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EIN < out[j].EIN })
	return out
}

// Registry publishes the current Snapshot. Readers always observe a complete
// snapshot; Swap replaces it as a unit.
type Registry struct {
	cur atomic.Pointer[Snapshot]
}

// Current returns the active snapshot, or nil before the first load.
func (r *Registry) Current() *Snapshot { return r.cur.Load() }

// Swap installs s and returns the previous snapshot.
func (r *Registry) Swap(s *Snapshot) *Snapshot { return r.cur.Swap(s) }
