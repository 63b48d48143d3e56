package source

import (
	"context"

	"github.com/sells-group/nonprofit-verify/internal/bmf"
	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Registry answers from the in-memory BMF snapshot.
type Registry struct {
	registry *bmf.Registry
	guard    Guard
}

// NewRegistry creates the snapshot adapter.
func NewRegistry(r *bmf.Registry, g Guard) *Registry {
	return &Registry{registry: r, guard: g}
}

// Origin implements Adapter.
func (a *Registry) Origin() model.Origin { return model.OriginRegistry }

// Fetch implements Adapter. Before the first snapshot is installed every
// key is Unavailable, never NotFound.
func (a *Registry) Fetch(ctx context.Context, key ident.Key) model.SourceResult {
	return a.guard.run(ctx, model.OriginRegistry, key, func(_ context.Context, ein string) (fetched, error) {
		snap := a.registry.Current()
		if snap == nil {
			return fetched{}, ErrNotLoaded
		}
		org, ok := snap.Get(ein)
		if !ok {
			return fetched{}, ErrNotFound
		}
		return fetched{fields: registryFields(org), asOf: snap.BuiltAt()}, nil
	})
}

func registryFields(org model.RegistryOrg) *model.Fields {
	status, revoked := model.DeriveStatus(org.Status)
	f := &model.Fields{
		LegalName:  model.StrPtr(org.Name),
		Revoked:    revoked,
		Subsection: model.StrPtr(model.SubsectionLabel(org.Subsection)),
		RulingDate: model.StrPtr(model.FormatRuling(org.Ruling)),
		NTEECode:   model.StrPtr(org.NTEECode),
		Street:     model.StrPtr(org.Street),
		City:       model.StrPtr(org.City),
		State:      model.StrPtr(org.State),
		Zip:        model.StrPtr(org.Zip),
	}
	// An absent code derives "unknown", which is left for other origins to fill.
	if revoked != nil {
		f.IRSStatus = model.StrPtr(status)
	}
	if org.SortName != "" && org.SortName != org.Name {
		f.AKANames = []string{org.SortName}
	}
	return f
}
