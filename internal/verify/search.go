package verify

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/namematch"
)

// Search ranks registry organizations by name similarity. Callers fetch
// detail for a chosen candidate through Lookup.
func (s *Service) Search(ctx context.Context, q namematch.Query) (namematch.Page, error) {
	if err := ctx.Err(); err != nil {
		return namematch.Page{}, eris.Wrap(err, "verify: search")
	}
	if strings.TrimSpace(q.Text) == "" || ident.NormalizeName(q.Text) == "" {
		return namematch.Page{}, eris.Wrap(ErrInvalidIdentifier, "verify: empty search text")
	}
	if q.State != "" {
		st, err := ident.NormalizeState(q.State)
		if err != nil {
			return namematch.Page{}, eris.Wrap(err, "verify: search state")
		}
		q.State = st
	}
	snap := s.registry.Current()
	if snap == nil {
		return namematch.Page{}, eris.Wrap(ErrUnavailable, "verify: registry snapshot not loaded")
	}
	return s.opts.Matcher.Search(snap.Index(), q), nil
}
