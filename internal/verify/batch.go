package verify

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// BatchItem is the answer for one batch input, in request order.
type BatchItem struct {
	Input   string        `json:"input"`
	EIN     string        `json:"ein"`
	Outcome Outcome       `json:"outcome"`
	Record  *model.Record `json:"record,omitempty"`
	Cached  bool          `json:"cached"`
	Error   string        `json:"error,omitempty"`
}

// BatchLookup looks up a list of EINs. Every input must normalize to an EIN
// or the whole batch is rejected. Duplicate EINs are looked up once. An
// Unavailable item is reported in place rather than failing the batch.
func (s *Service) BatchLookup(ctx context.Context, inputs []string) ([]BatchItem, error) {
	if len(inputs) == 0 {
		return nil, eris.Wrap(ErrInvalidIdentifier, "verify: empty batch")
	}
	if len(inputs) > s.opts.BatchMaxSize {
		return nil, eris.Wrapf(ErrBatchTooLarge, "verify: %d inputs exceeds %d", len(inputs), s.opts.BatchMaxSize)
	}

	items := make([]BatchItem, len(inputs))
	var unique []string
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		ein, err := ident.NormalizeEIN(in)
		if err != nil {
			return nil, eris.Wrapf(err, "verify: batch input %d %q", i, in)
		}
		items[i] = BatchItem{Input: in, EIN: ein}
		if !seen[ein] {
			seen[ein] = true
			unique = append(unique, ein)
		}
	}

	results := make([]BatchItem, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)
	for i, ein := range unique {
		g.Go(func() error {
			res, err := s.Lookup(gctx, ein, "")
			item := BatchItem{EIN: ein}
			switch {
			case err == nil:
				item.Outcome = res.Outcome
				item.Record = res.Record
				item.Cached = res.Cached
			case eris.Is(err, ErrUnavailable):
				item.Outcome = OutcomeUnavailable
				item.Error = ErrUnavailable.Error()
			default:
				return err
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "verify: batch lookup")
	}

	byEIN := make(map[string]BatchItem, len(results))
	for _, r := range results {
		byEIN[r.EIN] = r
	}
	for i := range items {
		r := byEIN[items[i].EIN]
		r.Input = items[i].Input
		items[i] = r
	}
	return items, nil
}
