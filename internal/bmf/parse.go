package bmf

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Parse reads one EO BMF extract (eo1.csv, eo_xx.csv, ...). Rows with an
// unusable EIN are skipped and counted.
func Parse(ctx context.Context, r io.Reader) ([]model.RegistryOrg, int, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true})

	var orgs []model.RegistryOrg
	skipped := 0
	for row := range rowCh {
		ein, err := ident.NormalizeEIN(row.Get("EIN"))
		if err != nil || row.Get("NAME") == "" {
			skipped++
			continue
		}
		orgs = append(orgs, model.RegistryOrg{
			EIN:        ein,
			Name:       row.Get("NAME"),
			CareOf:     row.Get("ICO"),
			Street:     row.Get("STREET"),
			City:       row.Get("CITY"),
			State:      row.Get("STATE"),
			Zip:        row.Get("ZIP"),
			Subsection: row.Get("SUBSECTION"),
			Ruling:     row.Get("RULING"),
			Status:     row.Get("STATUS"),
			TaxPeriod:  row.Get("TAX_PERIOD"),
			AssetAmt:   parseAmount(row.Get("ASSET_AMT")),
			IncomeAmt:  parseAmount(row.Get("INCOME_AMT")),
			RevenueAmt: parseAmount(row.Get("REVENUE_AMT")),
			NTEECode:   row.Get("NTEE_CD"),
			SortName:   row.Get("SORT_NAME"),
		})
	}
	if err := <-errCh; err != nil {
		return nil, skipped, eris.Wrap(err, "bmf: parse")
	}
	return orgs, skipped, nil
}

func parseAmount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Loader reads bulk registry files from any location the router can open.
// ZIP locations are staged under TempDir first.
type Loader struct {
	Router  *fetcher.Router
	TempDir string
}

// Load parses every location in order and concatenates the rows.
func (l *Loader) Load(ctx context.Context, locations []string) ([]model.RegistryOrg, error) {
	if len(locations) == 0 {
		return nil, eris.New("bmf: no registry locations configured")
	}

	var all []model.RegistryOrg
	for _, loc := range locations {
		orgs, err := l.loadOne(ctx, loc)
		if err != nil {
			return nil, err
		}
		all = append(all, orgs...)
	}
	return all, nil
}

func (l *Loader) loadOne(ctx context.Context, loc string) ([]model.RegistryOrg, error) {
	log := zap.L().With(zap.String("component", "bmf"), zap.String("location", loc))

	rc, err := l.open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	orgs, skipped, err := Parse(ctx, rc)
	if err != nil {
		return nil, eris.Wrapf(err, "bmf: load %s", loc)
	}
	log.Info("registry file parsed", zap.Int("orgs", len(orgs)), zap.Int("skipped", skipped))
	return orgs, nil
}

func (l *Loader) open(ctx context.Context, loc string) (io.ReadCloser, error) {
	if !strings.HasSuffix(strings.ToLower(loc), ".zip") {
		return l.Router.Open(ctx, loc)
	}

	path := loc
	if strings.Contains(loc, "://") {
		if err := os.MkdirAll(l.TempDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "bmf: create temp dir")
		}
		path = filepath.Join(l.TempDir, filepath.Base(loc))
		if _, err := l.Router.SaveTo(ctx, loc, path); err != nil {
			return nil, eris.Wrapf(err, "bmf: stage %s", loc)
		}
	}
	return fetcher.OpenFirstCSV(path)
}
