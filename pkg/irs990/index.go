// Package irs990 reads IRS Form 990 e-file returns from the public XML
// archive: yearly filing indexes, range-fetched ZIP members, and the
// financial and personnel sections of a return.
package irs990

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/ident"
)

// Ref locates one filing inside the archive.
type Ref struct {
	EIN       string
	Year      int // index (processing) year, which names the archive directory
	ReturnID  string
	TaxPeriod string // YYYYMM
	ObjectID  string
	Batch     string // ZIP name without extension
}

// TaxPeriodEnd parses TaxPeriod as the last day of that month. ok is false
// when the period is missing or malformed.
func (r Ref) TaxPeriodEnd() (time.Time, bool) {
	if len(r.TaxPeriod) != 6 {
		return time.Time{}, false
	}
	t, err := time.Parse("200601", r.TaxPeriod)
	if err != nil {
		return time.Time{}, false
	}
	return t.AddDate(0, 1, -1), true
}

// newer reports whether r should replace cur for the same EIN.
func (r Ref) newer(cur Ref) bool {
	if r.TaxPeriod != cur.TaxPeriod {
		return r.TaxPeriod > cur.TaxPeriod
	}
	return r.Year >= cur.Year
}

// Index maps EINs to their most recent full Form 990 filing. It is built
// once and read concurrently.
type Index struct {
	refs     map[string]Ref
	years    []int
	loadedAt time.Time
}

// NewIndex builds an index from refs. Later, newer refs win.
func NewIndex(refs []Ref, years []int, loadedAt time.Time) *Index {
	ix := &Index{refs: make(map[string]Ref, len(refs)), years: years, loadedAt: loadedAt}
	for _, r := range refs {
		ix.add(r)
	}
	return ix
}

func (ix *Index) add(r Ref) {
	if cur, ok := ix.refs[r.EIN]; ok && !r.newer(cur) {
		return
	}
	ix.refs[r.EIN] = r
}

// Lookup returns the latest filing for ein.
func (ix *Index) Lookup(ein string) (Ref, bool) {
	if ix == nil {
		return Ref{}, false
	}
	r, ok := ix.refs[ein]
	return r, ok
}

// Len returns the number of EINs indexed. Nil-safe.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.refs)
}

// Years lists the index years that were loaded.
func (ix *Index) Years() []int { return ix.years }

// LoadedAt is when the index was built.
func (ix *Index) LoadedAt() time.Time { return ix.loadedAt }

// ParseIndex reads one yearly index CSV and returns its full 990 rows.
// Rows for other return types (990EZ, 990PF, 990T) are dropped.
func ParseIndex(ctx context.Context, r io.Reader, year int) ([]Ref, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true, Buffer: 1024})

	var refs []Ref
	for row := range rowCh {
		if row.Get("RETURN_TYPE") != "990" {
			continue
		}
		ein, err := ident.NormalizeEIN(row.Get("EIN"))
		if err != nil {
			continue
		}
		objectID := row.Get("OBJECT_ID")
		batch := strings.TrimSuffix(batchName(row), ".zip")
		if objectID == "" || batch == "" {
			continue
		}
		refs = append(refs, Ref{
			EIN:       ein,
			Year:      year,
			ReturnID:  row.Get("RETURN_ID"),
			TaxPeriod: row.Get("TAX_PERIOD"),
			ObjectID:  objectID,
			Batch:     batch,
		})
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "irs990: parse index %d", year)
	}
	return refs, nil
}

// batchName reads the archive name column. Older indexes leave it unnamed
// as the tenth column.
func batchName(row fetcher.Row) string {
	if v := row.Get("XML_BATCH_ID"); v != "" {
		return v
	}
	if len(row.Fields) > 9 {
		return strings.TrimSpace(row.Fields[9])
	}
	return ""
}

// recentYears returns n years ending at now's year, most recent first.
func recentYears(now time.Time, n int) []int {
	if n <= 0 {
		n = 1
	}
	years := make([]int, n)
	for i := range years {
		years[i] = now.Year() - i
	}
	return years
}

func indexURL(base string, year int) string {
	y := strconv.Itoa(year)
	return base + "/" + y + "/index_" + y + ".csv"
}
