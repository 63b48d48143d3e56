package irs990

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
)

// DefaultBaseURL is the IRS e-file XML archive.
const DefaultBaseURL = "https://apps.irs.gov/pub/epostcard/990/xml"

// maxReturnSize bounds the decompressed XML read for one return.
const maxReturnSize = 64 << 20

// RemoteFile is the transport the archive needs: whole-file downloads for
// the indexes, and HEAD plus byte ranges for the ZIP members.
type RemoteFile interface {
	fetcher.Fetcher
	fetcher.RangeGetter
	Size(ctx context.Context, url string) (int64, error)
}

// Option configures an Archive.
type Option func(*Archive)

// WithBaseURL sets a custom archive root (for testing).
func WithBaseURL(url string) Option {
	return func(a *Archive) { a.baseURL = strings.TrimRight(url, "/") }
}

// WithIndexYears sets how many index years are scanned, newest first.
func WithIndexYears(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.years = n
		}
	}
}

// WithChunkSize sets the initial range read window in bytes.
func WithChunkSize(n int64) Option {
	return func(a *Archive) {
		if n > 0 {
			a.chunk = n
		}
	}
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

// Archive serves filing lookups against the current index.
type Archive struct {
	remote  RemoteFile
	baseURL string
	years   int
	chunk   int64
	now     func() time.Time

	index atomic.Pointer[Index]
}

// NewArchive creates an Archive. No index is loaded until LoadIndex.
func NewArchive(remote RemoteFile, opts ...Option) *Archive {
	a := &Archive{
		remote:  remote,
		baseURL: DefaultBaseURL,
		years:   3,
		chunk:   64 << 10,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Index returns the active index, or nil before the first successful load.
func (a *Archive) Index() *Index { return a.index.Load() }

// SetIndex installs ix as the active index.
func (a *Archive) SetIndex(ix *Index) { a.index.Store(ix) }

// LoadIndex downloads the yearly indexes and swaps in the merged result.
// A year the archive has not published yet (404) is skipped; any other
// failure aborts the load and keeps the previous index.
func (a *Archive) LoadIndex(ctx context.Context) (*Index, error) {
	log := zap.L().With(zap.String("component", "irs990"))

	years := recentYears(a.now(), a.years)
	var (
		refs   []Ref
		loaded []int
	)
	// Oldest first so newer years win ties.
	for _, year := range slices.Backward(years) {
		yearRefs, err := a.loadYear(ctx, year)
		if fetcher.IsNotFound(err) {
			log.Info("filing index not published", zap.Int("year", year))
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info("filing index loaded", zap.Int("year", year), zap.Int("returns", len(yearRefs)))
		refs = append(refs, yearRefs...)
		loaded = append(loaded, year)
	}
	if len(loaded) == 0 {
		return nil, eris.Errorf("irs990: no filing index available for %v", years)
	}

	ix := NewIndex(refs, loaded, a.now())
	a.index.Store(ix)
	return ix, nil
}

func (a *Archive) loadYear(ctx context.Context, year int) ([]Ref, error) {
	rc, err := a.remote.Download(ctx, indexURL(a.baseURL, year))
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return ParseIndex(ctx, rc, year)
}

// ZIPURL is the archive holding ref.
func (a *Archive) ZIPURL(ref Ref) string {
	return fmt.Sprintf("%s/%d/%s.zip", a.baseURL, ref.Year, ref.Batch)
}

// Fetch reads and parses the return for ref. Only the ZIP central directory
// and the one member are transferred.
func (a *Archive) Fetch(ctx context.Context, ref Ref) (*Return, error) {
	url := a.ZIPURL(ref)
	size, err := a.remote.Size(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "irs990: size %s", url)
	}

	ra := fetcher.NewRangeReader(ctx, a.remote, url, size, a.chunk)
	member := ref.ObjectID + "_public.xml"
	rc, name, err := fetcher.OpenZIPMember(ra, size, ref.Batch+"/"+member, member)
	if err != nil {
		return nil, eris.Wrapf(err, "irs990: locate %s", ref.ObjectID)
	}
	defer rc.Close() //nolint:errcheck

	ret, err := Parse(io.LimitReader(rc, maxReturnSize))
	if err != nil {
		return nil, eris.Wrapf(err, "irs990: parse %s", name)
	}
	zap.L().Debug("filing fetched",
		zap.String("ein", ref.EIN),
		zap.String("member", name),
		zap.Int("range_requests", ra.Requests()),
	)
	return ret, nil
}
