// Package fetcher moves bytes from bulk-file locations (local paths, HTTP,
// FTP, ZIP archives) and serves byte-range reads against remote archives.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Router opens a bulk-file location by scheme: http(s):// through HTTP,
// ftp:// through FTP, anything else as a local path.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// Open returns a reader over the location's bytes. The caller closes it.
func (r *Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		if r.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
		}
		return r.HTTP.Download(ctx, location)
	case strings.HasPrefix(location, "ftp://"):
		if r.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
		}
		return r.FTP.Download(ctx, location)
	default:
		f, err := os.Open(location)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", location)
		}
		return f, nil
	}
}

// SaveTo streams location into path and returns the bytes written.
func (r *Router) SaveTo(ctx context.Context, location, path string) (int64, error) {
	rc, err := r.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
