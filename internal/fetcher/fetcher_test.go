package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body string
	got  string
}

func (s *stubFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	s.got = url
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestRouter_Dispatch(t *testing.T) {
	httpF := &stubFetcher{body: "http"}
	ftpF := &stubFetcher{body: "ftp"}
	r := &Router{HTTP: httpF, FTP: ftpF}

	rc, err := r.Open(context.Background(), "https://www.irs.gov/pub/irs-soi/eo1.csv")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "http", string(b))
	assert.Equal(t, "https://www.irs.gov/pub/irs-soi/eo1.csv", httpF.got)

	rc, err = r.Open(context.Background(), "ftp://ftp.irs.gov/eo1.csv")
	require.NoError(t, err)
	b, _ = io.ReadAll(rc)
	assert.Equal(t, "ftp", string(b))
}

func TestRouter_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eo1.csv")
	require.NoError(t, os.WriteFile(path, []byte("EIN\n"), 0o644))

	r := &Router{}
	rc, err := r.Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "EIN\n", string(b))

	_, err = r.Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestRouter_MissingFetcher(t *testing.T) {
	r := &Router{}
	_, err := r.Open(context.Background(), "https://example.com/eo1.csv")
	require.Error(t, err)
	_, err = r.Open(context.Background(), "ftp://example.com/eo1.csv")
	require.Error(t, err)
}

func TestRouter_SaveTo(t *testing.T) {
	r := &Router{HTTP: &stubFetcher{body: "EIN,NAME\n"}}
	path := filepath.Join(t.TempDir(), "out.csv")

	n, err := r.SaveTo(context.Background(), "http://mirror/eo1.csv", path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestOpenFirstCSV(t *testing.T) {
	blob := buildZIP(t, map[string]string{"readme.md": "x", "eo_dc.csv": "EIN\n530196605\n"})
	path := filepath.Join(t.TempDir(), "eo.zip")
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	rc, err := OpenFirstCSV(path)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "EIN\n530196605\n", string(b))

	empty := buildZIP(t, map[string]string{"readme.md": "x"})
	path2 := filepath.Join(t.TempDir(), "empty.zip")
	require.NoError(t, os.WriteFile(path2, empty, 0o644))
	_, err = OpenFirstCSV(path2)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
