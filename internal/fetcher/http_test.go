package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-verify/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Retry:     resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	})
}

func serveBlob(t *testing.T, blob []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob.zip", time.Time{}, bytes.NewReader(blob))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("EIN,NAME\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/eo1.csv")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "EIN,NAME\n", string(data))
}

func TestDownload_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_NotFoundNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL+"/index_2027.csv")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostForm_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "530196605", r.PostForm.Get("ein"))
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<table></table>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().PostForm(context.Background(), srv.URL, url.Values{"ein": {"530196605"}})
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostForm_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher().PostForm(context.Background(), srv.URL, url.Values{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestSize(t *testing.T) {
	srv := serveBlob(t, make([]byte, 1234))

	n, err := newTestFetcher().Size(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
}

func TestGetRange(t *testing.T) {
	blob := []byte("0123456789abcdefghij")
	srv := serveBlob(t, blob)
	f := newTestFetcher()

	data, err := f.GetRange(context.Background(), srv.URL, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, "5678", string(data))

	data, err = f.GetRange(context.Background(), srv.URL, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestGetRange_ServerIgnoresRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()
	f := newTestFetcher()

	data, err := f.GetRange(context.Background(), srv.URL, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))

	_, err = f.GetRange(context.Background(), srv.URL, 4, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not honor range")
}

func TestGetRange_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher().GetRange(context.Background(), srv.URL, 0, 10)
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestRateLimiterPerHost(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{RatePerSec: 5})
	require.NoError(t, f.wait(context.Background(), "https://apps.irs.gov/a"))
	require.NoError(t, f.wait(context.Background(), "https://apps.irs.gov/b"))
	require.NoError(t, f.wait(context.Background(), "https://projects.propublica.org/c"))
	assert.Len(t, f.limiters, 2)
}
