package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/nonprofit-verify/internal/resilience"
)

// StatusError is returned for an unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Code, e.URL)
}

// IsNotFound reports whether err carries an HTTP 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	RatePerSec float64 // per host; 0 disables limiting
	Retry      resilience.RetryConfig
	Client     *http.Client
}

// HTTPFetcher issues rate-limited GET, HEAD, form POST, and byte-range
// requests. Full downloads and form posts are retried on transient failures;
// range reads are not.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher with defaults filled in.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nonprofit-verify/1.0"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) wait(ctx context.Context, rawURL string) error {
	if f.opts.RatePerSec <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "fetcher: parse url")
	}

	f.mu.Lock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		burst := max(int(f.opts.RatePerSec), 1)
		lim = rate.NewLimiter(rate.Limit(f.opts.RatePerSec), burst)
		f.limiters[u.Host] = lim
	}
	f.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return eris.Wrap(err, "fetcher: rate limiter wait")
	}
	return nil
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string, header http.Header) (*http.Response, error) {
	return f.send(ctx, method, rawURL, header, nil)
}

func (f *HTTPFetcher) send(ctx context.Context, method, rawURL string, header http.Header, body io.Reader) (*http.Response, error) {
	if err := f.wait(ctx, rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: %s %s", method, rawURL)
	}
	return resp, nil
}

// Download GETs rawURL and returns the body, retrying transient failures.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	cfg := f.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("download " + rawURL)
	}

	return resilience.Retry(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := f.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		return okBody(resp, rawURL)
	})
}

// PostForm POSTs form url-encoded to rawURL and returns the body, retrying
// transient failures.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error) {
	cfg := f.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("post " + rawURL)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	encoded := form.Encode()

	return resilience.Retry(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := f.send(ctx, http.MethodPost, rawURL, header, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		return okBody(resp, rawURL)
	})
}

func okBody(resp *http.Response, rawURL string) (io.ReadCloser, error) {
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	_ = resp.Body.Close()
	serr := &StatusError{URL: rawURL, Code: resp.StatusCode}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(serr, resp.StatusCode)
	}
	return nil, serr
}

// Size returns the Content-Length reported by a HEAD request.
func (f *HTTPFetcher) Size(ctx context.Context, rawURL string) (int64, error) {
	resp, err := f.do(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, eris.Errorf("fetcher: no content length for %s", rawURL)
	}
	return resp.ContentLength, nil
}

// GetRange reads length bytes of rawURL starting at off.
func (f *HTTPFetcher) GetRange(ctx context.Context, rawURL string, off, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))

	resp, err := f.do(ctx, http.MethodGet, rawURL, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Range ignored. Only usable when the caller wanted the head of the file.
		if off != 0 {
			return nil, eris.Errorf("fetcher: %s does not honor range requests", rawURL)
		}
		zap.L().Debug("range ignored by server, truncating body", zap.String("url", rawURL))
	default:
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, length))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read range body")
	}
	return data, nil
}
