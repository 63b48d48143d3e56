// Package propublica provides a client for the ProPublica Nonprofit Explorer API.
package propublica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotFound means the API has no such organization.
var ErrNotFound = eris.New("propublica: organization not found")

// Client fetches organization profiles.
type Client interface {
	Organization(ctx context.Context, ein string) (*OrganizationResponse, error)
}

// OrganizationResponse is the /organizations/{ein}.json payload.
type OrganizationResponse struct {
	Organization    Organization `json:"organization"`
	FilingsWithData []Filing     `json:"filings_with_data"`
}

// Organization is the registry-derived profile.
type Organization struct {
	EIN            Flex   `json:"ein"`
	Name           string `json:"name"`
	SubName        string `json:"sub_name"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zipcode        string `json:"zipcode"`
	SubsectionCode Flex   `json:"subsection_code"`
	RulingDate     string `json:"ruling_date"`
	NTEECode       string `json:"ntee_code"`
	StatusCode     Flex   `json:"exempt_organization_status_code"`
	UpdatedAt      string `json:"updated_at"`
}

// Filing is one summarized annual return.
type Filing struct {
	TaxPeriodYear Flex   `json:"tax_prd_yr"`
	TaxPeriod     Flex   `json:"tax_prd"`
	TotalRevenue  Flex   `json:"totrevenue"`
	TotalExpenses Flex   `json:"totfuncexpns"`
	TotalAssets   Flex   `json:"totassetsend"`
	TotalLiab     Flex   `json:"totliabend"`
	PDFURL        string `json:"pdf_url"`
}

// Flex holds a JSON scalar that the API sends as either a number or a
// string depending on the record. Null decodes to "".
type Flex string

// UnmarshalJSON accepts strings, numbers, and null.
func (f *Flex) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Flex(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return eris.Wrapf(err, "propublica: scalar %s", b)
		}
		*f = Flex(n.String())
	}
	return nil
}

// Int64 parses the value, truncating any fractional part. ok is false for
// empty or non-numeric values.
func (f Flex) Int64() (int64, bool) {
	if f == "" {
		return 0, false
	}
	n := json.Number(f)
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	if fl, err := n.Float64(); err == nil {
		return int64(fl), true
	}
	return 0, false
}

// IsStub reports whether the API returned its placeholder profile, which it
// does for any well-formed EIN it does not know. The placeholder sends its
// subsection as null or 0.
func (o Organization) IsStub() bool {
	return o.Name == "Unknown Organization" &&
		(o.SubsectionCode == "" || o.SubsectionCode == "0") && o.RulingDate == ""
}

// OrganizationURL is the public profile page for ein.
func OrganizationURL(ein string) string {
	return "https://projects.propublica.org/nonprofits/organizations/" + ein
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), max(int(perSec), 1))
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Nonprofit Explorer client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://projects.propublica.org/nonprofits/api/v2",
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Organization issues a single request. It never retries: callers apply
// their own timeout and treat every error other than ErrNotFound as the
// source being unavailable.
func (c *httpClient) Organization(ctx context.Context, ein string) (*OrganizationResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "propublica: rate limiter wait")
		}
	}

	reqURL := fmt.Sprintf("%s/organizations/%s.json", c.baseURL, ein)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "propublica: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "propublica: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "propublica: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The API answers unknown EINs with a JSON error. A bare 404 comes
		// from a proxy or a moved route and says nothing about the EIN.
		if json.Valid(body) {
			return nil, ErrNotFound
		}
		zap.L().Warn("propublica: 404 without json body",
			zap.String("ein", ein),
			zap.String("content_type", resp.Header.Get("Content-Type")),
			zap.String("body", snippet(body)),
		)
		return nil, eris.Errorf("propublica: unexpected status 404 with non-json body")
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("propublica: unexpected status %d", resp.StatusCode)
	}

	var out OrganizationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "propublica: parse response")
	}
	if out.Organization.IsStub() {
		return nil, ErrNotFound
	}
	return &out, nil
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
