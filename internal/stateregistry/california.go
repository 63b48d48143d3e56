package stateregistry

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// DefaultCaliforniaURL is the Attorney General's Registry Verification search.
const DefaultCaliforniaURL = "https://rct.doj.ca.gov/Verification/Web/Search.aspx?facility=Y"

var aspTokenFields = []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"}

// California searches the CA Registry of Charitable Trusts. The search page
// is an ASP.NET form, so a GET for the view-state tokens precedes the POST.
type California struct {
	fetch     Fetcher
	searchURL string
}

// NewCalifornia creates the CA checker. An empty searchURL uses the default.
func NewCalifornia(f Fetcher, searchURL string) *California {
	if searchURL == "" {
		searchURL = DefaultCaliforniaURL
	}
	return &California{fetch: f, searchURL: searchURL}
}

// State implements Checker.
func (c *California) State() string { return "CA" }

// TTL implements Checker.
func (c *California) TTL() time.Duration { return 7 * 24 * time.Hour }

// Check implements Checker.
func (c *California) Check(ctx context.Context, ein string) (*model.StateRegistration, error) {
	page, err := c.fetch.Download(ctx, c.searchURL)
	if err != nil {
		return nil, eris.Wrap(err, "stateregistry: CA search page")
	}
	doc, err := parseHTML(io.LimitReader(page, maxBody))
	_ = page.Close()
	if err != nil {
		return nil, err
	}

	form, err := aspTokens(doc)
	if err != nil {
		return nil, err
	}
	form.Set("t_web_lookup__federal_id", ein)
	for _, f := range []string{"license_no", "charter_number", "full_name", "doing_business_as",
		"profession_name", "license_type_name", "license_status_name"} {
		form.Set("t_web_lookup__"+f, "")
	}
	form.Set("sch_button", "Search")

	body, err := c.fetch.PostForm(ctx, c.searchURL, form)
	if err != nil {
		return nil, eris.Wrap(err, "stateregistry: CA search")
	}
	defer body.Close() //nolint:errcheck

	results, err := parseHTML(io.LimitReader(body, maxBody))
	if err != nil {
		return nil, err
	}
	return parseCalifornia(results, ein), nil
}

func aspTokens(doc *html.Node) (url.Values, error) {
	form := url.Values{}
	for _, name := range aspTokenFields {
		in := findFirst(doc, "input", func(n *html.Node) bool { return attr(n, "name") == name })
		if in == nil || attr(in, "value") == "" {
			return nil, eris.Errorf("stateregistry: CA search page missing %s", name)
		}
		form.Set(name, attr(in, "value"))
	}
	return form, nil
}

// parseCalifornia reads the results grid: Registration Number, Record Type,
// Organization Name, Registry Status, City, State, FEIN.
func parseCalifornia(doc *html.Node, ein string) *model.StateRegistration {
	table := findFirst(doc, "table", func(n *html.Node) bool {
		return strings.Contains(strings.ToLower(attr(n, "id")), "datagrid")
	})
	if table == nil {
		table = findFirst(doc, "table", hasRegistrationHeaders)
	}
	if table == nil {
		return nil
	}

	for _, texts := range rowCells(table) {
		if len(texts) < 4 || !anyCellIs(texts, ein) {
			continue
		}
		return &model.StateRegistration{
			State:              "CA",
			Status:             model.StrPtr(texts[3]),
			RegistrationNumber: model.StrPtr(texts[0]),
		}
	}
	return nil
}

func hasRegistrationHeaders(t *html.Node) bool {
	var registration, status bool
	for _, th := range findAll(t, "th", nil) {
		h := strings.ToLower(text(th))
		registration = registration || strings.Contains(h, "registration")
		status = status || strings.Contains(h, "status")
	}
	return registration && status
}

func anyCellIs(texts []string, ein string) bool {
	for _, t := range texts {
		if digits(t) == ein {
			return true
		}
	}
	return false
}
