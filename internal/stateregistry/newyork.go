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

// DefaultNewYorkURL is the Charities Bureau registry search action.
const DefaultNewYorkURL = "https://www.charitiesnys.com/RegistrySearch/search_charities_action.jsp"

// NewYork searches the NY Charities Bureau registry.
type NewYork struct {
	fetch     Fetcher
	searchURL string
}

// NewNewYork creates the NY checker. An empty searchURL uses the default.
func NewNewYork(f Fetcher, searchURL string) *NewYork {
	if searchURL == "" {
		searchURL = DefaultNewYorkURL
	}
	return &NewYork{fetch: f, searchURL: searchURL}
}

// State implements Checker.
func (c *NewYork) State() string { return "NY" }

// TTL implements Checker.
func (c *NewYork) TTL() time.Duration { return 7 * 24 * time.Hour }

// Check implements Checker.
func (c *NewYork) Check(ctx context.Context, ein string) (*model.StateRegistration, error) {
	form := url.Values{
		"project":    {"Charities"},
		"reg1":       {""},
		"reg2":       {""},
		"reg3":       {""},
		"orgId":      {""},
		"num1":       {ein[:2]},
		"num2":       {ein[2:]},
		"ein":        {ein},
		"orgName":    {""},
		"searchType": {"contains"},
		"regType":    {"ALL"},
	}
	body, err := c.fetch.PostForm(ctx, c.searchURL, form)
	if err != nil {
		return nil, eris.Wrap(err, "stateregistry: NY search")
	}
	defer body.Close() //nolint:errcheck

	doc, err := parseHTML(io.LimitReader(body, maxBody))
	if err != nil {
		return nil, err
	}
	return parseNewYork(doc, ein), nil
}

// parseNewYork reads the Bordered results table: Organization Name, NY Reg#,
// EIN, Registrant Type, City, State. The search shows no status column, so
// presence means registered.
func parseNewYork(doc *html.Node, ein string) *model.StateRegistration {
	table := findFirst(doc, "table", func(n *html.Node) bool { return hasClass(n, "Bordered") })
	if table == nil {
		return nil
	}

	for _, texts := range rowCells(table) {
		if len(texts) < 4 || strings.ReplaceAll(texts[2], "-", "") != ein {
			continue
		}
		status := "Registered"
		if texts[3] != "" {
			status = "Registered (" + texts[3] + ")"
		}
		return &model.StateRegistration{
			State:              "NY",
			Status:             model.StrPtr(status),
			RegistrationNumber: model.StrPtr(texts[1]),
		}
	}
	return nil
}
