package source

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/pkg/propublica"
)

// LookupAPI answers from the Nonprofit Explorer API.
type LookupAPI struct {
	client propublica.Client
	guard  Guard
}

// NewLookupAPI creates the API adapter.
func NewLookupAPI(c propublica.Client, g Guard) *LookupAPI {
	return &LookupAPI{client: c, guard: g}
}

// Origin implements Adapter.
func (a *LookupAPI) Origin() model.Origin { return model.OriginLookupAPI }

// Fetch implements Adapter.
func (a *LookupAPI) Fetch(ctx context.Context, key ident.Key) model.SourceResult {
	return a.guard.run(ctx, model.OriginLookupAPI, key, func(ctx context.Context, ein string) (fetched, error) {
		resp, err := a.client.Organization(ctx, ein)
		if errors.Is(err, propublica.ErrNotFound) {
			return fetched{}, ErrNotFound
		}
		if err != nil {
			return fetched{}, err
		}
		return fetched{fields: apiFields(ein, resp), asOf: parseUpdatedAt(resp.Organization.UpdatedAt)}, nil
	})
}

func apiFields(ein string, resp *propublica.OrganizationResponse) *model.Fields {
	org := resp.Organization
	status, revoked := model.DeriveStatus(string(org.StatusCode))

	f := &model.Fields{
		LegalName:     model.StrPtr(org.Name),
		Revoked:       revoked,
		Subsection:    model.StrPtr(model.SubsectionLabel(string(org.SubsectionCode))),
		RulingDate:    model.StrPtr(model.FormatRuling(org.RulingDate)),
		NTEECode:      model.StrPtr(org.NTEECode),
		Street:        model.StrPtr(org.Address),
		City:          model.StrPtr(org.City),
		State:         model.StrPtr(org.State),
		Zip:           model.StrPtr(org.Zipcode),
		ProPublicaURL: model.StrPtr(propublica.OrganizationURL(ein)),
	}
	if revoked != nil {
		f.IRSStatus = model.StrPtr(status)
	}
	if org.SubName != "" && org.SubName != org.Name {
		f.AKANames = []string{org.SubName}
	}

	if len(resp.FilingsWithData) > 0 {
		latest := resp.FilingsWithData[0]
		if y, ok := latest.TaxPeriodYear.Int64(); ok {
			f.TaxYear = model.Ptr(int(y))
		}
		f.Revenue = flexAmount(latest.TotalRevenue)
		f.Expenses = flexAmount(latest.TotalExpenses)
		f.Assets = flexAmount(latest.TotalAssets)
		f.Liabilities = flexAmount(latest.TotalLiab)
	}
	return f
}

func flexAmount(v propublica.Flex) *int64 {
	n, ok := v.Int64()
	if !ok {
		return nil
	}
	return &n
}

// parseUpdatedAt reads the date part of the API's update stamp, which comes
// as either RFC 3339 or "YYYY-MM-DD hh:mm:ss".
func parseUpdatedAt(s string) time.Time {
	if len(s) < len(time.DateOnly) {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)])
	if err != nil {
		return time.Time{}
	}
	return t
}
