package stateregistry

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// DefaultTexasURL is the Comptroller's tax-exempt entity open-data table.
const DefaultTexasURL = "https://api.comptroller.texas.gov/open-data/v1/tables/exemption"

// Texas checks the Comptroller's exempt entity table. Texas keys entities
// by a Comptroller taxpayer number, so the EIN is matched through the common
// 1{EIN}00, 1{EIN}01 and 3{EIN}00 forms and misses are expected.
type Texas struct {
	fetch   Fetcher
	baseURL string
}

// NewTexas creates the TX checker. An empty baseURL uses the default.
func NewTexas(f Fetcher, baseURL string) *Texas {
	if baseURL == "" {
		baseURL = DefaultTexasURL
	}
	return &Texas{fetch: f, baseURL: baseURL}
}

// State implements Checker.
func (c *Texas) State() string { return "TX" }

// TTL implements Checker.
func (c *Texas) TTL() time.Duration { return 3 * 24 * time.Hour }

type texasPage struct {
	Success bool          `json:"success"`
	Data    []texasExempt `json:"data"`
}

type texasExempt struct {
	TaxpayerID    string `json:"tp_id"`
	Name          string `json:"name"`
	Franchise     string `json:"franchise"`
	Sales         string `json:"sales"`
	Hotel         string `json:"hotel"`
	FranchiseDesc string `json:"franchise_desc"`
	SalesDesc     string `json:"sales_desc"`
}

// Check implements Checker.
func (c *Texas) Check(ctx context.Context, ein string) (*model.StateRegistration, error) {
	body, err := c.fetch.Download(ctx, c.baseURL+"?limit=200&start=0")
	if err != nil {
		return nil, eris.Wrap(err, "stateregistry: TX exemption table")
	}
	defer body.Close() //nolint:errcheck

	var page texasPage
	if err := json.NewDecoder(io.LimitReader(body, maxBody)).Decode(&page); err != nil {
		return nil, eris.Wrap(err, "stateregistry: decode TX exemption table")
	}
	if !page.Success {
		return nil, eris.New("stateregistry: TX exemption table reported failure")
	}
	return matchTexas(page.Data, ein), nil
}

func taxpayerCandidates(ein string) []string {
	return []string{"1" + ein + "00", "1" + ein + "01", "3" + ein + "00"}
}

func matchTexas(records []texasExempt, ein string) *model.StateRegistration {
	for _, tp := range taxpayerCandidates(ein) {
		for _, r := range records {
			if r.TaxpayerID != tp {
				continue
			}
			return &model.StateRegistration{
				State:              "TX",
				Status:             model.StrPtr(texasStatus(r)),
				RegistrationNumber: model.StrPtr(tp),
			}
		}
	}
	return nil
}

func texasStatus(r texasExempt) string {
	var kinds []string
	if r.Franchise == "FRANCHISE" {
		kinds = append(kinds, "Franchise Tax Exempt")
	}
	if r.Sales == "SALES" {
		kinds = append(kinds, "Sales Tax Exempt")
	}
	if r.Hotel == "HOTEL" {
		kinds = append(kinds, "Hotel Tax Exempt")
	}
	status := "Exempt"
	if len(kinds) > 0 {
		status = strings.Join(kinds, ", ")
	}
	desc := r.FranchiseDesc
	if desc == "" {
		desc = r.SalesDesc
	}
	if desc != "" {
		status += " (" + desc + ")"
	}
	return status
}
