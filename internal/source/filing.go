package source

import (
	"context"
	"time"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/pkg/irs990"
)

// FilingArchive is the part of irs990.Archive the adapter uses.
type FilingArchive interface {
	Index() *irs990.Index
	Fetch(ctx context.Context, ref irs990.Ref) (*irs990.Return, error)
}

// Filing answers from the most recent Form 990 e-file return.
type Filing struct {
	archive FilingArchive
	guard   Guard
}

// NewFiling creates the filing adapter.
func NewFiling(a FilingArchive, g Guard) *Filing {
	return &Filing{archive: a, guard: g}
}

// Origin implements Adapter.
func (a *Filing) Origin() model.Origin { return model.OriginFiling }

// Fetch implements Adapter. NotFound means the EIN has no full 990 in the
// loaded index years; a located filing that fails to download or parse is
// Unavailable.
func (a *Filing) Fetch(ctx context.Context, key ident.Key) model.SourceResult {
	return a.guard.run(ctx, model.OriginFiling, key, func(ctx context.Context, ein string) (fetched, error) {
		ix := a.archive.Index()
		if ix == nil {
			return fetched{}, ErrNotLoaded
		}
		ref, ok := ix.Lookup(ein)
		if !ok {
			return fetched{}, ErrNotFound
		}
		ret, err := a.archive.Fetch(ctx, ref)
		if err != nil {
			return fetched{}, err
		}
		return fetched{fields: filingFields(ret), asOf: filingAsOf(ref, ret)}, nil
	})
}

func filingAsOf(ref irs990.Ref, ret *irs990.Return) time.Time {
	if t, err := time.Parse(time.DateOnly, ret.TaxPeriodEnd); err == nil {
		return t
	}
	t, _ := ref.TaxPeriodEnd()
	return t
}

func filingFields(ret *irs990.Return) *model.Fields {
	f := &model.Fields{
		Revenue:     ret.TotalRevenue,
		Expenses:    ret.TotalExpenses,
		Assets:      ret.TotalAssets,
		Liabilities: ret.TotalLiabilities,
	}
	if ret.TaxYear > 0 {
		f.TaxYear = model.Ptr(ret.TaxYear)
	}
	if r := ret.Revenue; r != nil {
		f.RevenueBreakdown = &model.RevenueBreakdown{
			ContributionsAndGrants: r.ContributionsGrants,
			ProgramServiceRevenue:  r.ProgramServiceRevenue,
			InvestmentIncome:       r.InvestmentIncome,
			OtherRevenue:           r.OtherRevenue,
			TotalRevenue:           r.TotalRevenue,
		}
	}
	if e := ret.Expenses; e != nil {
		f.ExpenseBreakdown = &model.ExpenseBreakdown{
			ProgramServices:      e.ProgramServices,
			ManagementAndGeneral: e.ManagementAndGeneral,
			Fundraising:          e.Fundraising,
			TotalExpenses:        e.Total,
		}
	}
	for _, o := range ret.Officers {
		p := model.Person{
			Name:         o.Name,
			Title:        model.StrPtr(o.Title),
			Compensation: o.Compensation,
			HoursPerWeek: o.HoursPerWeek,
		}
		if d := o.Detail; d != nil {
			p.CompensationDetail = &model.CompensationDetail{
				BaseCompensation:     d.Base,
				BonusAndIncentive:    d.Bonus,
				OtherCompensation:    d.Other,
				DeferredCompensation: d.Deferred,
				NontaxableBenefits:   d.Nontaxable,
				TotalCompensation:    d.Total,
			}
		}
		f.Personnel = append(f.Personnel, p)
	}
	return f
}
