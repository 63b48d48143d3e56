package reconcile

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Confidence scores a record by how many origins contributed at least one
// field. It rounds down to one decimal with a floor of 0.34 for a single
// origin; the full 1.0 requires every origin to contribute and none to be
// unavailable.
func Confidence(contributing, total int, anyUnavailable bool) float64 {
	if contributing <= 0 || total <= 0 {
		return 0
	}
	if contributing >= total {
		if anyUnavailable {
			return 0.9
		}
		return 1.0
	}
	score := math.Floor(float64(contributing)/float64(total)*10) / 10
	return max(score, 0.34)
}

// Merge builds a record for ein from Found results using p. Results with
// any other status are ignored except for the confidence cap.
func Merge(ein string, results []model.SourceResult, p Precedence, fetchedAt time.Time) *model.Record {
	rec := &model.Record{
		EIN:                ein,
		AKANames:           []string{},
		Personnel:          []model.Person{},
		StateRegistrations: []model.StateRegistration{},
		FetchedAt:          fetchedAt,
	}
	m := &merger{
		found:    make(map[model.Origin]model.SourceResult, len(results)),
		prec:     p,
		rec:      rec,
		supplied: make(map[string]model.Origin),
	}
	anyUnavailable := false
	for _, r := range results {
		switch r.Status {
		case model.StatusFound:
			if r.Fields != nil {
				m.found[r.Origin] = r
			}
		case model.StatusUnavailable:
			anyUnavailable = true
		}
	}

	m.identity()
	m.status()
	m.classification()
	m.location()
	m.financials()
	m.personnel()

	rec.DataSources = make(map[model.Origin]string)
	for _, o := range m.supplied {
		rec.DataSources[o] = m.found[o].DateString()
	}
	if len(m.supplied) > 0 {
		rec.FieldSources = m.supplied
	}
	rec.Confidence = Confidence(len(rec.DataSources), len(model.Origins), anyUnavailable)
	return rec
}

type merger struct {
	found    map[model.Origin]model.SourceResult
	prec     Precedence
	rec      *model.Record
	supplied map[string]model.Origin
}

// pick returns the first non-nil value in cat's origin order and records
// which origin supplied field.
func pick[T any](m *merger, cat Category, field string, get func(*model.Fields) *T) *T {
	for _, o := range m.prec[cat] {
		res, ok := m.found[o]
		if !ok {
			continue
		}
		if v := get(res.Fields); v != nil {
			m.supplied[field] = o
			return v
		}
	}
	return nil
}

func (m *merger) identity() {
	r := m.rec
	r.LegalName = pick(m, CategoryIdentity, "legal_name", func(f *model.Fields) *string { return f.LegalName })
	r.ProPublicaURL = pick(m, CategoryIdentity, "propublica_url", func(f *model.Fields) *string { return f.ProPublicaURL })

	// AKA names are the union across identity origins, in priority order.
	seen := map[string]bool{}
	if r.LegalName != nil {
		seen[strings.ToLower(*r.LegalName)] = true
	}
	for _, o := range m.prec[CategoryIdentity] {
		res, ok := m.found[o]
		if !ok {
			continue
		}
		for _, name := range res.Fields.AKANames {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			r.AKANames = append(r.AKANames, name)
			if _, ok := m.supplied["aka_names"]; !ok {
				m.supplied["aka_names"] = o
			}
		}
	}
}

func (m *merger) status() {
	t := &m.rec.TaxStatus
	t.IRSStatus = pick(m, CategoryStatus, "tax_status.irs_status", func(f *model.Fields) *string { return f.IRSStatus })
	t.Subsection = pick(m, CategoryStatus, "tax_status.subsection", func(f *model.Fields) *string { return f.Subsection })
	t.RulingDate = pick(m, CategoryStatus, "tax_status.ruling_date", func(f *model.Fields) *string { return f.RulingDate })
	t.Revoked = pick(m, CategoryStatus, "tax_status.revoked", func(f *model.Fields) *bool { return f.Revoked })
}

func (m *merger) classification() {
	c := &m.rec.Classification
	c.NTEECode = pick(m, CategoryClassification, "classification.ntee_code", func(f *model.Fields) *string { return f.NTEECode })
	if c.NTEECode == nil {
		return
	}
	if label := model.NTEELabel(*c.NTEECode); label != "" {
		c.Label = &label
		m.supplied["classification.label"] = m.supplied["classification.ntee_code"]
	}
}

func (m *merger) location() {
	l := &m.rec.Location
	l.Street = pick(m, CategoryLocation, "location.street", func(f *model.Fields) *string { return f.Street })
	l.City = pick(m, CategoryLocation, "location.city", func(f *model.Fields) *string { return f.City })
	l.State = pick(m, CategoryLocation, "location.state", func(f *model.Fields) *string { return f.State })
	l.Zip = pick(m, CategoryLocation, "location.zip", func(f *model.Fields) *string { return f.Zip })
}

func (m *merger) financials() {
	fin := &m.rec.Financials
	fin.TaxYear = pick(m, CategoryFinancial, "financials.tax_year", func(f *model.Fields) *int { return f.TaxYear })
	fin.Revenue = pick(m, CategoryFinancial, "financials.revenue", func(f *model.Fields) *int64 { return f.Revenue })
	fin.Expenses = pick(m, CategoryFinancial, "financials.expenses", func(f *model.Fields) *int64 { return f.Expenses })
	fin.Assets = pick(m, CategoryFinancial, "financials.assets", func(f *model.Fields) *int64 { return f.Assets })
	fin.Liabilities = pick(m, CategoryFinancial, "financials.liabilities", func(f *model.Fields) *int64 { return f.Liabilities })
	fin.RevenueBreakdown = pick(m, CategoryFinancial, "financials.revenue_breakdown", func(f *model.Fields) *model.RevenueBreakdown {
		if f.RevenueBreakdown.Empty() {
			return nil
		}
		return f.RevenueBreakdown
	})
	fin.ExpenseBreakdown = pick(m, CategoryFinancial, "financials.expense_breakdown", func(f *model.Fields) *model.ExpenseBreakdown {
		if f.ExpenseBreakdown.Empty() {
			return nil
		}
		return f.ExpenseBreakdown
	})
}

func (m *merger) personnel() {
	people := pick(m, CategoryPersonnel, "personnel", func(f *model.Fields) *[]model.Person {
		if len(f.Personnel) == 0 {
			return nil
		}
		return &f.Personnel
	})
	if people != nil {
		m.rec.Personnel = slices.Clone(*people)
	}
}
