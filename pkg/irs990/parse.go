package irs990

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
)

// Return holds the sections of one Form 990 the engine uses. Pointer
// fields are nil when the return omits the line.
type Return struct {
	ReturnType   string
	TaxYear      int
	TaxPeriodEnd string // YYYY-MM-DD

	TotalRevenue     *int64
	TotalExpenses    *int64
	TotalAssets      *int64
	TotalLiabilities *int64

	Revenue  *Revenue  // Part VIII summary (current year columns)
	Expenses *Expenses // Part IX functional totals

	Officers     []Officer      // Part VII Section A
	Compensation []Compensation // Schedule J Part II
}

// Revenue is the current-year revenue summary.
type Revenue struct {
	ContributionsGrants   *int64
	ProgramServiceRevenue *int64
	InvestmentIncome      *int64
	OtherRevenue          *int64
	TotalRevenue          *int64
}

// Expenses is the functional expense split.
type Expenses struct {
	ProgramServices      *int64
	ManagementAndGeneral *int64
	Fundraising          *int64
	Total                *int64
}

// Officer is one Part VII-A row.
type Officer struct {
	Name         string
	Title        string
	Compensation *int64 // reportable from org + other, when either is reported
	HoursPerWeek *float64
	Detail       *Compensation // matching Schedule J row, if any
}

// Compensation is one Schedule J row.
type Compensation struct {
	Name       string
	Base       *int64
	Bonus      *int64
	Other      *int64
	Deferred   *int64
	Nontaxable *int64
	Total      *int64
}

const (
	officerGroup  = "Form990PartVIISectionAGrp"
	scheduleJRow  = "RptCmpOrganizationGrp"
	expensesGroup = "TotalFunctionalExpensesGrp"
)

// Parse walks a return document once. Elements are matched by local name,
// so the efile namespace prefix does not matter.
func Parse(r io.Reader) (*Return, error) {
	dec := fetcher.NewXMLDecoder(r)
	p := &parser{ret: &Return{}}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "irs990: decode xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.start(t.Name.Local)
		case xml.CharData:
			p.text.Write(t)
		case xml.EndElement:
			p.end(t.Name.Local)
		}
	}
	if !p.sawRoot {
		return nil, eris.New("irs990: empty document")
	}

	p.ret.joinCompensation()
	return p.ret, nil
}

type parser struct {
	ret     *Return
	stack   []string
	text    strings.Builder
	sawRoot bool

	officer   *officerAcc
	comp      *Compensation
	inExpense bool
}

type officerAcc struct {
	Officer
	personName   string
	businessName string
	reportable   *int64
	other        *int64
}

func (p *parser) start(name string) {
	p.sawRoot = true
	p.stack = append(p.stack, name)
	p.text.Reset()

	switch name {
	case officerGroup:
		p.officer = &officerAcc{}
	case scheduleJRow:
		p.comp = &Compensation{}
	case expensesGroup:
		p.inExpense = true
	}
}

func (p *parser) parent() string {
	if len(p.stack) < 2 {
		return ""
	}
	return p.stack[len(p.stack)-2]
}

func (p *parser) end(name string) {
	val := strings.TrimSpace(p.text.String())
	p.text.Reset()
	parent := p.parent()
	if len(p.stack) > 0 {
		p.stack = p.stack[:len(p.stack)-1]
	}

	switch name {
	case officerGroup:
		if o := p.officer.finish(); o != nil {
			p.ret.Officers = append(p.ret.Officers, *o)
		}
		p.officer = nil
		return
	case scheduleJRow:
		if p.comp.Name != "" {
			p.ret.Compensation = append(p.ret.Compensation, *p.comp)
		}
		p.comp = nil
		return
	case expensesGroup:
		p.inExpense = false
		return
	}
	if val == "" {
		return
	}

	switch {
	case p.officer != nil:
		p.officerField(name, parent, val)
	case p.comp != nil:
		p.compField(name, parent, val)
	case p.inExpense && parent == expensesGroup:
		p.expenseField(name, val)
	default:
		p.returnField(name, val)
	}
}

func (p *parser) officerField(name, parent, val string) {
	o := p.officer
	if name == "BusinessNameLine1Txt" {
		if o.businessName == "" {
			o.businessName = val
		}
		return
	}
	if parent != officerGroup {
		return
	}
	switch name {
	case "PersonNm":
		o.personName = val
	case "TitleTxt":
		o.Title = val
	case "ReportableCompFromOrgAmt":
		o.reportable = parseAmount(val)
	case "OtherCompensationAmt":
		o.other = parseAmount(val)
	case "AverageHoursPerWeekRt":
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			o.HoursPerWeek = &f
		}
	}
}

func (o *officerAcc) finish() *Officer {
	name := o.personName
	if name == "" {
		name = o.businessName
	}
	if name == "" {
		return nil
	}
	o.Name = TitleCase(name)
	if o.reportable != nil || o.other != nil {
		var total int64
		if o.reportable != nil {
			total += *o.reportable
		}
		if o.other != nil {
			total += *o.other
		}
		o.Compensation = &total
	}
	return &o.Officer
}

func (p *parser) compField(name, parent, val string) {
	c := p.comp
	if name == "BusinessNameLine1Txt" {
		if c.Name == "" {
			c.Name = TitleCase(val)
		}
		return
	}
	if parent != scheduleJRow {
		return
	}
	switch name {
	case "PersonNm":
		c.Name = TitleCase(val)
	case "BaseCompensationFilingOrgAmt":
		c.Base = parseAmount(val)
	case "BonusFilingOrganizationAmount":
		c.Bonus = parseAmount(val)
	case "OtherCompensationFilingOrgAmt":
		c.Other = parseAmount(val)
	case "DeferredCompensationFlngOrgAmt":
		c.Deferred = parseAmount(val)
	case "NontaxableBenefitsFilingOrgAmt":
		c.Nontaxable = parseAmount(val)
	case "TotalCompensationFilingOrgAmt":
		c.Total = parseAmount(val)
	}
}

func (p *parser) expenseField(name, val string) {
	if p.ret.Expenses == nil {
		p.ret.Expenses = &Expenses{}
	}
	e := p.ret.Expenses
	switch name {
	case "ProgramServicesAmt":
		e.ProgramServices = parseAmount(val)
	case "ManagementAndGeneralAmt":
		e.ManagementAndGeneral = parseAmount(val)
	case "FundraisingAmt":
		e.Fundraising = parseAmount(val)
	case "TotalAmt":
		e.Total = parseAmount(val)
	}
}

// returnField handles document-level lines. The first occurrence wins.
func (p *parser) returnField(name, val string) {
	r := p.ret
	switch name {
	case "ReturnTypeCd":
		if r.ReturnType == "" {
			r.ReturnType = val
		}
	case "TaxYr":
		if r.TaxYear == 0 {
			r.TaxYear, _ = strconv.Atoi(val)
		}
	case "TaxPeriodEndDt":
		if r.TaxPeriodEnd == "" {
			r.TaxPeriodEnd = val
		}
	case "CYTotalExpensesAmt":
		setOnce(&r.TotalExpenses, val)
	case "TotalAssetsEOYAmt":
		setOnce(&r.TotalAssets, val)
	case "TotalLiabilitiesEOYAmt":
		setOnce(&r.TotalLiabilities, val)
	case "CYContributionsGrantsAmt":
		setOnce(&r.revenue().ContributionsGrants, val)
	case "CYProgramServiceRevenueAmt":
		setOnce(&r.revenue().ProgramServiceRevenue, val)
	case "CYInvestmentIncomeAmt":
		setOnce(&r.revenue().InvestmentIncome, val)
	case "CYOtherRevenueAmt":
		setOnce(&r.revenue().OtherRevenue, val)
	case "CYTotalRevenueAmt":
		setOnce(&r.revenue().TotalRevenue, val)
		setOnce(&r.TotalRevenue, val)
	}
}

func (r *Return) revenue() *Revenue {
	if r.Revenue == nil {
		r.Revenue = &Revenue{}
	}
	return r.Revenue
}

// joinCompensation attaches Schedule J rows to officers by name,
// case-insensitively.
func (r *Return) joinCompensation() {
	if len(r.Compensation) == 0 {
		return
	}
	byName := make(map[string]*Compensation, len(r.Compensation))
	for i := range r.Compensation {
		byName[strings.ToLower(r.Compensation[i].Name)] = &r.Compensation[i]
	}
	for i := range r.Officers {
		if c, ok := byName[strings.ToLower(r.Officers[i].Name)]; ok {
			r.Officers[i].Detail = c
		}
	}
}

func setOnce(dst **int64, val string) {
	if *dst == nil {
		*dst = parseAmount(val)
	}
}

// parseAmount reads an integer amount, tolerating a decimal part.
func parseAmount(s string) *int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int64(f)
	return &n
}

// TitleCase converts an ALL CAPS name to title case. Mixed-case names are
// returned unchanged.
func TitleCase(s string) string {
	if s == "" || s != strings.ToUpper(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
