package model

import "time"

// Record is the unified view of one organization merged from every origin
// that contributed. Records are built once per reconciliation and never
// mutated afterwards; a refresh produces a new Record.
type Record struct {
	EIN            string            `json:"ein"`
	LegalName      *string           `json:"legal_name"`
	AKANames       []string          `json:"aka_names"`
	TaxStatus      TaxStatus         `json:"tax_status"`
	Classification Classification    `json:"classification"`
	Location       Location          `json:"location"`
	Financials     Financials        `json:"financials"`
	Personnel      []Person          `json:"personnel"`
	DataSources    map[Origin]string `json:"data_sources"`
	// FieldSources maps each populated field name to the origin that supplied it.
	FieldSources  map[string]Origin `json:"field_sources,omitempty"`
	Confidence    float64           `json:"confidence"`
	FetchedAt     time.Time         `json:"fetched_at"`
	ProPublicaURL *string           `json:"propublica_url"`
	// StateRegistrations lists state charity registry hits. They never count
	// toward Confidence.
	StateRegistrations []StateRegistration `json:"state_registrations"`
}

// StateRegistration is one state charity registry entry.
type StateRegistration struct {
	State              string  `json:"state"`
	Status             *string `json:"status"`
	RegistrationNumber *string `json:"registration_number"`
}

// TaxStatus holds IRS exemption status fields.
type TaxStatus struct {
	IRSStatus  *string `json:"irs_status"`
	Subsection *string `json:"subsection"`
	RulingDate *string `json:"ruling_date"`
	Revoked    *bool   `json:"revoked"`
}

// Classification holds the NTEE code and its human label.
type Classification struct {
	NTEECode *string `json:"ntee_code"`
	Label    *string `json:"label"`
}

// Location is the organization's mailing address.
type Location struct {
	Street *string `json:"street"`
	City   *string `json:"city"`
	State  *string `json:"state"`
	Zip    *string `json:"zip"`
}

// Financials is the most recent financial snapshot.
type Financials struct {
	TaxYear          *int              `json:"tax_year"`
	Revenue          *int64            `json:"revenue"`
	Expenses         *int64            `json:"expenses"`
	Assets           *int64            `json:"assets"`
	Liabilities      *int64            `json:"liabilities"`
	RevenueBreakdown *RevenueBreakdown `json:"revenue_breakdown"`
	ExpenseBreakdown *ExpenseBreakdown `json:"expense_breakdown"`
}

// RevenueBreakdown mirrors Form 990 Part VIII summary lines.
type RevenueBreakdown struct {
	ContributionsAndGrants *int64 `json:"contributions_and_grants"`
	ProgramServiceRevenue  *int64 `json:"program_service_revenue"`
	InvestmentIncome       *int64 `json:"investment_income"`
	OtherRevenue           *int64 `json:"other_revenue"`
	TotalRevenue           *int64 `json:"total_revenue"`
}

// Empty reports whether no line was populated.
func (b *RevenueBreakdown) Empty() bool {
	return b == nil || (b.ContributionsAndGrants == nil && b.ProgramServiceRevenue == nil &&
		b.InvestmentIncome == nil && b.OtherRevenue == nil && b.TotalRevenue == nil)
}

// ExpenseBreakdown mirrors Form 990 Part IX functional expense totals.
type ExpenseBreakdown struct {
	ProgramServices      *int64 `json:"program_services"`
	ManagementAndGeneral *int64 `json:"management_and_general"`
	Fundraising          *int64 `json:"fundraising"`
	TotalExpenses        *int64 `json:"total_expenses"`
}

// Empty reports whether no line was populated.
func (b *ExpenseBreakdown) Empty() bool {
	return b == nil || (b.ProgramServices == nil && b.ManagementAndGeneral == nil &&
		b.Fundraising == nil && b.TotalExpenses == nil)
}

// Person is one officer, director, trustee or key employee.
type Person struct {
	Name               string              `json:"name"`
	Title              *string             `json:"title"`
	Compensation       *int64              `json:"compensation"`
	HoursPerWeek       *float64            `json:"hours_per_week"`
	CompensationDetail *CompensationDetail `json:"compensation_detail"`
}

// CompensationDetail is the Schedule J breakdown for one person.
type CompensationDetail struct {
	BaseCompensation     *int64 `json:"base_compensation"`
	BonusAndIncentive    *int64 `json:"bonus_and_incentive"`
	OtherCompensation    *int64 `json:"other_compensation"`
	DeferredCompensation *int64 `json:"deferred_compensation"`
	NontaxableBenefits   *int64 `json:"nontaxable_benefits"`
	TotalCompensation    *int64 `json:"total_compensation"`
}
