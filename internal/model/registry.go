package model

import (
	"strconv"
	"strings"
	"time"
)

// RegistryOrg is one row of the IRS Exempt Organizations Business Master File.
type RegistryOrg struct {
	EIN        string `json:"ein"`
	Name       string `json:"name"`
	CareOf     string `json:"care_of,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Zip        string `json:"zip,omitempty"`
	Subsection string `json:"subsection,omitempty"`
	Ruling     string `json:"ruling,omitempty"` // YYYYMM
	Status     string `json:"status,omitempty"` // EO status code, e.g. "01"
	TaxPeriod  string `json:"tax_period,omitempty"`
	AssetAmt   int64  `json:"asset_amt"`
	IncomeAmt  int64  `json:"income_amt"`
	RevenueAmt int64  `json:"revenue_amt"`
	NTEECode   string `json:"ntee_code,omitempty"`
	SortName   string `json:"sort_name,omitempty"` // secondary name line, often a DBA
}

// RunStatus is the lifecycle state of a snapshot refresh.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RefreshRun records one Registry Snapshot refresh.
type RefreshRun struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Rows        int64      `json:"rows"`
	Error       string     `json:"error,omitempty"`
}

// Exempt organization status codes treated as active: 01 unconditional,
// 02 conditional, 12 a 4947(a)(2) trust treated as a private foundation,
// 25 a foundation terminating under 507(b)(1)(B). All four are still exempt.
// The Lookup API reports them as bare integers, the bulk file as zero-padded
// strings.
var activeStatusCodes = map[string]bool{
	"1": true, "2": true, "01": true, "02": true, "12": true, "25": true,
}

// DeriveStatus maps a raw EO status code to the irs_status label and the
// revoked flag. An absent code yields "unknown" and a nil revoked flag; a
// code outside the exempt set is reported as revoked.
func DeriveStatus(code string) (status string, revoked *bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown", nil
	}
	if activeStatusCodes[code] {
		return "active", Ptr(false)
	}
	return "revoked", Ptr(true)
}

// SubsectionLabel renders a 501(c) subsection code, e.g. "03" -> "501(c)(3)".
// Returns "" for an empty or non-numeric code.
func SubsectionLabel(code string) string {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n <= 0 {
		return ""
	}
	return "501(c)(" + strconv.Itoa(n) + ")"
}

// FormatRuling turns a YYYYMM ruling stamp into YYYY-MM. Other shapes are
// returned trimmed but otherwise unchanged.
func FormatRuling(ruling string) string {
	ruling = strings.TrimSpace(ruling)
	if len(ruling) == 6 && ruling != "000000" {
		return ruling[:4] + "-" + ruling[4:]
	}
	if ruling == "000000" {
		return ""
	}
	return ruling
}

var nteeMajorGroups = map[byte]string{
	'A': "Arts, Culture & Humanities",
	'B': "Education",
	'C': "Environment",
	'D': "Animal-Related",
	'E': "Health Care",
	'F': "Mental Health & Crisis Intervention",
	'G': "Diseases, Disorders & Medical Disciplines",
	'H': "Medical Research",
	'I': "Crime & Legal-Related",
	'J': "Employment",
	'K': "Food, Agriculture & Nutrition",
	'L': "Housing & Shelter",
	'M': "Public Safety, Disaster Preparedness & Relief",
	'N': "Recreation & Sports",
	'O': "Youth Development",
	'P': "Human Services",
	'Q': "International, Foreign Affairs & National Security",
	'R': "Civil Rights, Social Action & Advocacy",
	'S': "Community Improvement & Capacity Building",
	'T': "Philanthropy, Voluntarism & Grantmaking Foundations",
	'U': "Science & Technology",
	'V': "Social Science",
	'W': "Public & Societal Benefit",
	'X': "Religion-Related",
	'Y': "Mutual & Membership Benefit",
	'Z': "Unknown",
}

// NTEELabel returns the major-group label for an NTEE code such as "M20".
func NTEELabel(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	return nteeMajorGroups[code[0]]
}
