package model

import "time"

// Origin identifies one of the upstream data sources.
type Origin string

const (
	OriginRegistry  Origin = "irs_bmf"    // IRS Exempt Organizations Business Master File snapshot
	OriginLookupAPI Origin = "propublica" // Nonprofit Explorer JSON API
	OriginFiling    Origin = "irs_990"    // IRS Form 990 e-file archive
)

// Origins lists every origin in a stable order. Index positions are used as
// result slots by the reconciler.
var Origins = []Origin{OriginRegistry, OriginLookupAPI, OriginFiling}

// SourceStatus classifies an adapter's outcome for a single key.
type SourceStatus int

const (
	StatusFound SourceStatus = iota + 1
	StatusNotFound
	StatusUnavailable
)

func (s SourceStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// SourceResult is the output of a single adapter fetch. It is built once by
// the adapter and treated as read-only afterwards.
type SourceResult struct {
	Origin    Origin
	Status    SourceStatus
	FetchedAt time.Time
	// AsOf is the date of the underlying document (snapshot build date, API
	// update stamp, filing tax period). Zero when the origin does not report one.
	AsOf      time.Time
	Staleness time.Duration
	Fields    *Fields
	Err       error
}

// Found builds a Found result stamped with the given fetch time.
func Found(origin Origin, fields *Fields, fetchedAt, asOf time.Time) SourceResult {
	res := SourceResult{
		Origin:    origin,
		Status:    StatusFound,
		FetchedAt: fetchedAt,
		AsOf:      asOf,
		Fields:    fields,
	}
	if !asOf.IsZero() && fetchedAt.After(asOf) {
		res.Staleness = fetchedAt.Sub(asOf)
	}
	return res
}

// NotFound builds an authoritative absence result.
func NotFound(origin Origin, fetchedAt time.Time) SourceResult {
	return SourceResult{Origin: origin, Status: StatusNotFound, FetchedAt: fetchedAt}
}

// Unavailable builds a degraded result carrying the failure cause.
func Unavailable(origin Origin, fetchedAt time.Time, err error) SourceResult {
	return SourceResult{Origin: origin, Status: StatusUnavailable, FetchedAt: fetchedAt, Err: err}
}

// DateString returns the as-of date recorded in data_sources for this result.
func (r SourceResult) DateString() string {
	if !r.AsOf.IsZero() {
		return r.AsOf.UTC().Format(time.DateOnly)
	}
	return r.FetchedAt.UTC().Format(time.DateOnly)
}

// Fields is the partial record an adapter contributes. Nil pointers and
// empty slices mean the origin had no value.
type Fields struct {
	LegalName *string
	AKANames  []string

	IRSStatus  *string
	Subsection *string
	RulingDate *string
	Revoked    *bool

	NTEECode *string

	Street *string
	City   *string
	State  *string
	Zip    *string

	TaxYear          *int
	Revenue          *int64
	Expenses         *int64
	Assets           *int64
	Liabilities      *int64
	RevenueBreakdown *RevenueBreakdown
	ExpenseBreakdown *ExpenseBreakdown

	Personnel []Person

	ProPublicaURL *string
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// StrPtr returns nil for an empty string, otherwise a pointer to s.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
