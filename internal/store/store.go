// Package store persists the registry snapshot and the log of snapshot
// refreshes so a restarted service can serve lookups before the next
// scheduled import.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// ErrNotFound is returned when a refresh run id does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the durable backend.
type Store interface {
	// Registry snapshot
	ReplaceRegistry(ctx context.Context, orgs []model.RegistryOrg) (int64, error)
	LoadRegistry(ctx context.Context) ([]model.RegistryOrg, error)

	// Refresh runs
	StartRefresh(ctx context.Context, source string) (*model.RefreshRun, error)
	CompleteRefresh(ctx context.Context, id string, rows int64) error
	FailRefresh(ctx context.Context, id string, cause error) error
	LastRefresh(ctx context.Context) (*model.RefreshRun, error)
	ListRefreshes(ctx context.Context, limit int) ([]model.RefreshRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the backend for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

var registryColumns = []string{
	"ein", "name", "care_of", "street", "city", "state", "zip", "subsection", "ruling",
	"status", "tax_period", "asset_amt", "income_amt", "revenue_amt", "ntee_code", "sort_name",
}

func registryRow(o model.RegistryOrg) []any {
	return []any{
		o.EIN, o.Name, o.CareOf, o.Street, o.City, o.State, o.Zip, o.Subsection, o.Ruling,
		o.Status, o.TaxPeriod, o.AssetAmt, o.IncomeAmt, o.RevenueAmt, o.NTEECode, o.SortName,
	}
}

func registryDest(o *model.RegistryOrg) []any {
	return []any{
		&o.EIN, &o.Name, &o.CareOf, &o.Street, &o.City, &o.State, &o.Zip, &o.Subsection, &o.Ruling,
		&o.Status, &o.TaxPeriod, &o.AssetAmt, &o.IncomeAmt, &o.RevenueAmt, &o.NTEECode, &o.SortName,
	}
}

func errorText(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
