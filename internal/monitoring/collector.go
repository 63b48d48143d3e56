// Package monitoring watches dataset freshness and refresh health and
// posts alerts to a webhook when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/verify"
)

// HealthSnapshot holds a point-in-time view of dataset health.
type HealthSnapshot struct {
	// Refresh runs within the lookback window.
	RefreshTotal    int    `json:"refresh_total"`
	RefreshComplete int    `json:"refresh_complete"`
	RefreshFailed   int    `json:"refresh_failed"`
	RefreshRunning  int    `json:"refresh_running"`
	LastError       string `json:"last_error,omitempty"`

	// Loaded datasets.
	RegistryOrgs     int           `json:"registry_orgs"`
	RegistryAge      time.Duration `json:"registry_age"`
	FilingIndexEINs  int           `json:"filing_index_eins"`
	FilingIndexYears []int         `json:"filing_index_years,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister lists refresh runs, newest first.
type RunLister interface {
	ListRefreshes(ctx context.Context, limit int) ([]model.RefreshRun, error)
}

// StatusProvider reports the datasets currently serving.
type StatusProvider interface {
	Status() verify.Status
}

// Collector gathers health from the run log and the live service.
type Collector struct {
	runs   RunLister
	status StatusProvider
	now    func() time.Time
}

// NewCollector creates a collector. runs may be nil when no store is configured.
func NewCollector(runs RunLister, status StatusProvider) *Collector {
	return &Collector{runs: runs, status: status, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	now := c.now().UTC()
	snap := &HealthSnapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	if c.runs != nil {
		runs, err := c.runs.ListRefreshes(ctx, 1000)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list refreshes")
		}
		for _, r := range runs {
			if r.StartedAt.Before(cutoff) {
				continue
			}
			snap.RefreshTotal++
			switch r.Status {
			case model.RunStatusComplete:
				snap.RefreshComplete++
			case model.RunStatusFailed:
				snap.RefreshFailed++
				if snap.LastError == "" {
					snap.LastError = r.Error
				}
			case model.RunStatusRunning:
				snap.RefreshRunning++
			}
		}
	}

	st := c.status.Status()
	snap.RegistryOrgs = st.RegistryOrgs
	if !st.RegistryBuiltAt.IsZero() {
		snap.RegistryAge = now.Sub(st.RegistryBuiltAt)
	}
	snap.FilingIndexEINs = st.FilingIndexEINs
	snap.FilingIndexYears = st.FilingIndexYears

	return snap, nil
}
