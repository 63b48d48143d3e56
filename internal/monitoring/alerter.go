package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRefreshFailure   AlertType = "refresh_failure"
	AlertSnapshotMissing  AlertType = "snapshot_missing"
	AlertSnapshotStale    AlertType = "snapshot_stale"
	AlertFilingIndexEmpty AlertType = "filing_index_empty"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	if snap.RefreshFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d registry refresh(es) failed in last %dh",
				snap.RefreshFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed":     snap.RefreshFailed,
				"total":      snap.RefreshTotal,
				"last_error": snap.LastError,
			},
			Timestamp: now,
		})
	}

	maxAge := time.Duration(a.cfg.SnapshotMaxAgeHours) * time.Hour
	switch {
	case snap.RegistryOrgs == 0:
		alerts = append(alerts, Alert{
			Type:      AlertSnapshotMissing,
			Severity:  "critical",
			Message:   "No registry snapshot loaded; EIN lookups cannot use the registry and name search is down",
			Timestamp: now,
		})
	case maxAge > 0 && snap.RegistryAge > maxAge:
		alerts = append(alerts, Alert{
			Type:     AlertSnapshotStale,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Registry snapshot is %.0fh old, threshold %dh",
				snap.RegistryAge.Hours(), a.cfg.SnapshotMaxAgeHours,
			),
			Details: map[string]any{
				"age_hours":       snap.RegistryAge.Hours(),
				"threshold_hours": a.cfg.SnapshotMaxAgeHours,
				"orgs":            snap.RegistryOrgs,
			},
			Timestamp: now,
		})
	}

	if snap.FilingIndexEINs == 0 {
		alerts = append(alerts, Alert{
			Type:      AlertFilingIndexEmpty,
			Severity:  "medium",
			Message:   "Filing index is empty; financial and personnel fields fall back to the lookup API",
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
