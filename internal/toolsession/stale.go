// ABOUTME: Read-only report of external connections stuck in the initiated state
// ABOUTME: The provider has no delete call, so stale entries are listed and never removed

package toolsession

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Connection is one authorization handshake known to the external provider.
type Connection struct {
	ID        string    `json:"id"`
	App       string    `json:"app"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectionProvider lists a user's connections that were initiated but never completed.
type ConnectionProvider interface {
	ListInitiatedConnections(ctx context.Context, userID string) ([]Connection, error)
}

// StaleReport groups stale connections by external application.
type StaleReport struct {
	TotalStale       int            `json:"total_stale"`
	OlderThanMinutes int            `json:"older_than_minutes"`
	ByApp            map[string]int `json:"by_app"`
	Summary          []string       `json:"summary"`
}

// ListStaleConnections reports the user's initiated connections older than
// olderThanMinutes. A non-positive threshold uses the configured default.
func (m *Manager) ListStaleConnections(ctx context.Context, userID string, olderThanMinutes int) (*StaleReport, error) {
	if m.connections == nil {
		return nil, ErrNoConnectionProvider
	}
	if olderThanMinutes <= 0 {
		olderThanMinutes = int(m.staleAfter / time.Minute)
	}

	conns, err := m.connections.ListInitiatedConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing initiated connections: %w", err)
	}

	cutoff := m.now().Add(-time.Duration(olderThanMinutes) * time.Minute)
	report := &StaleReport{
		OlderThanMinutes: olderThanMinutes,
		ByApp:            make(map[string]int),
		Summary:          []string{},
	}
	oldest := make(map[string]time.Time)
	for _, c := range conns {
		if !c.CreatedAt.Before(cutoff) {
			continue
		}
		app := c.App
		if app == "" {
			app = "unknown"
		}
		report.TotalStale++
		report.ByApp[app]++
		if o, ok := oldest[app]; !ok || c.CreatedAt.Before(o) {
			oldest[app] = c.CreatedAt
		}
	}

	apps := make([]string, 0, len(report.ByApp))
	for app := range report.ByApp {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	for _, app := range apps {
		age := m.now().Sub(oldest[app]).Truncate(time.Minute)
		report.Summary = append(report.Summary,
			fmt.Sprintf("%s: %d stale connection(s), oldest %s", app, report.ByApp[app], age))
	}

	if report.TotalStale > 0 {
		m.logger.Info("stale connections found",
			"user_id", userID,
			"total_stale", report.TotalStale,
			"older_than_minutes", olderThanMinutes,
		)
	}
	return report, nil
}
