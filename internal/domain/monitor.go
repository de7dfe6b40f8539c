package domain

import (
	"time"

	"github.com/aristath/sentinel/internal/clock"
)

// Monitor is the root entity: a named, schedulable unit of code that
// searches for and updates issues. Its code (search/update/is_solved
// functions, options) is not part of this struct - it is looked up by ID
// through the monitor registry (internal/registry), keeping this type
// free of any code-loading concern.
type Monitor struct {
	ID               int64
	Name             string
	Enabled          bool
	SearchExecutedAt time.Time
	UpdateExecutedAt time.Time
	Queued           bool
	Running          bool
	LastHeartbeat    time.Time

	ActiveIssues []Issue
	ActiveAlerts []Alert
}

// IsSearchTriggered reports whether the monitor's search routine is due,
// given its configured cron and the current time. A monitor that is
// disabled, already queued or already running is never triggered -
// mirrors the original's Monitor._is_triggered guard.
func (m Monitor) IsSearchTriggered(searchCron string, now time.Time) bool {
	return m.isTriggered(searchCron, m.SearchExecutedAt, now)
}

// IsUpdateTriggered reports whether the monitor's update routine is due.
func (m Monitor) IsUpdateTriggered(updateCron string, now time.Time) bool {
	return m.isTriggered(updateCron, m.UpdateExecutedAt, now)
}

func (m Monitor) isTriggered(cron string, lastExecution time.Time, now time.Time) bool {
	if cron == "" {
		return false
	}
	if !m.Enabled || m.Queued || m.Running {
		return false
	}
	if lastExecution.IsZero() {
		return true
	}
	triggered, err := clock.IsTriggered(cron, lastExecution, now)
	if err != nil {
		return false
	}
	return triggered
}

// AddIssues appends issues to the monitor's in-memory active-issues list.
func (m *Monitor) AddIssues(issues ...Issue) {
	m.ActiveIssues = append(m.ActiveIssues, issues...)
}

// AddAlert appends an alert to the monitor's in-memory active-alerts list.
func (m *Monitor) AddAlert(alert Alert) {
	m.ActiveAlerts = append(m.ActiveAlerts, alert)
}

// Clear empties the monitor's in-memory active issues and alerts, called
// once the routine that loaded them has finished using them.
func (m *Monitor) Clear() {
	m.ActiveIssues = nil
	m.ActiveAlerts = nil
}
