package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorIsSearchTriggeredWhenNeverRun(t *testing.T) {
	m := Monitor{Enabled: true}
	assert.True(t, m.IsSearchTriggered("*/1 * * * *", time.Now()))
}

func TestMonitorIsSearchTriggeredRespectsCronWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 30, 0, time.UTC)
	m := Monitor{Enabled: true, SearchExecutedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	assert.False(t, m.IsSearchTriggered("*/1 * * * *", now))

	m.SearchExecutedAt = time.Date(2026, 1, 1, 9, 58, 0, 0, time.UTC)
	assert.True(t, m.IsSearchTriggered("*/1 * * * *", now))
}

func TestMonitorNotTriggeredWhenDisabledQueuedOrRunning(t *testing.T) {
	now := time.Now()
	m := Monitor{Enabled: false}
	assert.False(t, m.IsSearchTriggered("*/1 * * * *", now))

	m = Monitor{Enabled: true, Queued: true}
	assert.False(t, m.IsSearchTriggered("*/1 * * * *", now))

	m = Monitor{Enabled: true, Running: true}
	assert.False(t, m.IsSearchTriggered("*/1 * * * *", now))
}

func TestMonitorNotTriggeredWithoutCron(t *testing.T) {
	m := Monitor{Enabled: true}
	assert.False(t, m.IsSearchTriggered("", time.Now()))
}

func TestMonitorAddAndClear(t *testing.T) {
	m := &Monitor{}
	m.AddIssues(Issue{ID: 1}, Issue{ID: 2})
	m.AddAlert(Alert{ID: 1})
	assert.Len(t, m.ActiveIssues, 2)
	assert.Len(t, m.ActiveAlerts, 1)

	m.Clear()
	assert.Empty(t, m.ActiveIssues)
	assert.Empty(t, m.ActiveAlerts)
}
