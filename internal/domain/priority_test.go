package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestCalculatePriorityAgeRule(t *testing.T) {
	reference := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := AgeRule{PriorityLevels: PriorityLevels{
		Critical: ptr(3600),
		Low:      ptr(60),
	}}
	issues := []IssueAgeSeconds{
		{CreatedAt: reference.Add(-2 * time.Hour)},
	}

	got := CalculatePriority(rule, issues, reference)
	if assert.NotNil(t, got) {
		assert.Equal(t, PriorityCritical, *got)
	}
}

func TestCalculatePriorityAgeRuleNoMatch(t *testing.T) {
	reference := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := AgeRule{PriorityLevels: PriorityLevels{Critical: ptr(3600)}}
	issues := []IssueAgeSeconds{{CreatedAt: reference.Add(-10 * time.Second)}}

	assert.Nil(t, CalculatePriority(rule, issues, reference))
}

func TestCalculatePriorityCountRule(t *testing.T) {
	rule := CountRule{PriorityLevels: PriorityLevels{
		High: ptr(1),
		Low:  ptr(0),
	}}
	issues := []IssueAgeSeconds{{}, {}}

	got := CalculatePriority(rule, issues, time.Now())
	if assert.NotNil(t, got) {
		assert.Equal(t, PriorityHigh, *got)
	}
}

func TestCalculatePriorityValueRuleGreaterThan(t *testing.T) {
	rule := ValueRule{
		ValueKey:       "lag_seconds",
		Operation:      OperationGreaterThan,
		PriorityLevels: PriorityLevels{Critical: ptr(100)},
	}
	issues := []IssueAgeSeconds{{Data: map[string]any{"lag_seconds": 150.0}}}

	got := CalculatePriority(rule, issues, time.Now())
	if assert.NotNil(t, got) {
		assert.Equal(t, PriorityCritical, *got)
	}
}

func TestCalculatePriorityValueRuleLesserThan(t *testing.T) {
	rule := ValueRule{
		ValueKey:       "free_space_pct",
		Operation:      OperationLesserThan,
		PriorityLevels: PriorityLevels{Critical: ptr(5)},
	}
	issues := []IssueAgeSeconds{{Data: map[string]any{"free_space_pct": 2.0}}}

	got := CalculatePriority(rule, issues, time.Now())
	if assert.NotNil(t, got) {
		assert.Equal(t, PriorityCritical, *got)
	}
}
