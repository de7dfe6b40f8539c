package examples

import (
	"context"
	"math/rand"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// oscillate moves value by a random 10-25 unit step in direction (+1 or
// -1), flipping direction once it nears 0 or 100 and clamping to that
// range - the shared random walk both ValueRule examples use to drift
// their single issue's metric back and forth across every priority
// threshold, grounded on both value_rule_*_monitor.py's update().
func oscillate(value float64, rising bool) (newValue float64, newRising bool) {
	direction := -1.0
	if rising {
		direction = 1.0
	}
	value += (rand.Float64()*15 + 10) * direction

	switch {
	case value >= 95:
		if value > 100 {
			value = 100
		}
		return value, false
	case value <= 5:
		if value < 0 {
			value = 0
		}
		return value, true
	default:
		return value, rising
	}
}

// NewValueRuleGreaterThan builds a monitor demonstrating domain.ValueRule
// with OperationGreaterThan: a single issue's error_rate oscillates
// between 0 and 100, crossing each configured threshold as it climbs.
// Translated from
// original_source/example_monitors/alert_options/value_rule_greater_than_monitor/value_rule_greater_than_monitor.py.
func NewValueRuleGreaterThan() monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		search := func(ctx context.Context) ([]map[string]any, error) {
			return []map[string]any{{"id": "sample issue", "error_rate": 0.0, "rising": true}}, nil
		}

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			row := issues[0]
			rate, _ := row["error_rate"].(float64)
			rising, _ := row["rising"].(bool)
			rate, rising = oscillate(rate, rising)
			row["error_rate"], row["rising"] = rate, rising
			return []map[string]any{row}, nil
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:  "error_rate",
					Operation: domain.OperationGreaterThan,
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(10),
						Moderate: floatPtr(25),
						High:     floatPtr(50),
						Critical: floatPtr(75),
					},
				},
			},
			Search:   search,
			Update:   update,
			IsSolved: func(map[string]any) bool { return false },
		}, nil
	})
}

// NewValueRuleLesserThan builds a monitor demonstrating domain.ValueRule
// with OperationLesserThan: a single issue's success_rate oscillates
// between 100 and 0, crossing each configured threshold as it falls.
// Translated from
// original_source/example_monitors/alert_options/value_rule_lesser_than_monitor/value_rule_lesser_than_monitor.py.
func NewValueRuleLesserThan() monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		search := func(ctx context.Context) ([]map[string]any, error) {
			return []map[string]any{{"id": "sample issue", "success_rate": 100.0, "rising": false}}, nil
		}

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			row := issues[0]
			rate, _ := row["success_rate"].(float64)
			rising, _ := row["rising"].(bool)
			rate, rising = oscillate(rate, rising)
			row["success_rate"], row["rising"] = rate, rising
			return []map[string]any{row}, nil
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:  "success_rate",
					Operation: domain.OperationLesserThan,
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(90),
						Moderate: floatPtr(75),
						High:     floatPtr(50),
						Critical: floatPtr(25),
					},
				},
			},
			Search:   search,
			Update:   update,
			IsSolved: func(map[string]any) bool { return false },
		}, nil
	})
}
