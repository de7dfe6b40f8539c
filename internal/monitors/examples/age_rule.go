// Package examples ships a demonstration monitor for each of the
// platform's alert-rule strategies, variable storage, reactions, and
// external queries, translated one-for-one from
// original_source/example_monitors/*. They are never registered by
// RegisterBuiltins - an operator wires RegisterAll explicitly (e.g. on a
// staging instance) to see every monitor capability exercised end to
// end without writing one.
package examples

import (
	"context"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

func floatPtr(v float64) *float64 { return &v }
func cronPtr(s string) *string    { return &s }

// everyMinute is the cron schedule every example in this package runs
// both its search and update routines on - matches each original's
// "* * * * *".
const everyMinute = "* * * * *"

// NewAgeRule builds a monitor demonstrating domain.AgeRule: a new issue
// is created every five minutes and ages until is_solved closes it just
// before its fifth minute completes, so its alert's priority climbs
// through low/moderate/high/critical purely as a function of how long
// the issue has stayed open. Translated from
// original_source/example_monitors/alert_options/age_rule_monitor/age_rule_monitor.py.
func NewAgeRule() monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		search := func(ctx context.Context) ([]map[string]any, error) {
			now := time.Now()
			issueID := now.Unix() / 300
			return []map[string]any{
				{"id": issueID, "created_at": now.Format(time.RFC3339)},
			}, nil
		}

		isSolved := func(data map[string]any) bool {
			created, ok := data["created_at"].(string)
			if !ok {
				return false
			}
			createdAt, err := time.Parse(time.RFC3339, created)
			if err != nil {
				return false
			}
			return time.Since(createdAt) >= 290*time.Second
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.AgeRule{
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(0),
						Moderate: floatPtr(60),
						High:     floatPtr(120),
						Critical: floatPtr(180),
					},
				},
			},
			Search:   search,
			Update:   func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) { return issues, nil },
			IsSolved: isSolved,
		}, nil
	})
}
