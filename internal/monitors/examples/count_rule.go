package examples

import (
	"context"
	"math/rand"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// NewCountRule builds a monitor demonstrating domain.CountRule: five
// issues are created every run, each carrying a random "value", and every
// fifth minute most of them have a 90% chance of being nudged to the
// value (1) that is_solved treats as resolved - showing the alert's
// priority track the fluctuating count of still-active issues. Translated
// from
// original_source/example_monitors/alert_options/count_rule_monitor/count_rule_monitor.go.
func NewCountRule() monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		search := func(ctx context.Context) ([]map[string]any, error) {
			rows := make([]map[string]any, 5)
			for i := range rows {
				rows[i] = map[string]any{
					"id":    rand.Intn(100000) + 1,
					"value": rand.Intn(9) + 1,
				}
			}
			return rows, nil
		}

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			solvingWindow := (time.Now().Unix()/60)%5 == 0
			for _, row := range issues {
				if solvingWindow && rand.Float64() < 0.9 {
					row["value"] = 1
				} else {
					row["value"] = rand.Intn(9) + 1
				}
			}
			return issues, nil
		}

		isSolved := func(data map[string]any) bool {
			v, ok := data["value"].(int)
			return ok && v == 1
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.CountRule{
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(0),
						Moderate: floatPtr(5),
						High:     floatPtr(10),
						Critical: floatPtr(15),
					},
				},
			},
			Search:   search,
			Update:   update,
			IsSolved: isSolved,
		}, nil
	})
}
