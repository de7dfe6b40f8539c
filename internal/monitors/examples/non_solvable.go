package examples

import (
	"context"
	"math/rand"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// NewNonSolvable builds a monitor demonstrating a permanent, manually
// resolved issue class: every run "finds" one newly deactivated user.
// IssueOptions.Solvable is false and Unique is true, so once an id has
// been seen it is never re-created and never auto-closes - the alert it
// drives can only be cleared through the acknowledge/lock/solve request
// actions (internal/executor), not by is_solved. Translated from
// original_source/example_monitors/non_solvable_issues_monitor/non_solvable_issues_monitor.py.
func NewNonSolvable() monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		search := func(ctx context.Context) ([]map[string]any, error) {
			return []map[string]any{
				{
					"id":          rand.Intn(100000) + 1,
					"username":    randomUsername(16),
					"deactivated": true,
				},
			}, nil
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr("*/5 * * * *"), UpdateCron: cronPtr("*/5 * * * *")},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: false, Unique: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.CountRule{
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(1),
						Moderate: floatPtr(3),
						High:     floatPtr(5),
						Critical: floatPtr(8),
					},
				},
			},
			Search: search,
			Update: func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) { return issues, nil },
		}, nil
	})
}

func randomUsername(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}
