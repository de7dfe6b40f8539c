package monitors

import (
	"context"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// activeIssuesTriggerThreshold is the floor active-issue count a monitor
// must cross before it is even considered, matching the original's
// TRIGGER_THRESHOLD = 500 (a high-volume monitor generating that many
// unsolved issues usually means its is_solved logic or upstream data
// source is broken, not that the world really has 500 live problems).
const activeIssuesTriggerThreshold = 500

// NewHighActiveIssuesCount builds the monitor_high_active_issues_count
// watchdog, protecting the platform from a runaway monitor that keeps
// creating issues faster than they resolve. Notifies through notifier
// (the real deployment wires this to internal/notify/slack, same as the
// original's direct plugins.slack.SlackNotification use). Translated
// from
// original_source/internal_monitors/monitor_high_active_issues_count/monitor_high_active_issues_count.py.
func NewHighActiveIssuesCount(db *store.DB, notifier monitor.Notifier) monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		monitorRepo := store.NewMonitorRepository(db)
		issues := store.NewIssueRepository(db)

		fetch := func(ctx context.Context) ([]map[string]any, error) {
			counts, err := issues.ActiveCountsByMonitor(ctx, activeIssuesTriggerThreshold)
			if err != nil {
				return nil, err
			}
			var out []map[string]any
			for monitorID, count := range counts {
				m, err := monitorRepo.GetByID(ctx, monitorID)
				if err != nil {
					continue
				}
				out = append(out, map[string]any{
					"monitor_id":          m.ID,
					"monitor_name":        m.Name,
					"active_issues_count": count,
				})
			}
			return out, nil
		}

		isSolved := func(data map[string]any) bool {
			count, _ := data["active_issues_count"].(int)
			return float64(count) < activeIssuesTriggerThreshold/2
		}

		module := monitor.Module{
			MonitorOptions: domain.MonitorOptions{
				SearchCron: cronPtr("*/5 * * * *"),
				UpdateCron: cronPtr("*/2 * * * *"),
			},
			IssueOptions: domain.IssueOptions{ModelIDKey: "monitor_id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:  "active_issues_count",
					Operation: domain.OperationGreaterThan,
					PriorityLevels: valueLevels(
						activeIssuesTriggerThreshold,
						2*activeIssuesTriggerThreshold,
						3*activeIssuesTriggerThreshold,
					),
				},
			},
			Search:   fetch,
			Update:   fetch,
			IsSolved: isSolved,
		}
		if notifier != nil {
			module.NotificationOptions = []monitor.Notifier{notifier}
		}
		return module, nil
	})
}
