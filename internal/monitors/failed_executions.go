package monitors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// failedExecutionsErrorThreshold is the minimum consecutive-failure streak
// before a monitor is surfaced at all, matching the original's
// ERROR_THRESHOLD = 5.
const failedExecutionsErrorThreshold = 5

// NewFailedConsecutiveExecutions builds the
// monitor_failed_consecutive_executions watchdog: unlike
// NewConsecutiveFails (which surfaces any streak > 0), this one only
// opens an issue once a monitor has failed at least
// failedExecutionsErrorThreshold times in a row, and scales its alert
// priority off multiples of that threshold. Translated from
// original_source/internal_monitors/monitor_failed_consecutive_executions/monitor_failed_consecutive_executions.py.
func NewFailedConsecutiveExecutions(db *store.DB, log zerolog.Logger) monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		monitors := store.NewMonitorRepository(db)
		executions := store.NewExecutionRepository(db)
		notifier := newInternalNotification(db, "Monitor failed consecutive executions",
			[]string{"monitor_id", "monitor_name", "consecutive_errors"}, log)

		metrics := func(ctx context.Context) ([]map[string]any, error) {
			all, err := monitors.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			var out []map[string]any
			for _, m := range all {
				if !m.Enabled {
					continue
				}
				consecutive, err := executions.RecentConsecutiveFailures(ctx, m.ID, consecutiveFailsLookback)
				if err != nil {
					return nil, err
				}
				if consecutive < failedExecutionsErrorThreshold {
					continue
				}
				out = append(out, map[string]any{
					"monitor_id":         m.ID,
					"monitor_name":       m.Name,
					"monitor_enabled":    m.Enabled,
					"consecutive_errors": consecutive,
				})
			}
			return out, nil
		}

		search := metrics

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			active := make(map[int64]bool, len(issues))
			for _, row := range issues {
				if id, ok := row["monitor_id"].(int64); ok {
					active[id] = true
				}
			}
			all, err := metrics(ctx)
			if err != nil {
				return nil, err
			}
			var out []map[string]any
			for _, row := range all {
				if id, ok := row["monitor_id"].(int64); ok && active[id] {
					out = append(out, row)
				}
			}
			return out, nil
		}

		isSolved := func(data map[string]any) bool {
			enabled, _ := data["monitor_enabled"].(bool)
			consecutive, _ := data["consecutive_errors"].(int)
			return consecutive < failedExecutionsErrorThreshold || !enabled
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{
				SearchCron: cronPtr("*/5 * * * *"),
				UpdateCron: cronPtr("*/2 * * * *"),
			},
			IssueOptions: domain.IssueOptions{ModelIDKey: "monitor_id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:  "consecutive_errors",
					Operation: domain.OperationGreaterThan,
					PriorityLevels: valueLevels(
						failedExecutionsErrorThreshold-1,
						failedExecutionsErrorThreshold*2-1,
						failedExecutionsErrorThreshold*3-1,
					),
				},
			},
			NotificationOptions: []monitor.Notifier{notifier},
			Search:              search,
			Update:              update,
			IsSolved:            isSolved,
		}, nil
	})
}
