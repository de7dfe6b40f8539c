package monitors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// consecutiveFailsLookback caps how far back RecentConsecutiveFailures
// walks, matching the original's search_query.sql's own implicit window.
const consecutiveFailsLookback = 20

// NewConsecutiveFails builds the monitor_consecutive_fails watchdog:
// one issue per monitor currently failing its runs, with an alert
// priority that climbs with the streak length. Translated from
// original_source/internal_monitors/monitor_consecutive_fails/monitor_consecutive_fails.py.
func NewConsecutiveFails(db *store.DB, log zerolog.Logger) monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		monitors := store.NewMonitorRepository(db)
		executions := store.NewExecutionRepository(db)
		notifier := newInternalNotification(db, "Monitor with high consecutive fails",
			[]string{"monitor_id", "monitor_name", "failed_count"}, log)

		search := func(ctx context.Context) ([]map[string]any, error) {
			all, err := monitors.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			var out []map[string]any
			for _, m := range all {
				if !m.Enabled {
					continue
				}
				failed, err := executions.RecentConsecutiveFailures(ctx, m.ID, consecutiveFailsLookback)
				if err != nil {
					return nil, err
				}
				if failed > 0 {
					out = append(out, failsRow(m, failed))
				}
			}
			return out, nil
		}

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			var out []map[string]any
			for _, row := range issues {
				id, ok := row["monitor_id"].(int64)
				if !ok {
					continue
				}
				m, err := monitors.GetByID(ctx, id)
				if err != nil {
					continue
				}
				failed, err := executions.RecentConsecutiveFailures(ctx, m.ID, consecutiveFailsLookback)
				if err != nil {
					return nil, err
				}
				out = append(out, failsRow(m, failed))
			}
			return out, nil
		}

		isSolved := func(data map[string]any) bool {
			enabled, _ := data["monitor_enabled"].(bool)
			failed, _ := data["failed_count"].(int)
			return !enabled || failed == 0
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{
				SearchCron: cronPtr("*/5 * * * *"),
				UpdateCron: cronPtr("*/2 * * * *"),
			},
			IssueOptions: domain.IssueOptions{ModelIDKey: "monitor_id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:       "failed_count",
					Operation:      domain.OperationGreaterThan,
					PriorityLevels: valueLevels(3, 5, 10),
				},
			},
			NotificationOptions: []monitor.Notifier{notifier},
			Search:              search,
			Update:              update,
			IsSolved:            isSolved,
		}, nil
	})
}

func failsRow(m domain.Monitor, failed int) map[string]any {
	return map[string]any{
		"monitor_id":      m.ID,
		"monitor_name":    m.Name,
		"monitor_enabled": m.Enabled,
		"failed_count":    failed,
	}
}
