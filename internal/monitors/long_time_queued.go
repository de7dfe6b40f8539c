package monitors

import (
	"context"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// NewLongTimeQueued builds the monitor_long_time_queued watchdog: a
// monitor that stays queued or running well past executorMonitorTimeout
// is either stuck behind a dead executor or caught in a crash loop. The
// original measures this against how long a monitor has sat queued;
// this codebase has no separate queued_at column, so last_heartbeat
// (stamped both when a run starts and periodically while it runs, see
// internal/executor's startExecutionHeartbeat) doubles as the staleness
// signal - the same one the monitors_stuck controller procedure already
// uses to auto-recover a monitor, with this monitor instead surfacing
// the condition as a visible, prioritized alert before that recovery
// kicks in. Translated from
// original_source/internal_monitors/monitor_long_time_queued/monitor_long_time_queued.py.
func NewLongTimeQueued(db *store.DB, executorMonitorTimeout time.Duration) monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		monitors := store.NewMonitorRepository(db)
		timeoutSeconds := executorMonitorTimeout.Seconds()
		tolerance := 5 * executorMonitorTimeout

		fetch := func(ctx context.Context) ([]map[string]any, error) {
			stuck, err := monitors.GetStuck(ctx, time.Now(), tolerance)
			if err != nil {
				return nil, err
			}
			var out []map[string]any
			for _, m := range stuck {
				out = append(out, queuedRow(m))
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
				out = append(out, queuedRow(m))
			}
			return out, nil
		}

		// Issue is solved when the monitor is no longer queued/running, or
		// its heartbeat was refreshed within the last two minutes - mirrors
		// the original's is_solved exactly.
		isSolved := func(data map[string]any) bool {
			queued, _ := data["monitor_queued"].(bool)
			secondsQueued, _ := data["seconds_queued"].(int)
			return !queued || secondsQueued < 120
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{
				SearchCron: cronPtr("*/1 * * * *"),
				UpdateCron: cronPtr("* * * * *"),
			},
			IssueOptions: domain.IssueOptions{ModelIDKey: "monitor_id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:  "seconds_queued",
					Operation: domain.OperationGreaterThan,
					PriorityLevels: valueLevels(
						12*timeoutSeconds,
						15*timeoutSeconds,
						20*timeoutSeconds,
					),
				},
			},
			Search:   fetch,
			Update:   update,
			IsSolved: isSolved,
		}, nil
	})
}

func queuedRow(m domain.Monitor) map[string]any {
	return map[string]any{
		"monitor_id":     m.ID,
		"monitor_name":   m.Name,
		"monitor_queued": m.Queued || m.Running,
		"seconds_queued": int(time.Since(m.LastHeartbeat).Seconds()),
	}
}
