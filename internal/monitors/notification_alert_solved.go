package monitors

import (
	"context"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// NewActiveNotificationAlertSolved builds the
// active_notification_alert_solved watchdog. The controller already runs
// a notifications_alert_solved procedure that auto-closes every
// Notification whose Alert has solved (internal/controller/procedures.go)
// - this monitor is the visibility layer on top of that auto-close: it
// opens an issue the moment a notification is found still open past its
// alert solving, and its AgeRule priority escalates for as long as that
// stays true. update re-reads each flagged notification's live status on
// every cycle, so the moment the procedure (or any other path) closes it,
// is_solved sees status=closed and the issue resolves itself - the
// monitor never closes a notification itself, leaving that exclusively
// to the procedure, same separation of concerns the original keeps
// between its reaction (not reproduced here: this monitor registers no
// ReactionOptions) and its own auto-close path.
// Translated from
// original_source/internal_monitors/active_notification_alert_solved/active_notification_alert_solved.py.
func NewActiveNotificationAlertSolved(db *store.DB) monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		notifications := store.NewNotificationRepository(db)

		search := func(ctx context.Context) ([]map[string]any, error) {
			stuck, err := notifications.GetActiveLinkedToSolvedAlerts(ctx)
			if err != nil {
				return nil, err
			}
			var out []map[string]any
			for _, n := range stuck {
				out = append(out, notificationRow(n))
			}
			return out, nil
		}

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			var out []map[string]any
			for _, row := range issues {
				id, ok := row["notification_id"].(int64)
				if !ok {
					continue
				}
				n, err := notifications.GetByID(ctx, id)
				if err != nil {
					continue
				}
				out = append(out, notificationRow(n))
			}
			return out, nil
		}

		isSolved := func(data map[string]any) bool {
			status, _ := data["notification_status"].(string)
			return status == string(domain.NotificationClosed)
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{
				SearchCron: cronPtr("*/30 * * * *"),
				UpdateCron: cronPtr("*/5 * * * *"),
			},
			IssueOptions: domain.IssueOptions{ModelIDKey: "notification_id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.AgeRule{
					PriorityLevels: domain.PriorityLevels{
						Moderate: floatPtr(360),
						High:     floatPtr(420),
						Critical: floatPtr(480),
					},
				},
			},
			Search:   search,
			Update:   update,
			IsSolved: isSolved,
		}, nil
	})
}

func notificationRow(n domain.Notification) map[string]any {
	return map[string]any{
		"notification_id":     n.ID,
		"notification_status": string(n.Status),
	}
}
