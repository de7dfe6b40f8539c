package monitors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/store"
)

// logNotifier is the Go analogue of
// notifications/internal_monitor_notification.py: a lightweight Notifier
// for the platform's own self-monitoring monitors, which have no business
// paging an external channel - it records a Notification row (so the
// admin surface can list it like any other) and logs at warn level
// instead of calling out to Slack.
type logNotifier struct {
	db     *store.DB
	name   string
	fields []string
	log    zerolog.Logger
}

// newInternalNotification builds the internal_monitor_notification
// wrapper, parameterized the same way the original is: a display name and
// the issue data fields worth surfacing.
func newInternalNotification(db *store.DB, name string, issuesFields []string, log zerolog.Logger) *logNotifier {
	return &logNotifier{db: db, name: name, fields: issuesFields, log: log.With().Str("notifier", "internal").Logger()}
}

func (n *logNotifier) Notify(ctx context.Context, alert domain.Alert, issues []domain.Issue) error {
	event := n.log.Warn().
		Str("monitor_notification", n.name).
		Int64("alert_id", alert.ID).
		Int("priority", int(alert.Priority)).
		Int("issue_count", len(issues))
	for _, issue := range issues {
		for _, field := range n.fields {
			if v, ok := issue.Data[field]; ok {
				event = event.Interface(field, v)
			}
		}
	}
	event.Msg("internal monitor alert")

	notifications := store.NewNotificationRepository(n.db)
	sess, err := n.db.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = notifications.Create(ctx, sess, alert.MonitorID, alert.ID, "internal:"+n.name, nil, time.Now(),
		func(int64, string) error { return nil })
	if err != nil {
		_ = sess.Rollback()
		return err
	}
	return sess.Commit()
}

func (n *logNotifier) ReactionsList() domain.ReactionOptions { return nil }
