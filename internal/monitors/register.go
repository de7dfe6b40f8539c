package monitors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/executor"
	"github.com/aristath/sentinel/internal/loader"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/notify/slack"
	"github.com/aristath/sentinel/internal/store"
)

// RegisterBuiltins registers every self-monitoring watchdog this package
// provides against l, the Go equivalent of the original dropping a .py
// file into its internal_monitors/ directory for the loader to discover.
// slackNotifier may be nil (no SLACK_TOKEN/SLACK_MAIN_CHANNEL configured);
// every other watchdog always registers.
func RegisterBuiltins(ctx context.Context, l *loader.Loader, db *store.DB, slackNotifier monitor.Notifier, executorMonitorTimeout time.Duration, dataDir string, log zerolog.Logger) error {
	builtins := map[string]monitor.Factory{
		"monitor_consecutive_fails":             NewConsecutiveFails(db, log),
		"monitor_failed_consecutive_executions": NewFailedConsecutiveExecutions(db, log),
		"monitor_high_active_issues_count":      NewHighActiveIssuesCount(db, slackNotifier),
		"monitor_long_time_queued":              NewLongTimeQueued(db, executorMonitorTimeout),
		"active_notification_alert_solved":      NewActiveNotificationAlertSolved(db),
		"host_resources":                        NewHostResources(dataDir),
	}

	for name, factory := range builtins {
		if _, err := l.Register(ctx, name, factory, nil); err != nil {
			return err
		}
	}
	return nil
}

// NewSlackNotifier builds a Slack notifier targeting channel with token,
// or returns nil if either is empty. Its result can be passed to
// RegisterBuiltins and RegisterSlackPlugin; cmd/sentinelad does not call
// it and builds its own notifier with slack.New instead.
func NewSlackNotifier(token, channel string, db *store.DB) *slack.Notification {
	if token == "" || channel == "" {
		return nil
	}
	return slack.New(slack.NewClient(token), db, channel, "Sentinel self-monitoring", []string{
		"monitor_id", "monitor_name", "failed_count", "consecutive_errors", "active_issues_count",
		"seconds_queued", "notification_id", "notification_status", "cpu_percent", "memory_percent", "disk_percent",
	})
}

// RegisterSlackPlugin binds notifier's resend action into plugins, the
// "plugin.slack.resend_notifications" executor.PluginAction an operator
// triggers to force every active notification on notifier's channel to
// re-render. A nil notifier (Slack disabled) is a no-op.
func RegisterSlackPlugin(plugins *executor.PluginRegistry, notifier *slack.Notification) {
	if notifier == nil {
		return
	}
	slack.RegisterPlugin(plugins, notifier)
}
