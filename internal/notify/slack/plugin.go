package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/executor"
)

// RegisterPlugin binds n's resend action into plugins under the exact
// dotted name the request handler resolves, the Go equivalent of the
// original's plugins.attribute_select("plugin.slack.resend_notifications").
func RegisterPlugin(plugins *executor.PluginRegistry, n *Notification) {
	plugins.Register("plugin.slack.resend_notifications", n.ResendChannel)
}

// ResendChannel clears every active notification targeting n's channel
// and re-sends it from the triggering alert's current state, translated
// from original_source/src/plugins/slack/actions/actions.py's
// resend_notifications/_resend_notification. Registered against
// executor.PluginRegistry as "plugin.slack.resend_notifications".
func (n *Notification) ResendChannel(ctx context.Context, params map[string]any) error {
	channel, _ := params["channel"].(string)
	if channel == "" {
		channel = n.Channel
	}

	notifications, err := n.notifications.GetActiveByTarget(ctx, "slack:"+channel)
	if err != nil {
		return err
	}

	var firstErr error
	for _, notif := range notifications {
		if err := n.resendOne(ctx, notif); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resend notification %d: %w", notif.ID, err)
		}
	}
	return firstErr
}

// resendOne deletes notif's previous Slack message (best-effort - it may
// already be gone) and re-renders its alert from scratch, same as the
// original's clear then re-send.
func (n *Notification) resendOne(ctx context.Context, notif domain.Notification) error {
	if channel, ok := notif.Data["channel"].(string); ok {
		if ts, ok := notif.Data["ts"].(string); ok && ts != "" {
			_ = n.client.Delete(ctx, channel, ts)
		}
	}

	sess, err := n.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := n.notifications.Close(ctx, sess, notif.ID, time.Now(), func(int64, string) error { return nil }); err != nil {
		_ = sess.Rollback()
		return err
	}
	if err := sess.Commit(); err != nil {
		return err
	}

	return n.handleAlertEvent(ctx, notif.AlertID)
}
