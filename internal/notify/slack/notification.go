package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

var _ monitor.Notifier = (*Notification)(nil)

// Notification is a monitor.Notifier that posts, updates and closes a
// Slack message for an alert, translated from
// original_source/src/plugins/slack/notifications/slack_notification.py's
// SlackNotification.
type Notification struct {
	Channel              string
	Title                string
	IssuesFields         []string
	MinPriorityToSend    domain.AlertPriority
	Mention              *string
	MentionOnUpdate      bool
	MinPriorityToMention domain.AlertPriority
	IssueShowLimit       int

	client        *Client
	db            *store.DB
	alerts        *store.AlertRepository
	issues        *store.IssueRepository
	notifications *store.NotificationRepository
}

// New builds a Notification targeting channel, with the original's
// defaults (min_priority_to_send=low, min_priority_to_mention=moderate,
// issue_show_limit=10) applied unless overridden on the returned value.
func New(client *Client, db *store.DB, channel, title string, issuesFields []string) *Notification {
	return &Notification{
		Channel:              channel,
		Title:                title,
		IssuesFields:         issuesFields,
		MinPriorityToSend:    domain.PriorityLow,
		MinPriorityToMention: domain.PriorityModerate,
		IssueShowLimit:       10,

		client:        client,
		db:            db,
		alerts:        store.NewAlertRepository(db),
		issues:        store.NewIssueRepository(db),
		notifications: store.NewNotificationRepository(db),
	}
}

// shouldSend reports whether alert's priority crosses MinPriorityToSend -
// remember lower AlertPriority values are more severe, so "crossing the
// threshold" means at least as severe (numerically <=).
func (n *Notification) shouldSend(alert domain.Alert) bool {
	return alert.Priority <= n.MinPriorityToSend
}

// shouldMention reports whether alert warrants the @mention: active,
// not covered by a prior acknowledgement, and at least as severe as
// MinPriorityToMention - mirrors _should_have_mention.
func (n *Notification) shouldMention(alert domain.Alert) bool {
	if n.Mention == nil || alert.Status != domain.AlertActive {
		return false
	}
	if alert.IsPriorityAcknowledged() {
		return false
	}
	return alert.Priority <= n.MinPriorityToMention
}

// Notify renders alert to Slack: sending a fresh message the first time it
// crosses MinPriorityToSend, updating that message on every later call,
// and closing the underlying Notification once the alert solves. Mirrors
// handle_event/_handle_slack_notification.
func (n *Notification) Notify(ctx context.Context, alert domain.Alert, issues []domain.Issue) error {
	existing, err := n.findActive(ctx, alert.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		if alert.Status == domain.AlertSolved || !n.shouldSend(alert) {
			return nil
		}
		return n.sendNew(ctx, alert, issues)
	}

	if err := n.updateExisting(ctx, *existing, alert, issues); err != nil {
		return err
	}

	if alert.Status == domain.AlertSolved {
		return n.closeNotification(ctx, *existing)
	}
	return nil
}

func (n *Notification) findActive(ctx context.Context, alertID int64) (*domain.Notification, error) {
	active, err := n.notifications.GetActiveByAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	for _, notif := range active {
		if notif.Target == "slack:"+n.Channel {
			return &notif, nil
		}
	}
	return nil, nil
}

func (n *Notification) sendNew(ctx context.Context, alert domain.Alert, issues []domain.Issue) error {
	text, attachments := n.render(alert, issues)
	channel, ts, err := n.client.Send(ctx, n.Channel, text, attachments, "")
	if err != nil {
		return err
	}

	data := map[string]any{"channel": channel, "ts": ts}
	sess, err := n.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()
	created, err := n.notifications.Create(ctx, sess, alert.MonitorID, alert.ID, "slack:"+n.Channel, data, time.Now(),
		func(int64, string) error { return nil })
	if err != nil {
		return err
	}
	if err := sess.Commit(); err != nil {
		return err
	}

	if n.shouldMention(alert) {
		return n.sendMention(ctx, created, channel)
	}
	return nil
}

func (n *Notification) updateExisting(ctx context.Context, notif domain.Notification, alert domain.Alert, issues []domain.Issue) error {
	text, attachments := n.render(alert, issues)
	channel, _ := notif.Data["channel"].(string)
	ts, _ := notif.Data["ts"].(string)

	err := n.client.Update(ctx, channel, ts, text, attachments)
	if err != nil && IsResendError(err) {
		newChannel, newTS, sendErr := n.client.Send(ctx, n.Channel, text, attachments, "")
		if sendErr != nil {
			return sendErr
		}
		notif.Data["channel"], notif.Data["ts"] = newChannel, newTS
		if saveErr := n.restamp(ctx, notif); saveErr != nil {
			return saveErr
		}
		channel = newChannel
		err = nil
	}
	if err != nil {
		return err
	}

	if n.shouldMention(alert) {
		return n.handleMention(ctx, notif, channel)
	}
	if n.Mention != nil && notif.Data["mention_ts"] != nil && !n.MentionOnUpdate {
		return nil
	}
	if ts, ok := notif.Data["mention_ts"].(string); ok && ts != "" {
		return n.deleteMention(ctx, notif, channel, ts)
	}
	return nil
}

// restamp persists notif.Data's channel/ts/mention_ts tracking fields
// after a send, resend or mention change.
func (n *Notification) restamp(ctx context.Context, notif domain.Notification) error {
	sess, err := n.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()
	if err := n.notifications.SaveData(ctx, sess, notif.ID, notif.Data); err != nil {
		return err
	}
	return sess.Commit()
}

func (n *Notification) closeNotification(ctx context.Context, notif domain.Notification) error {
	sess, err := n.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()
	if err := n.notifications.Close(ctx, sess, notif.ID, time.Now(), func(int64, string) error { return nil }); err != nil {
		return err
	}
	return sess.Commit()
}

// sendMention posts a threaded @mention message and records its ts.
func (n *Notification) sendMention(ctx context.Context, notif domain.Notification, channel string) error {
	ts, _ := notif.Data["ts"].(string)
	_, mentionTS, err := n.client.Send(ctx, channel, "<@"+*n.Mention+">", nil, ts)
	if err != nil {
		return err
	}
	notif.Data["mention_ts"] = mentionTS
	return n.restamp(ctx, notif)
}

func (n *Notification) handleMention(ctx context.Context, notif domain.Notification, channel string) error {
	if ts, ok := notif.Data["mention_ts"].(string); ok && ts != "" {
		if !n.MentionOnUpdate {
			return nil
		}
		if err := n.client.Delete(ctx, channel, ts); err != nil {
			return err
		}
	}
	return n.sendMention(ctx, notif, channel)
}

func (n *Notification) deleteMention(ctx context.Context, notif domain.Notification, channel, ts string) error {
	if err := n.client.Delete(ctx, channel, ts); err != nil {
		return err
	}
	delete(notif.Data, "mention_ts")
	return n.restamp(ctx, notif)
}

// render builds the message text (Title and status) and attachments for
// alert: a header with Title, a context line with timestamps, a section listing up
// to IssueShowLimit issues' IssuesFields, and an actions row - mirrors
// _build_attachments.
func (n *Notification) render(alert domain.Alert, issues []domain.Issue) (string, []slackapi.Attachment) {
	status := "active"
	if alert.Status == domain.AlertSolved {
		status = "solved"
	} else if alert.Acknowledged {
		status = "acknowledged"
	} else if alert.Locked {
		status = "locked"
	}

	text := fmt.Sprintf("%s (%s)", n.Title, status)

	contextLines := []string{fmt.Sprintf("created: %s", alert.CreatedAt.Format(time.RFC3339))}
	if alert.Status == domain.AlertSolved {
		contextLines = append(contextLines, fmt.Sprintf("solved: %s", alert.SolvedAt.Format(time.RFC3339)))
	}

	issuesText := n.issuesTable(issues)

	buttons := []MessageButton{
		{Text: "Acknowledge", ActionID: "alert_acknowledge", Value: fmt.Sprintf("%d", alert.ID)},
		{Text: "Lock", ActionID: "alert_lock", Value: fmt.Sprintf("%d", alert.ID)},
	}
	if alert.Status == domain.AlertSolved {
		buttons = nil
	}

	blocks := []slackapi.Block{
		HeaderBlock(n.Title),
		ContextBlock(contextLines...),
		SectionBlock(issuesText),
		ActionsBlock(buttons...),
	}

	attachment := BuildAttachment(blocks, ColorFor(alert), text)
	return text, []slackapi.Attachment{attachment}
}

// issuesTable renders up to IssueShowLimit issues' IssuesFields as a
// markdown list, noting how many were left out - mirrors the original's
// issue table truncated at issue_show_limit.
func (n *Notification) issuesTable(issues []domain.Issue) string {
	if len(issues) == 0 {
		return ""
	}
	limit := n.IssueShowLimit
	if limit <= 0 {
		limit = len(issues)
	}

	var lines []string
	for i, issue := range issues {
		if i >= limit {
			break
		}
		var fields []string
		for _, key := range n.IssuesFields {
			if v, ok := issue.Data[key]; ok {
				fields = append(fields, fmt.Sprintf("%s: %v", key, v))
			}
		}
		lines = append(lines, "- "+strings.Join(fields, ", "))
	}
	if len(issues) > limit {
		lines = append(lines, fmt.Sprintf("... and %d more", len(issues)-limit))
	}
	return strings.Join(lines, "\n")
}

// ReactionsList re-renders the Slack message whenever the alert it
// belongs to changes state through a path the routine engine's own
// notify() doesn't cover - acknowledge, lock, unlock and dismiss are API
// actions (internal/executor's alertAcknowledgeAction/alertLockAction),
// not routine-engine alert priority/solve transitions. Each reaction
// reads the triggering alert's id off event_source_id (see
// internal/executor/reaction.go's reactionPayload) and replays Notify
// against its current state, the same redraw the original's
// handle_event performs for every one of these event names.
func (n *Notification) ReactionsList() domain.ReactionOptions {
	handle := func(payload map[string]any) error {
		alertID, ok := payload["event_source_id"].(int64)
		if !ok {
			return fmt.Errorf("slack notification: payload missing event_source_id")
		}
		return n.handleAlertEvent(context.Background(), alertID)
	}

	return domain.ReactionOptions{
		"alert_acknowledge_dismissed": {handle},
		"alert_acknowledged":          {handle},
		"alert_locked":                {handle},
		"alert_solved":                {handle},
		"alert_unlocked":              {handle},
		"alert_updated":               {handle},
	}
}

func (n *Notification) handleAlertEvent(ctx context.Context, alertID int64) error {
	alert, err := n.alerts.GetByID(ctx, alertID)
	if err != nil {
		return err
	}
	issues, err := n.issues.GetActiveByAlert(ctx, alertID)
	if err != nil {
		return err
	}
	return n.Notify(ctx, alert, issues)
}
