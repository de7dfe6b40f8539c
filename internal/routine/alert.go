package routine

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/monitor"
)

// alertRoutine implements §4.G's step 5: link every issue lacking an
// alert to one (creating it if warranted), then recompute priority and
// solve-or-update every active alert of the monitor. Mirrors
// monitor_handler.py's _alerts_routine. Only called when
// module.AlertOptions is non-nil.
func (e *Engine) alertRoutine(ctx context.Context, m *domain.Monitor, module monitor.Module) error {
	var unlinked []int
	for i, issue := range m.ActiveIssues {
		if issue.AlertID == nil {
			unlinked = append(unlinked, i)
		}
	}

	if len(unlinked) > 0 {
		if err := e.linkIssuesToAlert(ctx, m, module, unlinked); err != nil {
			return fmt.Errorf("link issues to alert: %w", err)
		}
	}

	for i := range m.ActiveAlerts {
		alert := &m.ActiveAlerts[i]
		priorityEvent, err := e.updateAlertPriority(ctx, m.ID, alert, module)
		if err != nil {
			return fmt.Errorf("update alert %d priority: %w", alert.ID, err)
		}
		solveEvent, err := e.updateOrSolveAlert(ctx, m.ID, alert)
		if err != nil {
			return fmt.Errorf("update or solve alert %d: %w", alert.ID, err)
		}
		if len(module.NotificationOptions) > 0 && (priorityEvent != "" || solveEvent != "") {
			if err := e.notify(ctx, m.ID, *alert, module); err != nil {
				return fmt.Errorf("notify alert %d: %w", alert.ID, err)
			}
		}
	}
	return nil
}

// notify hands every one of module's notifiers the alert's currently
// active issues, mirroring the original's reactions_list being invoked
// off alert_priority_increased/alert_priority_decreased/alert_solved/
// alert_updated. A notifier erroring does not fail the routine - a
// down Slack workspace must never block alert bookkeeping - it is only
// logged, same as the original's handle_event swallowing plugin errors
// around each notification send.
func (e *Engine) notify(ctx context.Context, monitorID int64, alert domain.Alert, module monitor.Module) error {
	active, err := e.issues.GetActiveByAlert(ctx, alert.ID)
	if err != nil {
		return err
	}
	for _, notifier := range module.NotificationOptions {
		if err := notifier.Notify(ctx, alert, active); err != nil {
			e.log.Warn().Err(err).Int64("alert_id", alert.ID).Int64("monitor_id", monitorID).Msg("notifier failed")
		}
	}
	return nil
}

// linkIssuesToAlert finds the monitor's first active, unlocked alert (or
// creates one, if the rule's calculated priority for the unlinked issues
// is non-nil) and links every unlinked issue to it.
func (e *Engine) linkIssuesToAlert(ctx context.Context, m *domain.Monitor, module monitor.Module, unlinked []int) error {
	var alert *domain.Alert
	for i := range m.ActiveAlerts {
		if !m.ActiveAlerts[i].Locked {
			alert = &m.ActiveAlerts[i]
			break
		}
	}

	if alert == nil {
		priority := domain.CalculatePriority(module.AlertOptions.Rule, issueAges(m.ActiveIssues, unlinked), e.now())
		if priority == nil {
			return nil
		}

		sess, err := e.db.Begin(ctx)
		if err != nil {
			return err
		}
		created, err := e.alerts.Create(ctx, sess, m.ID, e.now(), e.publishAlert(m.ID))
		if err != nil {
			_ = sess.Rollback()
			return fmt.Errorf("create alert: %w", err)
		}
		if err := sess.Commit(); err != nil {
			return err
		}
		m.AddAlert(created)
		alert = &m.ActiveAlerts[len(m.ActiveAlerts)-1]
	}

	issues := make([]domain.Issue, len(unlinked))
	for i, idx := range unlinked {
		issues[i] = m.ActiveIssues[idx]
	}
	if !alert.CanLinkIssues(issues) {
		return nil
	}

	wasAcknowledged := alert.Acknowledged

	sess, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	publishIssue := e.publishIssue(m.ID)
	for _, idx := range unlinked {
		issue := &m.ActiveIssues[idx]
		eventName := issue.LinkToAlert(alert.ID)
		if err := e.issues.Save(ctx, sess, *issue, eventName, publishIssue); err != nil {
			return fmt.Errorf("link issue %d to alert: %w", issue.ID, err)
		}
	}
	e.events.CreateEvent(sess, events.SourceAlert, alert.ID, m.ID, "alert_issues_linked", nil, nil)

	var dismissEvent string
	if module.AlertOptions.DismissAcknowledgeOnNewIssues && wasAcknowledged {
		if alert.DismissAcknowledge() {
			dismissEvent = "alert_acknowledge_dismissed"
		}
	}
	if err := e.alerts.Save(ctx, sess, *alert, dismissEvent, e.publishAlert(m.ID)); err != nil {
		return fmt.Errorf("save alert after linking: %w", err)
	}
	return sess.Commit()
}

func issueAges(issues []domain.Issue, indexes []int) []domain.IssueAgeSeconds {
	out := make([]domain.IssueAgeSeconds, len(indexes))
	for i, idx := range indexes {
		out[i] = domain.IssueAgeSeconds{CreatedAt: issues[idx].CreatedAt, Data: issues[idx].Data}
	}
	return out
}

// updateAlertPriority recomputes alert's priority from its currently
// linked active issues, persisting and emitting alert_priority_increased/
// alert_priority_decreased only when the priority actually changed.
func (e *Engine) updateAlertPriority(ctx context.Context, monitorID int64, alert *domain.Alert, module monitor.Module) (string, error) {
	active, err := e.issues.GetActiveByAlert(ctx, alert.ID)
	if err != nil {
		return "", err
	}

	ages := make([]domain.IssueAgeSeconds, len(active))
	for i, issue := range active {
		ages[i] = domain.IssueAgeSeconds{CreatedAt: issue.CreatedAt, Data: issue.Data}
	}

	eventName, _ := alert.UpdatePriority(module.AlertOptions.Rule, ages, e.now())
	if eventName == "" {
		return "", nil
	}

	sess, err := e.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Rollback() }()
	if err := e.alerts.Save(ctx, sess, *alert, eventName, e.publishAlert(monitorID)); err != nil {
		return "", err
	}
	return eventName, sess.Commit()
}

// updateOrSolveAlert solves the alert if it has no active issues left, or
// otherwise persists it and emits alert_updated - the original's
// Alert.update(), always run once per monitor execution for every active
// alert regardless of whether anything changed.
func (e *Engine) updateOrSolveAlert(ctx context.Context, monitorID int64, alert *domain.Alert) (string, error) {
	count, err := e.issues.CountActiveByAlert(ctx, alert.ID)
	if err != nil {
		return "", err
	}

	eventName := "alert_updated"
	if count == 0 {
		if !alert.Solve(e.now()) {
			return "", nil
		}
		eventName = "alert_solved"
	}

	sess, err := e.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Rollback() }()
	if err := e.alerts.Save(ctx, sess, *alert, eventName, e.publishAlert(monitorID)); err != nil {
		return "", err
	}
	return eventName, sess.Commit()
}
