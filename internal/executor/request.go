package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/store"
)

// requestPayload is the decoded shape of a "request" message, matching
// queue.RequestPayload.
type requestPayload struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// actionTargetID is the params shape every built-in action shares: a
// single "target_id" naming the alert or issue to act on.
type actionTargetID struct {
	TargetID int64 `json:"target_id"`
}

// handleRequest dispatches a "request" message to its action, translated
// from request_handler.py's run(): decode the payload, resolve the
// action by name (static table or plugin.<name>.<path> lookup), run it
// under requestTimeout, log timeout/error without failing the message -
// an unknown or failing action is not worth redelivering.
func (e *Executor) handleRequest(ctx context.Context, payload map[string]any) error {
	var p requestPayload
	if err := decodePayload(payload, &p); err != nil {
		e.log.Error().Err(err).Msg("request message missing or malformed payload")
		return nil
	}

	action, ok := e.resolveAction(p.Action)
	if !ok {
		e.log.Warn().Str("action", p.Action).Msg("got request with unknown action")
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("action panicked: %v", r)
			}
		}()
		done <- action(reqCtx, p.Params)
	}()

	select {
	case err := <-done:
		if err != nil {
			e.log.Error().Err(err).Str("action", p.Action).Msg("error executing request")
		}
	case <-reqCtx.Done():
		e.log.Error().Str("action", p.Action).Msg("timed out executing request")
	}
	return nil
}

func (e *Executor) resolveAction(name string) (PluginAction, bool) {
	if strings.HasPrefix(name, "plugin.") {
		return e.plugins.Get(name)
	}
	action, ok := e.actions[name]
	return action, ok
}

// registerBuiltinActions builds the static action table request_handler.py
// calls `actions`, called once from New.
func (e *Executor) registerBuiltinActions() map[string]PluginAction {
	alerts := store.NewAlertRepository(e.db)
	issues := store.NewIssueRepository(e.db)

	return map[string]PluginAction{
		"alert_acknowledge": e.alertAcknowledgeAction(alerts),
		"alert_lock":        e.alertLockAction(alerts),
		"alert_solve":       e.alertSolveAction(alerts, issues),
		"issue_drop":        e.issueDropAction(issues),
	}
}

func (e *Executor) alertAcknowledgeAction(alerts *store.AlertRepository) PluginAction {
	return func(ctx context.Context, params map[string]any) error {
		var p actionTargetID
		if err := decodePayload(params, &p); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		alert, err := alerts.GetByID(ctx, p.TargetID)
		if err != nil {
			e.log.Info().Int64("alert_id", p.TargetID).Msg("alert not found")
			return nil
		}
		if err := e.reg.WaitMonitorLoaded(ctx, alert.MonitorID); err != nil {
			return nil
		}
		if !alert.Acknowledge(time.Now()) {
			return nil
		}
		return e.saveAlert(ctx, alerts, alert, "alert_acknowledged")
	}
}

func (e *Executor) alertLockAction(alerts *store.AlertRepository) PluginAction {
	return func(ctx context.Context, params map[string]any) error {
		var p actionTargetID
		if err := decodePayload(params, &p); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		alert, err := alerts.GetByID(ctx, p.TargetID)
		if err != nil {
			e.log.Info().Int64("alert_id", p.TargetID).Msg("alert not found")
			return nil
		}
		if err := e.reg.WaitMonitorLoaded(ctx, alert.MonitorID); err != nil {
			return nil
		}
		if !alert.Lock() {
			return nil
		}
		return e.saveAlert(ctx, alerts, alert, "alert_locked")
	}
}

// alertSolveAction solves every active issue linked to the alert, since
// domain.Alert has no solve-all-issues method of its own - the original's
// alert.solve_issues() walks the same linked issues and solves each.
func (e *Executor) alertSolveAction(alerts *store.AlertRepository, issues *store.IssueRepository) PluginAction {
	return func(ctx context.Context, params map[string]any) error {
		var p actionTargetID
		if err := decodePayload(params, &p); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		alert, err := alerts.GetByID(ctx, p.TargetID)
		if err != nil {
			e.log.Info().Int64("alert_id", p.TargetID).Msg("alert not found")
			return nil
		}
		if err := e.reg.WaitMonitorLoaded(ctx, alert.MonitorID); err != nil {
			return nil
		}
		active, err := issues.GetActiveByAlert(ctx, alert.ID)
		if err != nil {
			return fmt.Errorf("load active issues: %w", err)
		}
		now := time.Now()
		for _, issue := range active {
			eventName := issue.Solve(now)
			if eventName == "" {
				continue
			}
			if err := e.saveIssue(ctx, issues, issue, eventName); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Executor) issueDropAction(issues *store.IssueRepository) PluginAction {
	return func(ctx context.Context, params map[string]any) error {
		var p actionTargetID
		if err := decodePayload(params, &p); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		issue, err := issues.GetByID(ctx, p.TargetID)
		if err != nil {
			e.log.Info().Int64("issue_id", p.TargetID).Msg("issue not found")
			return nil
		}
		if err := e.reg.WaitMonitorLoaded(ctx, issue.MonitorID); err != nil {
			return nil
		}
		eventName := issue.Drop(time.Now())
		if eventName == "" {
			return nil
		}
		return e.saveIssue(ctx, issues, issue, eventName)
	}
}

func (e *Executor) saveAlert(ctx context.Context, alerts *store.AlertRepository, alert domain.Alert, eventName string) error {
	sess, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	publish := func(alertID int64, name string) error {
		return e.bus.Publish(events.SourceAlert, alertID, alert.MonitorID, name, nil, nil)
	}
	if err := alerts.Save(ctx, sess, alert, eventName, publish); err != nil {
		_ = sess.Rollback()
		return fmt.Errorf("save alert: %w", err)
	}
	return sess.Commit()
}

func (e *Executor) saveIssue(ctx context.Context, issues *store.IssueRepository, issue domain.Issue, eventName string) error {
	sess, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	publish := func(issueID int64, name string) error {
		return e.bus.Publish(events.SourceIssue, issueID, issue.MonitorID, name, nil, nil)
	}
	if err := issues.Save(ctx, sess, issue, eventName, publish); err != nil {
		_ = sess.Rollback()
		return fmt.Errorf("save issue: %w", err)
	}
	return sess.Commit()
}
