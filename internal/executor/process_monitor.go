package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// processMonitorPayload is the decoded shape of a process_monitor
// message, matching queue.ProcessMonitorPayload's JSON tags.
type processMonitorPayload struct {
	MonitorID int64    `json:"monitor_id"`
	Tasks     []string `json:"tasks"`
}

// handleProcessMonitor runs the routine engine against one monitor,
// translated from monitor_handler.py's run(): skip if already running,
// mark running, execute under a timeout, record the outcome as an audit
// event, and always clear running/queued in a finally-equivalent defer -
// even on panic-free Go, a failed routine run must never leave a
// monitor stuck unable to be queued again.
func (e *Executor) handleProcessMonitor(ctx context.Context, payload map[string]any) error {
	var p processMonitorPayload
	if err := decodePayload(payload, &p); err != nil {
		e.log.Error().Err(err).Msg("process_monitor message missing or malformed payload")
		return nil
	}

	m, err := e.monitors.GetByID(ctx, p.MonitorID)
	if err != nil {
		e.log.Error().Err(err).Int64("monitor_id", p.MonitorID).Msg("monitor not found, skipping message")
		return nil
	}

	if err := e.reg.WaitMonitorLoaded(ctx, p.MonitorID); err != nil {
		return nil
	}

	if m.Running {
		return nil
	}

	module, ok := e.reg.GetModule(p.MonitorID)
	if !ok {
		e.log.Warn().Int64("monitor_id", p.MonitorID).Msg("monitor not registered, skipping")
		return nil
	}

	if err := e.monitors.SetRunning(ctx, p.MonitorID, true); err != nil {
		return fmt.Errorf("mark monitor running: %w", err)
	}
	defer func() {
		if err := e.monitors.SetRunning(ctx, p.MonitorID, false); err != nil {
			e.log.Error().Err(err).Int64("monitor_id", p.MonitorID).Msg("failed to clear running flag")
		}
		if err := e.monitors.SetQueued(ctx, p.MonitorID, false); err != nil {
			e.log.Error().Err(err).Int64("monitor_id", p.MonitorID).Msg("failed to clear queued flag")
		}
	}()
	if err := e.monitors.SetHeartbeat(ctx, p.MonitorID, time.Now()); err != nil {
		e.log.Warn().Err(err).Int64("monitor_id", p.MonitorID).Msg("failed to stamp initial heartbeat")
	}

	stopHeartbeat := e.startExecutionHeartbeat(ctx, p.MonitorID)
	defer stopHeartbeat()

	timeout := e.monitorTimeout
	if module.MonitorOptions.ExecutionTimeout > 0 {
		timeout = time.Duration(module.MonitorOptions.ExecutionTimeout) * time.Second
	}
	startedAt := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	runErr := e.engine.Run(runCtx, p.MonitorID, module, p.Tasks)
	cancel()

	e.recordExecutionOutcome(ctx, p.MonitorID, m.Name, runErr)
	e.recordExecution(ctx, p.MonitorID, startedAt, runErr)

	if runErr != nil {
		e.log.Error().Err(runErr).Int64("monitor_id", p.MonitorID).Str("monitor", m.Name).
			Msg("error running monitor routines")
	}
	return nil
}

// startExecutionHeartbeat stamps the monitor's last_heartbeat every 10
// seconds while its routines run (a fixed interval - the
// executor_monitor_heartbeat_time setting is not read here), so
// monitors_stuck can tell a crashed executor from a merely slow one.
// Returns a func that stops the heartbeat goroutine - callers defer it
// immediately so it always fires, mirroring runner.go's
// _change_visibility_loop pattern applied to monitor execution instead
// of queue-message visibility.
func (e *Executor) startExecutionHeartbeat(ctx context.Context, monitorID int64) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := e.monitors.SetHeartbeat(context.Background(), monitorID, time.Now()); err != nil {
					e.log.Warn().Err(err).Int64("monitor_id", monitorID).Msg("failed to extend monitor heartbeat")
				}
			}
		}
	}()
	return cancel
}

// recordExecution writes one domain.MonitorExecution row per run,
// translated from monitor_handler.py's own insert into the
// monitor_executions table around every routine run - the
// monitor_consecutive_fails/monitor_failed_consecutive_executions
// built-ins (internal/monitors) read this table back through
// ExecutionRepository.RecentConsecutiveFailures/CountFailedSince.
func (e *Executor) recordExecution(ctx context.Context, monitorID int64, startedAt time.Time, runErr error) {
	status := domain.ExecutionSuccess
	var errType string
	if runErr != nil {
		status = domain.ExecutionFailed
		errType = fmt.Sprintf("%T", runErr)
	}
	execution := domain.MonitorExecution{
		MonitorID:  monitorID,
		Status:     status,
		ErrorType:  errType,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		e.log.Error().Err(err).Int64("monitor_id", monitorID).Msg("failed to record monitor execution")
	}
}

// recordExecutionOutcome writes one domain.AuditEvent row per
// execution, mapping the original's two-valued EventType enum
// (monitor_execution_success/monitor_execution_error) 1:1 onto whether
// the routine engine returned an error.
func (e *Executor) recordExecutionOutcome(ctx context.Context, monitorID int64, monitorName string, runErr error) {
	eventType := domain.AuditEventExecutionSuccess
	payload := map[string]any{"monitor_name": monitorName}
	if runErr != nil {
		eventType = domain.AuditEventExecutionError
		payload["error"] = runErr.Error()
	}
	if err := e.events.Create(ctx, eventType, "monitor", monitorID, time.Now(), payload); err != nil {
		e.log.Error().Err(err).Int64("monitor_id", monitorID).Msg("failed to record execution audit event")
	}
}
