package controller

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/store"
)

// procedure is one housekeeping task, parameterized by the settings
// configured for it in config.ProcedureConfig.Params.
type procedure func(ctx context.Context, params map[string]string) error

// Procedures runs the controller's independent side loop of housekeeping
// tasks (monitors_stuck, notifications_alert_solved, clean_events),
// each on its own cron schedule, translated from
// original_source/src/components/controller/run_procedures.py's
// _check_procedure_triggered/_execute_procedure.
type Procedures struct {
	clk    clock.Clock
	cfg    map[string]config.ProcedureConfig
	log    zerolog.Logger
	byName map[string]procedure

	mu   sync.Mutex
	last map[string]time.Time
}

// NewProcedures wires the three built-in procedures against db. bus is
// used only by notifications_alert_solved, to publish notification_closed
// the same way every other repository call site does.
func NewProcedures(db *store.DB, cfg map[string]config.ProcedureConfig, clk clock.Clock, bus *events.Bus, log zerolog.Logger) *Procedures {
	p := &Procedures{
		clk:  clk,
		cfg:  cfg,
		log:  log.With().Str("component", "controller_procedures").Logger(),
		last: make(map[string]time.Time),
	}

	monitors := store.NewMonitorRepository(db)
	notifications := store.NewNotificationRepository(db)
	auditEvents := store.NewAuditEventRepository(db)

	p.byName = map[string]procedure{
		"monitors_stuck":              monitorsStuckProcedure(monitors, clk),
		"notifications_alert_solved": notificationsAlertSolvedProcedure(db, notifications, bus, clk),
		"clean_events":                cleanEventsProcedure(auditEvents, clk),
	}
	return p
}

// Run checks every registered procedure's schedule and executes the ones
// that are due. A procedure that errors is logged and does not prevent
// the others from running - spec.md's "individual try-catch" semantics.
func (p *Procedures) Run(ctx context.Context) {
	for name, run := range p.byName {
		settings, ok := p.cfg[name]
		if !ok {
			continue
		}
		if !p.triggered(name, settings.Schedule) {
			continue
		}

		if err := run(ctx, settings.Params); err != nil {
			p.log.Error().Err(err).Str("procedure", name).Msg("procedure failed")
		}
		p.mu.Lock()
		p.last[name] = p.clk.Now()
		p.mu.Unlock()
	}
}

func (p *Procedures) triggered(name, schedule string) bool {
	p.mu.Lock()
	lastExecution, ran := p.last[name]
	p.mu.Unlock()
	if !ran {
		return true
	}
	triggered, err := clock.IsTriggered(schedule, lastExecution, p.clk.Now())
	return err == nil && triggered
}

// monitorsStuckProcedure clears queued/running for monitors whose
// last_heartbeat is older than time_tolerance seconds - recovers
// monitors an executor crashed while processing, per spec.md S5.
func monitorsStuckProcedure(monitors *store.MonitorRepository, clk clock.Clock) procedure {
	return func(ctx context.Context, params map[string]string) error {
		tolerance := paramSeconds(params, "time_tolerance", 300)

		stuck, err := monitors.GetStuck(ctx, clk.Now(), tolerance)
		if err != nil {
			return err
		}
		for _, m := range stuck {
			if err := monitors.SetQueued(ctx, m.ID, false); err != nil {
				return err
			}
			if err := monitors.SetRunning(ctx, m.ID, false); err != nil {
				return err
			}
		}
		return nil
	}
}

// notificationsAlertSolvedProcedure closes every active notification
// whose alert has already solved - a notifier has no other way to learn
// this happened out from under it.
func notificationsAlertSolvedProcedure(db *store.DB, notifications *store.NotificationRepository, bus *events.Bus, clk clock.Clock) procedure {
	return func(ctx context.Context, params map[string]string) error {
		stale, err := notifications.GetActiveLinkedToSolvedAlerts(ctx)
		if err != nil {
			return err
		}

		now := clk.Now()
		for _, n := range stale {
			sess, err := db.Begin(ctx)
			if err != nil {
				return err
			}
			monitorID := n.MonitorID
			publish := func(notificationID int64, eventName string) error {
				return bus.Publish(events.SourceNotification, notificationID, monitorID, eventName, nil, nil)
			}
			if err := notifications.Close(ctx, sess, n.ID, now, publish); err != nil {
				_ = sess.Rollback()
				return err
			}
			if err := sess.Commit(); err != nil {
				return err
			}
		}
		return nil
	}
}

// cleanEventsProcedure deletes audit event rows older than retention_days.
func cleanEventsProcedure(events *store.AuditEventRepository, clk clock.Clock) procedure {
	return func(ctx context.Context, params map[string]string) error {
		days := paramInt(params, "retention_days", 30)
		_, err := events.DeleteOlderThan(ctx, clk.Now(), time.Duration(days)*24*time.Hour)
		return err
	}
}

func paramInt(params map[string]string, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func paramSeconds(params map[string]string, key string, fallback int) time.Duration {
	return time.Duration(paramInt(params, key, fallback)) * time.Second
}
