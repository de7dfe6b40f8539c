// Package routine implements the Routine Engine (module G): the
// load -> update -> solve -> search -> alert sequence §4.G runs for one
// monitor execution, translated from the original's
// monitor_handler.py's _run_routines/_update_routine/_issues_solve_routine/
// _search_routine/_alerts_routine.
package routine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// Engine runs §4.G's routine sequence against one monitor. It is
// stateless between calls: all per-run state is the domain.Monitor Run
// loads and mutates locally.
type Engine struct {
	db                       *store.DB
	monitors                 *store.MonitorRepository
	issues                   *store.IssueRepository
	alerts                   *store.AlertRepository
	events                   *events.Bus
	now                      func() time.Time
	defaultMaxIssuesCreation int
	log                      zerolog.Logger
}

// New builds an Engine. now is normally time.Now, overridden in tests.
// defaultMaxIssuesCreation is config.Config.MaxIssuesCreation, used by
// the search routine whenever a monitor leaves MonitorOptions.
// MaxIssuesCreation at its zero value.
func New(db *store.DB, bus *events.Bus, now func() time.Time, defaultMaxIssuesCreation int, log zerolog.Logger) *Engine {
	return &Engine{
		db:                       db,
		monitors:                 store.NewMonitorRepository(db),
		issues:                   store.NewIssueRepository(db),
		alerts:                   store.NewAlertRepository(db),
		events:                   bus,
		now:                      now,
		defaultMaxIssuesCreation: defaultMaxIssuesCreation,
		log:                      log.With().Str("component", "routine_engine").Logger(),
	}
}

// Run executes tasks (a subset of {"search","update"}) for monitorID
// against module, in load -> update -> solve -> search -> alert order.
func (e *Engine) Run(ctx context.Context, monitorID int64, module monitor.Module, tasks []string) error {
	wantsUpdate := hasTask(tasks, "update")
	wantsSearch := hasTask(tasks, "search")

	m, err := e.load(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("load monitor: %w", err)
	}

	if wantsUpdate {
		if len(m.ActiveIssues) > 0 {
			if err := e.updateRoutine(ctx, &m, module); err != nil {
				return fmt.Errorf("update routine: %w", err)
			}
		}
		if err := e.monitors.SetUpdateExecutedAt(ctx, m.ID, e.now()); err != nil {
			return fmt.Errorf("stamp update_executed_at: %w", err)
		}
		// Reload to pick up the just-applied issue updates before the
		// solve routine evaluates is_solved against them, mirroring the
		// original's reload-after-save between update and solve.
		m, err = e.load(ctx, monitorID)
		if err != nil {
			return fmt.Errorf("reload monitor after update: %w", err)
		}
	}

	if err := e.solveRoutine(ctx, &m, module); err != nil {
		return fmt.Errorf("solve routine: %w", err)
	}

	if wantsSearch {
		if err := e.searchRoutine(ctx, &m, module); err != nil {
			return fmt.Errorf("search routine: %w", err)
		}
		if err := e.monitors.SetSearchExecutedAt(ctx, m.ID, e.now()); err != nil {
			return fmt.Errorf("stamp search_executed_at: %w", err)
		}
	}

	if module.AlertOptions != nil {
		if err := e.alertRoutine(ctx, &m, module); err != nil {
			return fmt.Errorf("alert routine: %w", err)
		}
	}
	return nil
}

func hasTask(tasks []string, name string) bool {
	for _, t := range tasks {
		if t == name {
			return true
		}
	}
	return false
}

// load populates a fresh domain.Monitor with its currently active issues
// and alerts - the Go equivalent of the original's Monitor.load().
func (e *Engine) load(ctx context.Context, monitorID int64) (domain.Monitor, error) {
	m, err := e.monitors.GetByID(ctx, monitorID)
	if err != nil {
		return domain.Monitor{}, err
	}
	issues, err := e.issues.GetActiveByMonitor(ctx, monitorID)
	if err != nil {
		return domain.Monitor{}, err
	}
	alerts, err := e.alerts.GetActiveByMonitor(ctx, monitorID)
	if err != nil {
		return domain.Monitor{}, err
	}
	m.AddIssues(issues...)
	for _, a := range alerts {
		m.AddAlert(a)
	}
	return m, nil
}

func (e *Engine) publishIssue(monitorID int64) func(issueID int64, eventName string) error {
	return func(issueID int64, eventName string) error {
		return e.events.Publish(events.SourceIssue, issueID, monitorID, eventName, nil, nil)
	}
}

func (e *Engine) publishAlert(monitorID int64) func(alertID int64, eventName string) error {
	return func(alertID int64, eventName string) error {
		return e.events.Publish(events.SourceAlert, alertID, monitorID, eventName, nil, nil)
	}
}
