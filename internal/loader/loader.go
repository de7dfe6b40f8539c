// Package loader implements the Monitors Loader (module E): it owns the
// static Factory registry, rebuilds internal/registry from the database's
// enabled monitors on a schedule, and exposes registry.RequestReload's
// early-wake path for callers that need a freshly-registered monitor
// sooner than the next scheduled load.
//
// The original dynamically imports a monitor's Python source from disk on
// every load. Go has no runtime eval, so registration happens once, at
// process startup, by handing Register a Factory; the load loop below
// only ever looks up an already-registered Factory by name, builds a
// fresh Module from it and publishes that into the registry - it never
// reads code off disk.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

// RegistrationError reports that a monitor's built Module failed §4.E.1
// validation at registration time.
type RegistrationError struct {
	MonitorName string
	Violations  []string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("monitor %q failed validation: %v", e.MonitorName, e.Violations)
}

// pollInterval is how often the load loop's wait rechecks monitors_pending
// while it waits out the rest of its scheduled sleep.
const pollInterval = 50 * time.Millisecond

// Loader owns the factories map and drives the periodic rebuild of
// internal/registry from the database's code_modules/monitors tables.
type Loader struct {
	db          *store.DB
	monitors    *store.MonitorRepository
	codeModules *store.CodeModuleRepository
	reg         *registry.Registry
	events      *events.Bus
	clk         clock.Clock
	log         zerolog.Logger

	loadSchedule  string
	earlyLoadTime time.Duration
	coolDownTime  time.Duration

	mu        sync.Mutex
	factories map[string]monitor.Factory

	runMu        sync.Mutex
	lastLoadTime time.Time
}

// New builds a Loader. loadSchedule, earlyLoadTime and coolDownTime come
// from config.Config's CORE_MONITORS_LOAD_SCHEDULE/CORE_EARLY_LOAD_TIME/
// CORE_COOL_DOWN_TIME settings.
func New(db *store.DB, reg *registry.Registry, bus *events.Bus, clk clock.Clock, loadSchedule string, earlyLoadTime, coolDownTime time.Duration, log zerolog.Logger) *Loader {
	return &Loader{
		db:            db,
		monitors:      store.NewMonitorRepository(db),
		codeModules:   store.NewCodeModuleRepository(db),
		reg:           reg,
		events:        bus,
		clk:           clk,
		loadSchedule:  loadSchedule,
		earlyLoadTime: earlyLoadTime,
		coolDownTime:  coolDownTime,
		factories:     make(map[string]monitor.Factory),
		log:           log.With().Str("component", "monitors_loader").Logger(),
	}
}

// Register builds name's Factory once to validate it, then records the
// Factory for the load loop to rebuild from on every cycle, and upserts
// the Monitor and CodeModule rows that bind name to its registration.
// Registration happens once per process, at startup, for every built-in
// and sample monitor - the Go analogue of the original's
// register_monitor.
func (l *Loader) Register(ctx context.Context, name string, factory monitor.Factory, additionalFiles map[string]string) (domain.Monitor, error) {
	module, err := factory.Build()
	if err != nil {
		return domain.Monitor{}, fmt.Errorf("build monitor %q: %w", name, err)
	}
	if violations := monitor.Validate(module); len(violations) > 0 {
		return domain.Monitor{}, &RegistrationError{MonitorName: name, Violations: violations}
	}

	l.mu.Lock()
	l.factories[name] = factory
	l.mu.Unlock()

	m, err := l.getOrCreateMonitor(ctx, name)
	if err != nil {
		return domain.Monitor{}, fmt.Errorf("get or create monitor %q: %w", name, err)
	}

	if err := l.codeModules.Upsert(ctx, m.ID, name, "", additionalFiles); err != nil {
		return domain.Monitor{}, fmt.Errorf("upsert code module for monitor %q: %w", name, err)
	}
	return m, nil
}

func (l *Loader) getOrCreateMonitor(ctx context.Context, name string) (domain.Monitor, error) {
	m, err := l.monitors.GetByName(ctx, name)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, sql.ErrNoRows):
		return l.monitors.Create(ctx, name)
	default:
		return domain.Monitor{}, err
	}
}

// Run drives the load loop until ctx is cancelled: load, sleep until the
// schedule's next firing (or monitors_pending fires early), enforce the
// cool-down floor between loads, repeat. Mirrors the original's _run.
func (l *Loader) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := l.runLoad(ctx); err != nil {
			l.log.Error().Err(err).Msg("monitors load failed")
		}

		sleep := l.timeUntilNextLoad()
		if !l.waitScheduleOrPending(ctx, sleep) {
			return
		}
		if !l.waitCoolDown(ctx) {
			return
		}
	}
}

// timeUntilNextLoad computes how long to sleep before the next scheduled
// load, biasing the reference forward by earlyLoadTime so the wake-up
// lands just ahead of the schedule's firing instead of right on top of
// the load that just ran.
func (l *Loader) timeUntilNextLoad() time.Duration {
	reference := l.clk.Now().Add(l.earlyLoadTime)
	seconds, err := clock.TimeUntilNext(l.loadSchedule, reference)
	if err != nil {
		l.log.Error().Err(err).Str("schedule", l.loadSchedule).Msg("invalid monitors load schedule, falling back to 60s")
		return 60 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// waitScheduleOrPending blocks for up to wait, waking early if
// monitors_pending is set, or returns false if ctx is cancelled first.
func (l *Loader) waitScheduleOrPending(ctx context.Context, wait time.Duration) bool {
	deadline := l.clk.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if l.reg.PendingIsSet() || !l.clk.Now().Before(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// waitCoolDown enforces coolDownTime as a floor on how soon after
// lastLoadTime the next load may start, even when monitors_pending woke
// the loop up immediately.
func (l *Loader) waitCoolDown(ctx context.Context) bool {
	elapsed := l.clk.Now().Sub(l.lastLoadTime)
	if elapsed >= l.coolDownTime {
		return true
	}
	timer := time.NewTimer(l.coolDownTime - elapsed)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RequestReload sets monitors_pending, asking the load loop to run again
// as soon as its current sleep/cool-down allows.
func (l *Loader) RequestReload() {
	l.reg.RequestReload()
}

// runLoad is single-flight guarded: a caller that arrives mid-load blocks
// on runMu and, once unblocked, still performs its own load rather than
// being handed the prior one's result - the same mutual-exclusion (not
// result-sharing) semantics as the original's asyncio.Lock.
func (l *Loader) runLoad(ctx context.Context) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	l.reg.MarkLoading()
	defer func() {
		l.reg.MarkReady()
		l.reg.ReloadRequested()
		l.lastLoadTime = l.clk.Now()
	}()

	monitors, err := l.monitors.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load monitors: %w", err)
	}

	for _, m := range monitors {
		if !m.Enabled {
			continue
		}
		if err := l.loadOne(ctx, m); err != nil {
			l.log.Error().Err(err).Int64("monitor_id", m.ID).Str("monitor", m.Name).Msg("failed to load monitor")
		}
	}
	return nil
}

func (l *Loader) loadOne(ctx context.Context, m domain.Monitor) error {
	cm, err := l.codeModules.GetByMonitorID(ctx, m.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return l.disableMissingCodeModule(ctx, m)
	}
	if err != nil {
		return fmt.Errorf("load code module: %w", err)
	}

	l.mu.Lock()
	factory, ok := l.factories[cm.RegistrationName]
	l.mu.Unlock()
	if !ok {
		l.log.Warn().Str("registration_name", cm.RegistrationName).Int64("monitor_id", m.ID).
			Msg("code module references a registration name with no registered factory, skipping")
		return nil
	}

	module, err := factory.Build()
	if err != nil {
		return fmt.Errorf("build module: %w", err)
	}
	if violations := monitor.Validate(module); len(violations) > 0 {
		return &RegistrationError{MonitorName: m.Name, Violations: violations}
	}

	configureMonitor(&module)
	l.reg.Add(m.ID, m.Name, module)
	return nil
}

// disableMissingCodeModule soft-disables a monitor whose code_modules row
// has vanished (e.g. a registration name the running build no longer
// registers), publishing monitor_enabled_changed like any other enable
// flip.
func (l *Loader) disableMissingCodeModule(ctx context.Context, m domain.Monitor) error {
	l.log.Warn().Int64("monitor_id", m.ID).Str("monitor", m.Name).
		Msg("monitor has no code module, disabling")

	sess, err := l.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	publish := func(eventName string) error {
		return l.events.Publish(events.SourceMonitor, m.ID, m.ID, eventName,
			map[string]any{"enabled": false, "reason": "code_module_missing"}, nil)
	}
	if err := l.monitors.SetEnabled(ctx, sess, m.ID, false, publish); err != nil {
		return err
	}
	return sess.Commit()
}

// configureMonitor merges each notifier's own reactions (e.g. a
// notification closing itself when its alert resolves) into the module's
// ReactionOptions, the Go analogue of the original's _configure_monitor.
func configureMonitor(m *monitor.Module) {
	if m.ReactionOptions == nil {
		m.ReactionOptions = domain.ReactionOptions{}
	}
	for _, notifier := range m.NotificationOptions {
		for name, callbacks := range notifier.ReactionsList() {
			m.ReactionOptions[name] = append(m.ReactionOptions[name], callbacks...)
		}
	}
}
