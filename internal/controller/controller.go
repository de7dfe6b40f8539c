// Package controller implements the Controller (module F): on a
// schedule, it scans every enabled monitor, decides which have search
// or update work due, and dispatches a coalesced process_monitor
// message per monitor onto the Queue. A side loop of housekeeping
// procedures runs independently (procedures.go). Translated line for
// line from original_source/src/components/controller/controller.go's
// _queue_task/_process_monitor/_run_task/_create_process_task, with the
// ticker-driven run loop generalized from the teacher's
// internal/queue/scheduler.go (deleted - see DESIGN.md).
package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

// Controller drives the periodic monitor-scan loop.
type Controller struct {
	monitors    *store.MonitorRepository
	q           queue.Queue
	reg         *registry.Registry
	clk         clock.Clock
	procedures  *Procedures
	schedule    string
	concurrency int
	log         zerolog.Logger

	lastLoopAt time.Time
}

// New builds a Controller. schedule is Config.ControllerProcessSchedule,
// concurrency is Config.ControllerConcurrency.
func New(db *store.DB, q queue.Queue, reg *registry.Registry, clk clock.Clock, procedures *Procedures, schedule string, concurrency int, log zerolog.Logger) *Controller {
	return &Controller{
		monitors:    store.NewMonitorRepository(db),
		q:           q,
		reg:         reg,
		clk:         clk,
		procedures:  procedures,
		schedule:    schedule,
		concurrency: concurrency,
		log:         log.With().Str("component", "controller").Logger(),
	}
}

// Run drives the controller loop until ctx is cancelled. Any error
// inside one tick is logged and the loop continues on the next tick -
// spec.md's failure semantics for this module.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info().Msg("controller running")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("controller finishing")
			return
		}

		c.runTick(ctx)

		now := c.clk.Now()
		triggered, err := clock.IsTriggered(c.schedule, c.lastLoopAt, now)
		if err == nil && triggered {
			continue
		}
		sleep := c.sleepDuration(now)
		select {
		case <-ctx.Done():
			c.log.Info().Msg("controller finishing")
			return
		case <-time.After(sleep):
		}
	}
}

func (c *Controller) sleepDuration(now time.Time) time.Duration {
	seconds, err := clock.TimeUntilNext(c.schedule, now)
	if err != nil || seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}

// runTick runs one controller iteration: wait for the registry, run
// procedures in the background, then scan and dispatch enabled monitors
// concurrently under a semaphore of width c.concurrency.
func (c *Controller) runTick(ctx context.Context) {
	if err := c.reg.WaitReady(ctx); err != nil {
		c.log.Warn().Err(err).Msg("registry not ready, skipping tick")
		return
	}

	c.lastLoopAt = c.clk.Now()

	go c.procedures.Run(ctx)

	monitors, err := c.monitors.GetAll(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list monitors")
		return
	}

	sem := make(chan struct{}, c.concurrency)
	done := make(chan struct{})
	pending := 0
	for _, m := range monitors {
		if !m.Enabled {
			continue
		}
		pending++
		sem <- struct{}{}
		go func(monitorID int64, name string) {
			defer func() { <-sem; done <- struct{}{} }()
			c.processMonitor(ctx, monitorID, name)
		}(m.ID, m.Name)
	}
	for i := 0; i < pending; i++ {
		<-done
	}
}

// processMonitor decides whether monitorID has search/update work due
// and, if so, queues it. Skips monitors the loader hasn't registered
// yet, since the executor wouldn't find a module to run against them.
func (c *Controller) processMonitor(ctx context.Context, monitorID int64, name string) {
	if !c.reg.IsRegistered(monitorID) {
		c.log.Warn().Int64("monitor_id", monitorID).Str("monitor", name).
			Msg("monitor is not registered, skipping")
		return
	}

	m, err := c.monitors.GetByID(ctx, monitorID)
	if err != nil {
		c.log.Error().Err(err).Int64("monitor_id", monitorID).Msg("failed to reload monitor")
		return
	}

	module, _ := c.reg.GetModule(monitorID)
	now := c.clk.Now()

	var tasks []string
	if module.MonitorOptions.SearchCron != nil && m.IsSearchTriggered(*module.MonitorOptions.SearchCron, now) {
		tasks = append(tasks, "search")
	}
	if module.MonitorOptions.UpdateCron != nil && m.IsUpdateTriggered(*module.MonitorOptions.UpdateCron, now) {
		tasks = append(tasks, "update")
	}
	if len(tasks) == 0 {
		return
	}

	c.log.Info().Int64("monitor_id", monitorID).Strs("tasks", tasks).Msg("triggered")
	c.queueTask(ctx, monitorID, tasks)
}

// queueTask marks the monitor queued and sends a process_monitor
// message, reverting the queued flag if the send fails.
func (c *Controller) queueTask(ctx context.Context, monitorID int64, tasks []string) {
	if err := c.monitors.SetQueued(ctx, monitorID, true); err != nil {
		c.log.Error().Err(err).Int64("monitor_id", monitorID).Msg("failed to mark monitor queued")
		return
	}

	err := c.q.Send(ctx, queue.TypeProcessMonitor, map[string]any{
		"monitor_id": monitorID,
		"tasks":      tasks,
	})
	if err != nil {
		c.log.Error().Err(err).Int64("monitor_id", monitorID).
			Msg("failed to queue task, reverting queued state")
		if revertErr := c.monitors.SetQueued(ctx, monitorID, false); revertErr != nil {
			c.log.Error().Err(revertErr).Int64("monitor_id", monitorID).Msg("failed to revert queued state")
		}
	}
}
