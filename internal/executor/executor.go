// Package executor implements the Executor (module H): a bounded pool of
// runners that consume process_monitor/event/request messages from the
// Queue, dispatch each to its handler, and extend the message's
// visibility window for as long as the handler runs. Translated from
// original_source/src/components/executor/{executor,runner}.py - the
// teacher's own internal/queue/worker.go's WorkerPool (N goroutines
// each dequeuing from a shared source and dispatching through a
// type-keyed registry) provided the bounded-pool idiom this generalizes,
// since the routine-level translation in internal/routine already
// covers what the original's monitor_handler.py itself does.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/corerr"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/routine"
	"github.com/aristath/sentinel/internal/store"
)

// handler processes one message's payload, returning an error that, if
// it wraps corerr.BaseError, must stop the whole executor rather than
// just being logged - spec.md's "re-raised to the outer supervisor".
type handler func(ctx context.Context, payload map[string]any) error

// Executor drives the bounded runner pool.
type Executor struct {
	q        queue.Queue
	reg      *registry.Registry
	engine   *routine.Engine
	monitors   *store.MonitorRepository
	events     *store.AuditEventRepository
	executions *store.ExecutionRepository
	bus        *events.Bus
	db         *store.DB

	concurrency     int
	sleep           time.Duration
	waitMessageTime time.Duration
	monitorTimeout  time.Duration
	reactionTimeout time.Duration
	requestTimeout  time.Duration

	dispatch map[queue.MessageType]handler
	actions  map[string]PluginAction
	plugins  *PluginRegistry

	log zerolog.Logger
}

// New builds an Executor wired against every dependency its three
// handlers need.
func New(db *store.DB, q queue.Queue, reg *registry.Registry, engine *routine.Engine, bus *events.Bus, plugins *PluginRegistry, cfg *config.Config, log zerolog.Logger) *Executor {
	e := &Executor{
		q:               q,
		reg:             reg,
		engine:          engine,
		monitors:        store.NewMonitorRepository(db),
		events:          store.NewAuditEventRepository(db),
		executions:      store.NewExecutionRepository(db),
		bus:             bus,
		db:              db,
		concurrency:     cfg.ExecutorConcurrency,
		sleep:           cfg.ExecutorSleep,
		waitMessageTime: cfg.QueueWaitMessageTime,
		monitorTimeout:  cfg.ExecutorMonitorTimeout,
		reactionTimeout: cfg.ExecutorReactionTimeout,
		requestTimeout:  cfg.ExecutorRequestTimeout,
		plugins:         plugins,
		log:             log.With().Str("component", "executor").Logger(),
	}
	e.actions = e.registerBuiltinActions()
	e.dispatch = map[queue.MessageType]handler{
		queue.TypeProcessMonitor: e.handleProcessMonitor,
		queue.TypeEvent:          e.handleEvent,
		queue.TypeRequest:        e.handleRequest,
	}
	return e
}

// Run starts concurrency runners and blocks until ctx is cancelled and
// every runner has returned.
func (e *Executor) Run(ctx context.Context) {
	e.log.Info().Int("concurrency", e.concurrency).Msg("executor running")

	fatal := make(chan error, e.concurrency)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	for i := 0; i < e.concurrency; i++ {
		go func(id int) {
			e.runner(runCtx, id, fatal)
			done <- struct{}{}
		}(i)
	}

	select {
	case err := <-fatal:
		e.log.Error().Err(err).Msg("fatal error, stopping executor")
		cancel()
	case <-ctx.Done():
	}

	for i := 0; i < e.concurrency; i++ {
		<-done
	}
	e.log.Info().Msg("executor finished")
}

// runner is one pool worker's loop: wait for the registry, receive a
// message, dispatch it with a heartbeat goroutine extending its
// visibility, delete it only on handler success.
func (e *Executor) runner(ctx context.Context, id int, fatal chan<- error) {
	log := e.log.With().Int("runner_id", id).Logger()
	for ctx.Err() == nil {
		if err := e.reg.WaitReady(ctx); err != nil {
			// spec.md §4.H step 1: a registry-ready timeout is logged and
			// the outer loop simply continues, unlike a handler error.
			log.Warn().Err(err).Msg("registry not ready, retrying")
			continue
		}

		msg, err := e.q.Receive(ctx, e.sleep)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to receive message")
			continue
		}
		if msg == nil {
			continue
		}

		e.processMessage(ctx, log, msg, fatal)
	}
}

func (e *Executor) processMessage(ctx context.Context, log zerolog.Logger, msg *queue.Handle, fatal chan<- error) {
	h, ok := e.dispatch[msg.Message.Type]
	if !ok {
		log.Warn().Str("message_type", string(msg.Message.Type)).Msg("no handler for message type")
		return
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.changeVisibilityLoop(heartbeatCtx, msg)

	err := h(ctx, msg.Message.Payload)
	if err != nil {
		if corerr.IsBase(err) {
			select {
			case fatal <- err:
			default:
			}
			return
		}
		log.Error().Err(err).Str("message_type", string(msg.Message.Type)).Msg("handler failed, message left in queue")
		return
	}

	if err := e.q.Delete(ctx, msg); err != nil && err != queue.ErrNotFound {
		log.Error().Err(err).Msg("failed to delete processed message")
	}
}

// changeVisibilityLoop extends msg's invisibility window every
// waitMessageTime seconds until ctx is cancelled, which happens as soon
// as processMessage's handler returns - a scoped resource guaranteed to
// stop no matter how the handler exits.
func (e *Executor) changeVisibilityLoop(ctx context.Context, msg *queue.Handle) {
	ticker := time.NewTicker(e.waitMessageTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.q.Heartbeat(ctx, msg); err != nil && err != queue.ErrNotFound {
				e.log.Warn().Err(err).Msg("failed to extend message visibility")
			}
		}
	}
}

// decodePayload round-trips payload through JSON into dst, the Go
// analogue of the original's pydantic RequestPayload(**message["payload"])
// validation - a payload missing required fields surfaces as a JSON
// unmarshal error instead of a KeyError/ValidationError.
func decodePayload(payload map[string]any, dst any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(encoded, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
