package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

// monitorHandlers serves the operator-facing read/act surface over
// monitors, alerts, issues and notifications. Actions (acknowledge,
// lock, solve, drop) never touch the repositories directly - they
// enqueue a queue.TypeRequest message and let the executor's
// registerBuiltinActions table apply it, the same path a Slack
// interaction or a CLI would use.
type monitorHandlers struct {
	db    *store.DB
	q     queue.Queue
	reg   *registry.Registry
	log   zerolog.Logger

	monitors      *store.MonitorRepository
	alerts        *store.AlertRepository
	issues        *store.IssueRepository
	notifications *store.NotificationRepository
}

func newMonitorHandlers(db *store.DB, q queue.Queue, reg *registry.Registry, log zerolog.Logger) *monitorHandlers {
	return &monitorHandlers{
		db:            db,
		q:             q,
		reg:           reg,
		log:           log.With().Str("handler", "monitors").Logger(),
		monitors:      store.NewMonitorRepository(db),
		alerts:        store.NewAlertRepository(db),
		issues:        store.NewIssueRepository(db),
		notifications: store.NewNotificationRepository(db),
	}
}

func (h *monitorHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *monitorHandlers) HandleListMonitors(w http.ResponseWriter, r *http.Request) {
	all, err := h.monitors.GetAll(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, all)
}

func (h *monitorHandlers) HandleGetMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	monitor, err := h.monitors.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, monitor)
}

func (h *monitorHandlers) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	active, err := h.alerts.GetActiveByMonitor(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, active)
}

func (h *monitorHandlers) HandleListIssues(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	active, err := h.issues.GetActiveByAlert(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, active)
}

func (h *monitorHandlers) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		h.writeError(w, http.StatusBadRequest, errMissingTarget)
		return
	}
	active, err := h.notifications.GetActiveByTarget(r.Context(), target)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, active)
}

func (h *monitorHandlers) HandleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.enqueueAction(w, r, "alert_acknowledge")
}

func (h *monitorHandlers) HandleAlertLock(w http.ResponseWriter, r *http.Request) {
	h.enqueueAction(w, r, "alert_lock")
}

func (h *monitorHandlers) HandleAlertSolve(w http.ResponseWriter, r *http.Request) {
	h.enqueueAction(w, r, "alert_solve")
}

func (h *monitorHandlers) HandleIssueDrop(w http.ResponseWriter, r *http.Request) {
	h.enqueueAction(w, r, "issue_drop")
}

// enqueueAction sends a queue.TypeRequest message carrying the target ID
// path param - the same shape the executor's actionTargetID decodes.
func (h *monitorHandlers) enqueueAction(w http.ResponseWriter, r *http.Request, action string) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	payload := map[string]any{
		"action": action,
		"params": map[string]any{"target_id": id},
	}

	if err := h.q.Send(r.Context(), queue.TypeRequest, payload); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "action": action})
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

func (h *monitorHandlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode json response")
	}
}

func (h *monitorHandlers) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errMissingTarget = &missingParamError{"target"}

type missingParamError struct{ param string }

func (e *missingParamError) Error() string {
	return "missing required query parameter: " + e.param
}
