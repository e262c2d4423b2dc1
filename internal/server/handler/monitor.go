package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// MonitorTrigger starts a monitor round out of schedule.
type MonitorTrigger interface {
	Trigger() bool
}

// MonitorHandler serves the monitor trigger endpoint.
type MonitorHandler struct {
	monitor MonitorTrigger
	logger  *slog.Logger
}

func NewMonitorHandler(monitor MonitorTrigger, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, logger: logHandler(logger, "monitor")}
}

// Trigger enqueues one monitor round. A trigger that is still pending is not
// queued twice.
// POST /api/monitor/trigger
func (h *MonitorHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	queued := h.monitor.Trigger()
	h.logger.InfoContext(r.Context(), "handler: monitor trigger requested", slog.Bool("queued", queued))
	msg := "monitor round enqueued"
	if !queued {
		msg = "monitor round already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
