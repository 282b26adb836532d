package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/livecue/command"
	"github.com/onnwee/livecue/db"
	"github.com/onnwee/livecue/telemetry"
)

// HandleHealthz is the liveness probe; the process answering is enough.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready while a chat stream is attached and the audit database, if
// configured, answers.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"chat_stream", func() error {
			if h.stream == nil || !h.stream.IsOpen() {
				return errors.New("chat stream closed")
			}
			return nil
		}},
		{"database", func() error {
			if h.audit == nil {
				return nil
			}
			return h.audit.Ping(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	command.State
	StreamOpen bool              `json:"stream_open"`
	Recent     []db.CommandEvent `json:"recent_commands,omitempty"`
	AuditError string            `json:"audit_error,omitempty"`
}

// HandleStatus returns the session, expression states, and recent audited commands.
// ?limit= bounds the audit rows (default 20).
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{State: h.status.Snapshot()}
	if h.stream != nil {
		resp.StreamOpen = h.stream.IsOpen()
	}
	if h.audit != nil {
		limit := 20
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		recent, err := h.audit.RecentCommands(r.Context(), limit)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("read audit trail", slog.Any("err", err), slog.String("component", "http"))
			resp.AuditError = "audit trail unavailable"
		}
		resp.Recent = recent
	}
	writeJSON(w, http.StatusOK, resp)
}
