package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/livecue/command"
	"github.com/onnwee/livecue/db"
)

// StatusSource reports dispatcher state (command.Dispatcher).
type StatusSource interface {
	Snapshot() command.State
}

// StreamState reports whether a chat stream is attached (chat.Slot).
type StreamState interface {
	IsOpen() bool
}

// AuditReader reads the audit trail (db.Store).
type AuditReader interface {
	Ping(ctx context.Context) error
	RecentCommands(ctx context.Context, limit int) ([]db.CommandEvent, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status StatusSource
	stream StreamState
	audit  AuditReader
}

// NewHandlers returns handlers; audit may be nil when no database is configured.
func NewHandlers(status StatusSource, stream StreamState, audit AuditReader) *Handlers {
	return &Handlers{status: status, stream: stream, audit: audit}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.Any("err", err), slog.String("component", "http"))
	}
}
