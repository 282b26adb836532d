package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/livecue/config"
)

// Slot owns the single active Stream. The dispatcher drives it from one goroutine;
// the mutex only guards reads from the status endpoint.
type Slot struct {
	open Opener

	mu        sync.Mutex
	stream    Stream
	sessionID string
}

// NewSlot returns an empty slot that opens streams with open.
func NewSlot(open Opener) *Slot {
	return &Slot{open: open}
}

// Open opens a stream for sessionID, releasing any previously held stream first.
func (s *Slot) Open(ctx context.Context, sessionID string, actions *config.Actions) error {
	if err := s.Close(); err != nil {
		slog.Warn("closing previous chat stream", slog.Any("err", err), slog.String("component", "chat"))
	}
	st, err := s.open(ctx, sessionID, actions)
	if err != nil {
		return fmt.Errorf("open chat stream for %s: %w", sessionID, err)
	}
	s.mu.Lock()
	s.stream, s.sessionID = st, sessionID
	s.mu.Unlock()
	return nil
}

// Replace points the slot at a new session. The new stream is acquired first and the
// old one is closed immediately after; if the new stream cannot be opened the old one
// stays active and the error is returned.
func (s *Slot) Replace(ctx context.Context, sessionID string, actions *config.Actions) error {
	st, err := s.open(ctx, sessionID, actions)
	if err != nil {
		return fmt.Errorf("open chat stream for %s: %w", sessionID, err)
	}
	s.mu.Lock()
	old := s.stream
	s.stream, s.sessionID = st, sessionID
	s.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("closing previous chat stream", slog.Any("err", err), slog.String("component", "chat"))
		}
	}
	return nil
}

// SessionID returns the session the current stream is attached to.
func (s *Slot) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Slot) current() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// IsOpen reports whether the slot holds a stream that can still deliver events.
func (s *Slot) IsOpen() bool {
	st := s.current()
	return st != nil && st.IsOpen()
}

// NextBatch reads from the current stream without holding the lock.
func (s *Slot) NextBatch(ctx context.Context) ([]Event, error) {
	st := s.current()
	if st == nil {
		return nil, ErrStreamClosed
	}
	return st.NextBatch(ctx)
}

// Close releases the current stream, if any.
func (s *Slot) Close() error {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	err := st.Close()
	if errors.Is(err, ErrStreamClosed) {
		return nil
	}
	return err
}
