package chat

import (
	"context"
	"errors"
	"time"

	"github.com/onnwee/livecue/config"
)

// ErrStreamClosed is returned by NextBatch once the stream can deliver no more events.
var ErrStreamClosed = errors.New("chat stream closed")

// Event is one chat message as seen by the dispatcher.
type Event struct {
	ID          string
	Author      string
	Message     string
	PublishedAt time.Time
}

// Stream is an open connection to a live chat.
type Stream interface {
	IsOpen() bool
	NextBatch(ctx context.Context) ([]Event, error)
	Close() error
}

// Opener opens a Stream for a session identifier. The action snapshot carries any
// credentials the platform needs.
type Opener func(ctx context.Context, sessionID string, actions *config.Actions) (Stream, error)
