package chat

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBufferSize = 256

// Buffer is a push-fed Stream: producers call Push from any goroutine and the
// dispatcher drains batches with NextBatch. When the buffer is full new events are
// dropped so a slow consumer cannot stall the producer's connection.
type Buffer struct {
	events chan Event
	done   chan struct{}
	once   sync.Once

	onClose func() error
}

// NewBuffer returns an open buffer; onClose (optional) runs once on the first Close.
func NewBuffer(size int, onClose func() error) *Buffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Buffer{events: make(chan Event, size), done: make(chan struct{}), onClose: onClose}
}

// Push enqueues ev; it reports false when the event was dropped.
func (b *Buffer) Push(ev Event) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.events <- ev:
		return true
	default:
		slog.Warn("chat buffer full; dropping message", slog.String("author", ev.Author), slog.String("component", "chat"))
		return false
	}
}

// IsOpen reports false once the buffer is closed and fully drained.
func (b *Buffer) IsOpen() bool {
	select {
	case <-b.done:
		return len(b.events) > 0
	default:
		return true
	}
}

// NextBatch blocks until at least one event is queued, then returns everything queued.
// Events already queued when the buffer closes are still delivered.
func (b *Buffer) NextBatch(ctx context.Context) ([]Event, error) {
	select {
	case ev := <-b.events:
		return b.drain([]Event{ev}), nil
	default:
	}
	select {
	case ev := <-b.events:
		return b.drain([]Event{ev}), nil
	case <-b.done:
		if batch := b.drain(nil); len(batch) > 0 {
			return batch, nil
		}
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Buffer) drain(batch []Event) []Event {
	for {
		select {
		case ev := <-b.events:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

// Shutdown marks the buffer closed without running onClose. Producers call it when
// their connection ends on its own.
func (b *Buffer) Shutdown() {
	b.once.Do(func() { close(b.done) })
}

// Close marks the buffer closed and releases the producer.
func (b *Buffer) Close() error {
	var err error
	first := false
	b.once.Do(func() {
		close(b.done)
		first = true
	})
	if first && b.onClose != nil {
		err = b.onClose()
	}
	return err
}
