// Package events publishes room lifecycle notifications for consumers that
// live outside the session layer (scoring, transcript archiving). Nothing in
// the relay path waits on a consumer.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type Kind string

const (
	RoomCreated       Kind = "room_created"
	MatchMade         Kind = "match_made"
	ParticipantJoined Kind = "participant_joined"
	ParticipantLeft   Kind = "participant_left"
	RoomClosed        Kind = "room_closed"
)

// Event is the msgpack body published on the bus.
type Event struct {
	Kind          Kind      `msgpack:"kind"`
	RoomCode      string    `msgpack:"room_code"`
	Origin        string    `msgpack:"origin,omitempty"`
	ParticipantID string    `msgpack:"participant_id,omitempty"`
	Subject       string    `msgpack:"subject,omitempty"`
	Role          string    `msgpack:"role,omitempty"`
	At            time.Time `msgpack:"at"`
}

func Encode(ev Event) ([]byte, error) {
	return msgpack.Marshal(ev)
}

func Decode(data []byte) (Event, error) {
	var ev Event
	err := msgpack.Unmarshal(data, &ev)
	return ev, err
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Async hands events to a background goroutine through a bounded queue so
// callers never block on the bus. Events are dropped when the queue is full.
type Async struct {
	next   Publisher
	queue  chan Event
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   next,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

// Publish queues ev. Events published after Close are discarded.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}

	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("event queue full, dropping event", "kind", ev.Kind, "room_code", ev.RoomCode)
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.next.Publish(ctx, ev); err != nil {
			a.logger.Warn("publish event failed", "kind", ev.Kind, "room_code", ev.RoomCode, "error", err)
		}
		cancel()
	}
}

// Close drains the queue and closes the wrapped publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}
