package signaling

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/CodinGakpo/DebateIT/backend/internal/events"
)

type MatchmakerOptions struct {
	// QueueTTL is how long an entry may wait before it expires.
	QueueTTL time.Duration
	// Interval is the period of the background pair/expire sweep in Run.
	Interval  time.Duration
	Publisher events.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

type waitingEntry struct {
	peer       Peer
	subject    string
	enqueuedAt time.Time
}

// Match is one pairing made by the Matchmaker.
type Match struct {
	Code  string
	Peers [2]Peer
}

// Matchmaker pairs waiting connections in strict FIFO order. A single mutex
// serializes the queue; notifications are sent after it is released.
type Matchmaker struct {
	registry *Registry
	opts     MatchmakerOptions

	mu     sync.Mutex
	queue  []*waitingEntry
	closed bool
}

func NewMatchmaker(registry *Registry, opts MatchmakerOptions) *Matchmaker {
	if opts.QueueTTL <= 0 {
		opts.QueueTTL = 2 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Matchmaker{registry: registry, opts: opts}
}

// Enqueue adds peer to the back of the queue, acknowledges with waiting and
// then tries to pair. It fails with ErrStateConflict when peer (or another
// connection of the same subject) is already queued, or when subject is
// already seated in a room.
func (m *Matchmaker) Enqueue(peer Peer, subject string) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return NewError("enqueue", ErrClosed)
	}
	if lo.SomeBy(m.queue, func(e *waitingEntry) bool { return e.peer.ID() == peer.ID() || e.subject == subject }) {
		m.mu.Unlock()
		return WrapError("enqueue", ErrStateConflict, "already queued")
	}
	if code, ok := m.registry.RoomOf(subject); ok {
		m.mu.Unlock()
		return WrapError("enqueue", ErrStateConflict, "already in room "+code)
	}

	m.queue = append(m.queue, &waitingEntry{peer: peer, subject: subject, enqueuedAt: m.opts.Now()})
	if err := peer.Send(MatchStatus{Status: StatusWaiting}); err != nil {
		m.opts.Logger.Debug("waiting ack failed", "conn_id", peer.ID(), "error", err)
	}
	m.mu.Unlock()

	m.opts.Logger.Info("connection queued", "conn_id", peer.ID(), "waiting", m.Len())
	m.Pair()
	return nil
}

// Cancel removes peer from the queue. It reports whether an entry was
// removed; cancelling an unqueued peer is a no-op.
func (m *Matchmaker) Cancel(peer Peer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.queue)
	m.queue = slices.DeleteFunc(m.queue, func(e *waitingEntry) bool { return e.peer.ID() == peer.ID() })
	removed := len(m.queue) < before
	if removed {
		m.opts.Logger.Info("connection left queue", "conn_id", peer.ID())
	}
	return removed
}

// Pair matches the two oldest live entries until fewer than two remain.
// Each matched connection gets exactly one matched status and is then closed.
func (m *Matchmaker) Pair() []Match {
	m.mu.Lock()

	var matches []Match
	for len(m.queue) >= 2 {
		a, b := m.queue[0], m.queue[1]
		m.queue = m.queue[2:]

		// A closed connection aborts the pair; the live one keeps its place.
		if a.peer.Closed() || b.peer.Closed() {
			live := lo.Filter([]*waitingEntry{a, b}, func(e *waitingEntry, _ int) bool { return !e.peer.Closed() })
			m.queue = append(live, m.queue...)
			continue
		}

		room, err := m.registry.Create(OriginMatchmaking)
		if err != nil {
			m.queue = append([]*waitingEntry{a, b}, m.queue...)
			m.opts.Logger.Error("create room for match failed", "error", err)
			break
		}
		matches = append(matches, Match{Code: room.Code, Peers: [2]Peer{a.peer, b.peer}})
	}
	m.mu.Unlock()

	for _, match := range matches {
		for _, p := range match.Peers {
			if err := p.Send(MatchStatus{Status: StatusMatched, RoomCode: match.Code}); err != nil {
				m.opts.Logger.Warn("matched notification failed", "conn_id", p.ID(), "room_code", match.Code, "error", err)
			}
			p.Close()
		}
		m.opts.Logger.Info("match made", "room_code", match.Code)
		m.publish(events.Event{Kind: events.MatchMade, RoomCode: match.Code, Origin: OriginMatchmaking})
	}
	return matches
}

// Expire drops entries that waited longer than the queue TTL, telling each
// one it expired. It returns how many entries were dropped.
func (m *Matchmaker) Expire() int {
	now := m.opts.Now()

	m.mu.Lock()
	expired, kept := lo.FilterReject(m.queue, func(e *waitingEntry, _ int) bool {
		return now.Sub(e.enqueuedAt) >= m.opts.QueueTTL
	})
	m.queue = kept
	m.mu.Unlock()

	for _, e := range expired {
		e.peer.Send(MatchStatus{Status: StatusExpired})
		e.peer.Close()
		m.opts.Logger.Info("queue entry expired", "conn_id", e.peer.ID())
	}
	return len(expired)
}

// Close empties the queue and refuses further entries. Every waiting
// connection is told the service went away and is then closed.
func (m *Matchmaker) Close() {
	m.mu.Lock()
	m.closed = true
	waiting := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, e := range waiting {
		if err := e.peer.Send(MatchStatus{Status: StatusError, Error: ErrConnection.Error()}); err != nil {
			m.opts.Logger.Debug("shutdown notice failed", "conn_id", e.peer.ID(), "error", err)
		}
		e.peer.Close()
	}
	if len(waiting) > 0 {
		m.opts.Logger.Info("matchmaking queue drained", "waiting", len(waiting))
	}
}

// Run sweeps the queue until ctx is done.
func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire()
			m.Pair()
		}
	}
}

func (m *Matchmaker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Matchmaker) publish(ev events.Event) {
	ev.At = m.opts.Now()
	if err := m.opts.Publisher.Publish(context.Background(), ev); err != nil {
		m.opts.Logger.Warn("publish event failed", "kind", ev.Kind, "error", err)
	}
}
