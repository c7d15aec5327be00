package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/CodinGakpo/DebateIT/backend/internal/events"
	"github.com/CodinGakpo/DebateIT/backend/internal/identity"
)

type RegistryOptions struct {
	// Grace is how long an empty room survives before it is reclaimed.
	Grace           time.Duration
	MaxParticipants int
	// CodeAttempts bounds code generation retries on collision.
	CodeAttempts int
	Generate     CodeGenerator
	Publisher    events.Publisher
	Logger       *slog.Logger
}

// RoomSummary is the read-only view of a room served over the API.
type RoomSummary struct {
	Code         string        `json:"room_code"`
	CreatedAt    time.Time     `json:"created_at"`
	Origin       string        `json:"origin"`
	Participants []Participant `json:"participants"`
}

type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	Waiting      int `json:"waiting"`
}

// Registry owns every active room.
//
// Locking: mu guards rooms, members and joining and is always taken before
// a room's own lock. It is held only for map bookkeeping; room mutations
// and the messages they send run under the room's lock alone, so rooms
// never wait on each other.
type Registry struct {
	opts RegistryOptions

	mu      sync.RWMutex
	rooms   map[string]*Room
	members map[string]string // identity subject -> room code
	joining map[string]int    // identity subject -> joins in flight
	closed  bool
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = 2
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = 16
	}
	if opts.Generate == nil {
		opts.Generate = RandomCode
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Registry{
		opts:    opts,
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		joining: make(map[string]int),
	}
}

// Create allocates a fresh room. An empty room is reclaimed after the grace
// period unless somebody joins first.
func (g *Registry) Create(origin string) (*Room, error) {
	g.mu.Lock()

	if g.closed {
		g.mu.Unlock()
		return nil, NewError("create room", ErrClosed)
	}

	var room *Room
	for i := 0; i < g.opts.CodeAttempts; i++ {
		code, err := g.opts.Generate()
		if err != nil {
			g.mu.Unlock()
			return nil, NewError("create room", err)
		}
		if _, taken := g.rooms[code]; taken {
			continue
		}
		room = newRoom(code, origin, g.opts.MaxParticipants, g.opts.Logger)
		break
	}
	if room == nil {
		g.mu.Unlock()
		return nil, WrapError("create room", ErrStateConflict, "no free room code")
	}

	g.rooms[room.Code] = room
	room.mu.Lock()
	g.scheduleReap(room)
	room.mu.Unlock()
	g.mu.Unlock()

	g.opts.Logger.Info("room created", "room_code", room.Code, "origin", origin)
	g.publish(events.Event{Kind: events.RoomCreated, RoomCode: room.Code, Origin: origin})
	return room, nil
}

// Get returns the active room for code.
func (g *Registry) Get(code string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[NormalizeCode(code)]
	if !ok {
		return nil, WrapError("get room", ErrNotFound, code)
	}
	return room, nil
}

// RoomOf reports which room subject currently belongs to.
func (g *Registry) RoomOf(subject string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	code, ok := g.members[subject]
	return code, ok
}

// Join admits peer into the room as who. The joiner receives room_state and
// everyone else participant_joined. A second join with the same subject
// rebinds the existing participant to peer and closes the previous
// connection.
//
// The subject's membership is reserved before the room is touched so a
// concurrent join elsewhere sees the conflict; a failed join releases it.
func (g *Registry) Join(code string, peer Peer, who identity.Identity) (Participant, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return Participant{}, WrapError("join", ErrNotFound, "malformed room code")
	}

	g.mu.Lock()
	room, ok := g.rooms[code]
	if !ok {
		g.mu.Unlock()
		return Participant{}, WrapError("join", ErrNotFound, code)
	}
	if other, ok := g.members[who.Subject]; ok && other != code {
		g.mu.Unlock()
		return Participant{}, WrapError("join", ErrStateConflict, "already in room "+other)
	}
	g.members[who.Subject] = code
	g.joining[who.Subject]++
	g.mu.Unlock()

	room.mu.Lock()
	res, err := room.join(peer, who.Subject, who.Name)
	room.mu.Unlock()

	g.mu.Lock()
	if g.joining[who.Subject]--; g.joining[who.Subject] <= 0 {
		delete(g.joining, who.Subject)
	}
	if err != nil {
		g.release(room, who.Subject)
	}
	g.mu.Unlock()

	if err != nil {
		return Participant{}, err
	}

	if res.rebound {
		if res.stale != nil && res.stale != peer {
			res.stale.Close()
		}
		return res.participant, nil
	}

	g.publish(events.Event{
		Kind:          events.ParticipantJoined,
		RoomCode:      code,
		ParticipantID: res.participant.ID,
		Subject:       who.Subject,
		Role:          string(res.participant.Role),
	})
	return res.participant, nil
}

// Leave removes the participant immediately.
func (g *Registry) Leave(code, participantID string) error {
	return g.leave(code, participantID, nil)
}

// Disconnect is Leave for a closing connection: it is a no-op when the
// participant has since been rebound to a newer connection.
func (g *Registry) Disconnect(code, participantID string, peer Peer) error {
	return g.leave(code, participantID, peer)
}

func (g *Registry) leave(code, participantID string, peer Peer) error {
	code = NormalizeCode(code)

	g.mu.RLock()
	room, ok := g.rooms[code]
	g.mu.RUnlock()
	if !ok {
		return WrapError("leave", ErrNotFound, code)
	}

	room.mu.Lock()
	m, err := room.leave(participantID, peer)
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.release(room, m.subject)
	room.mu.Lock()
	if len(room.members) == 0 && !room.closed {
		g.scheduleReap(room)
	}
	room.mu.Unlock()
	g.mu.Unlock()

	g.publish(events.Event{
		Kind:          events.ParticipantLeft,
		RoomCode:      code,
		ParticipantID: m.id,
		Subject:       m.subject,
		Role:          string(m.role),
	})
	return nil
}

// release drops subject's membership of room unless another join for it is
// still in flight or it is seated there again. Caller holds g.mu.
func (g *Registry) release(room *Room, subject string) {
	if g.members[subject] != room.Code || g.joining[subject] > 0 {
		return
	}
	room.mu.Lock()
	seated := room.has(subject)
	room.mu.Unlock()
	if !seated {
		delete(g.members, subject)
	}
}

// Relay fans ev out from sender to the other participants of the room.
func (g *Registry) Relay(code, senderID string, ev Event) error {
	return g.relay(code, senderID, nil, ev)
}

// RelayFrom is Relay for a live connection: it is refused with
// ErrStateConflict once the participant has been rebound to another peer.
func (g *Registry) RelayFrom(code, senderID string, peer Peer, ev Event) error {
	return g.relay(code, senderID, peer, ev)
}

func (g *Registry) relay(code, senderID string, peer Peer, ev Event) error {
	g.mu.RLock()
	room, ok := g.rooms[NormalizeCode(code)]
	g.mu.RUnlock()
	if !ok {
		return WrapError("relay", ErrNotFound, code)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return room.relay(senderID, peer, ev)
}

func (g *Registry) Summary(code string) (RoomSummary, error) {
	room, err := g.Get(code)
	if err != nil {
		return RoomSummary{}, err
	}
	return RoomSummary{
		Code:         room.Code,
		CreatedAt:    room.CreatedAt,
		Origin:       room.Origin,
		Participants: room.Participants(),
	}, nil
}

// Stats counts rooms and participants. Waiting is left for the caller.
func (g *Registry) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{
		Rooms:        len(g.rooms),
		Participants: len(g.members),
	}
}

// Close drops every room and closes every participant connection.
func (g *Registry) Close() {
	g.mu.Lock()
	g.closed = true
	rooms := lo.Values(g.rooms)
	var peers []Peer
	for _, room := range rooms {
		room.mu.Lock()
		room.stopReap()
		room.closed = true
		peers = append(peers, lo.Map(room.members, func(m *member, _ int) Peer { return m.peer })...)
		room.members = nil
		room.mu.Unlock()
	}
	g.rooms = make(map[string]*Room)
	g.members = make(map[string]string)
	g.joining = make(map[string]int)
	g.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	for _, room := range rooms {
		g.publish(events.Event{Kind: events.RoomClosed, RoomCode: room.Code, Origin: room.Origin})
	}
}

// scheduleReap arms the grace timer. Caller holds room.mu.
func (g *Registry) scheduleReap(room *Room) {
	room.stopReap()
	gen := room.reapGen
	room.reap = time.AfterFunc(g.opts.Grace, func() { g.reap(room, gen) })
}

func (g *Registry) reap(room *Room, gen uint64) {
	g.mu.Lock()
	room.mu.Lock()
	if room.closed || room.reapGen != gen || len(room.members) > 0 || g.rooms[room.Code] != room {
		room.mu.Unlock()
		g.mu.Unlock()
		return
	}
	room.closed = true
	room.reap = nil
	delete(g.rooms, room.Code)
	room.mu.Unlock()
	g.mu.Unlock()

	g.opts.Logger.Info("room reclaimed", "room_code", room.Code, "age", time.Since(room.CreatedAt).Round(time.Second))
	g.publish(events.Event{Kind: events.RoomClosed, RoomCode: room.Code, Origin: room.Origin})
}

func (g *Registry) publish(ev events.Event) {
	ev.At = time.Now()
	if err := g.opts.Publisher.Publish(context.Background(), ev); err != nil {
		g.opts.Logger.Warn("publish event failed", "kind", ev.Kind, "room_code", ev.RoomCode, "error", err)
	}
}
