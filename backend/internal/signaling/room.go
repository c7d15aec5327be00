package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Role is assigned by join order: the first free slot defends.
type Role string

const (
	RoleDefender   Role = "Defender"
	RoleChallenger Role = "Challenger"
)

// Room origins.
const (
	OriginMatchmaking = "matchmaking"
	OriginCreate      = "create"
)

type member struct {
	id       string
	subject  string
	name     string
	role     Role
	muted    bool
	speaking bool
	peer     Peer
	joinedAt time.Time
}

func (m *member) view() Participant {
	return Participant{
		ID:       m.id,
		Name:     m.name,
		Role:     m.role,
		Muted:    m.muted,
		Speaking: m.speaking,
	}
}

// Room is one two-party session. Every field below mu is guarded by it.
// The Registry is the only place rooms are created and destroyed.
type Room struct {
	Code      string
	CreatedAt time.Time
	Origin    string

	max    int
	logger *slog.Logger

	mu      sync.Mutex
	members []*member
	closed  bool
	reap    *time.Timer
	reapGen uint64
}

func newRoom(code, origin string, max int, logger *slog.Logger) *Room {
	return &Room{
		Code:      code,
		CreatedAt: time.Now(),
		Origin:    origin,
		max:       max,
		logger:    logger.With("room_code", code),
	}
}

// joinResult is what the Registry needs to finish a join outside the lock.
type joinResult struct {
	participant Participant
	subject     string
	rebound     bool
	stale       Peer
}

// join admits peer as subject, or rebinds the existing participant when
// subject is already present. Caller holds r.mu.
func (r *Room) join(peer Peer, subject, name string) (joinResult, error) {
	if r.closed {
		return joinResult{}, WrapError("join", ErrNotFound, r.Code)
	}

	if m, ok := lo.Find(r.members, func(m *member) bool { return m.subject == subject }); ok {
		stale := m.peer
		m.peer = peer
		m.name = name
		r.stopReap()

		r.sendTo(m, r.stateFor(m))
		r.logger.Info("participant rebound", "participant_id", m.id)
		return joinResult{participant: m.view(), subject: subject, rebound: true, stale: stale}, nil
	}

	if len(r.members) >= r.max {
		return joinResult{}, WrapError("join", ErrRoomFull, r.Code)
	}

	m := &member{
		id:       uuid.NewString(),
		subject:  subject,
		name:     name,
		role:     r.freeRole(),
		peer:     peer,
		joinedAt: time.Now(),
	}
	r.members = append(r.members, m)
	r.stopReap()

	r.sendTo(m, r.stateFor(m))
	r.broadcast(m.id, ParticipantJoined{Type: TypeParticipantJoined, Participant: m.view()})

	r.logger.Info("participant joined", "participant_id", m.id, "role", m.role)
	return joinResult{participant: m.view(), subject: subject}, nil
}

// leave removes a participant. When peer is non-nil the participant is only
// removed if it is still bound to that peer, so a stale connection closing
// after a rebind leaves the room untouched. Caller holds r.mu.
func (r *Room) leave(participantID string, peer Peer) (*member, error) {
	m, idx, ok := lo.FindIndexOf(r.members, func(m *member) bool { return m.id == participantID })
	if !ok {
		return nil, WrapError("leave", ErrNotFound, participantID)
	}

	if peer != nil && m.peer != peer {
		return nil, WrapError("leave", ErrStateConflict, "participant rebound to another connection")
	}

	r.members = append(r.members[:idx], r.members[idx+1:]...)
	r.broadcast(m.id, ParticipantLeft{Type: TypeParticipantLeft, UserID: m.id})

	r.logger.Info("participant left", "participant_id", m.id, "remaining", len(r.members))
	return m, nil
}

// relay applies ev from sender and fans it out to every other member. A
// non-nil peer must be the connection the sender is currently bound to.
// Caller holds r.mu.
func (r *Room) relay(senderID string, peer Peer, ev Event) error {
	sender, ok := lo.Find(r.members, func(m *member) bool { return m.id == senderID })
	if !ok {
		return WrapError("relay", ErrNotFound, senderID)
	}
	if peer != nil && sender.peer != peer {
		return WrapError("relay", ErrStateConflict, "participant rebound to another connection")
	}

	var out any
	switch ev.Type {
	case TypeChatMessage:
		out = ChatRelay{Type: TypeChatMessage, UserID: sender.id, Sender: sender.name, Message: ev.Text}
	case TypeToggleAudio:
		sender.muted = ev.Flag
		if sender.muted {
			sender.speaking = false
		}
		out = AudioStatus{Type: TypeAudioStatus, UserID: sender.id, Muted: sender.muted}
	case TypeSpeakingStatus:
		sender.speaking = ev.Flag
		out = SpeakingStatus{Type: TypeSpeakingStatus, UserID: sender.id, IsSpeaking: sender.speaking}
	case TypeSpeechTranscript:
		out = TranscriptRelay{Type: TypeSpeechTranscript, UserID: sender.id, Sender: sender.name, Transcript: ev.Text, Final: ev.Final}
	case TypeSignal:
		out = SignalRelay{Type: TypeSignal, UserID: sender.id, Payload: ev.Payload}
	default:
		return WrapError("relay", ErrProtocol, ev.Type)
	}

	r.broadcast(sender.id, out)
	return nil
}

// has reports whether subject is seated. Caller holds r.mu.
func (r *Room) has(subject string) bool {
	return lo.SomeBy(r.members, func(m *member) bool { return m.subject == subject })
}

// broadcast sends msg to everyone except the member with id except.
func (r *Room) broadcast(except string, msg any) {
	for _, m := range r.members {
		if m.id == except {
			continue
		}
		r.sendTo(m, msg)
	}
}

func (r *Room) sendTo(m *member, msg any) {
	if err := m.peer.Send(msg); err != nil {
		r.logger.Debug("delivery failed", "participant_id", m.id, "error", err)
	}
}

func (r *Room) stateFor(self *member) RoomState {
	return RoomState{
		Type:     TypeRoomState,
		RoomCode: r.Code,
		Self:     self.view(),
		Participants: lo.FilterMap(r.members, func(m *member, _ int) (Participant, bool) {
			return m.view(), m.id != self.id
		}),
	}
}

func (r *Room) freeRole() Role {
	taken := lo.SomeBy(r.members, func(m *member) bool { return m.role == RoleDefender })
	if taken {
		return RoleChallenger
	}
	return RoleDefender
}

// stopReap disarms the grace timer. A timer that already fired is made
// stale by bumping reapGen.
func (r *Room) stopReap() {
	r.reapGen++
	if r.reap != nil {
		r.reap.Stop()
		r.reap = nil
	}
}

// Participants returns a snapshot of the current members in join order.
func (r *Room) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.members, func(m *member, _ int) Participant { return m.view() })
}

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
