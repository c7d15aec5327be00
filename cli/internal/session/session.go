// Package session drives the client side of a debate: finding a match,
// joining a room and talking in it, with at most one live connection per
// purpose at any time.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/CodinGakpo/DebateIT/cli/internal/signaling"
)

// Transport is one open connection to the server.
type Transport interface {
	Send(msg any) error
	// Incoming is closed when the connection ends.
	Incoming() <-chan []byte
	// Err reports why the connection ended; nil for a normal close.
	Err() error
	Close()
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

type Endpoints interface {
	MatchmakingURL() string
	RoomURL(code string) string
}

// Update is emitted on every state change and for every room message.
type Update struct {
	State    State
	Status   Status
	RoomCode string
	Message  *signaling.RoomMessage
	Err      error
}

type Options struct {
	Dialer    Dialer
	Endpoints Endpoints
	Logger    *slog.Logger
	// Buffer sizes the Updates channel. Updates are dropped when it is full.
	Buffer int
}

type Session struct {
	dialer    Dialer
	endpoints Endpoints
	logger    *slog.Logger
	updates   chan Update

	mu       sync.Mutex
	ctx      context.Context
	state    State
	status   Status
	outcome  Outcome
	cause    error
	roomCode string
	room     *Room
	conns    [2]Transport
}

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Session{
		dialer:    opts.Dialer,
		endpoints: opts.Endpoints,
		logger:    opts.Logger,
		updates:   make(chan Update, opts.Buffer),
		ctx:       context.Background(),
	}
}

// Updates delivers state changes and room traffic.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Cause is the error that sent the session to Error, if any.
func (s *Session) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

// Room returns a copy of the current roster, or nil outside a room.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.clone()
}

// FindMatch opens a matchmaking connection and asks for an opponent. Once
// matched the session moves on to the room by itself. It is a no-op while a
// session is already in progress.
func (s *Session) FindMatch(ctx context.Context) error {
	if !s.begin(ctx, "") {
		return nil
	}

	t, err := s.dialer.Dial(ctx, s.endpoints.MatchmakingURL())
	if err != nil {
		s.fail(WrapError("find match", ErrConnection, err.Error()))
		return err
	}

	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		t.Close()
		return nil
	}
	s.own(PurposeMatchmaking, t)
	s.state = Open
	s.mu.Unlock()
	s.emit(Update{State: Open, Status: StatusSearching})

	if err := t.Send(signaling.MatchRequest{Action: signaling.ActionFindMatch}); err != nil {
		s.fail(WrapError("find match", ErrConnection, err.Error()))
		return err
	}

	s.mu.Lock()
	if s.conns[PurposeMatchmaking] == t && s.state == Open {
		s.state = Waiting
	}
	st := s.snapshot()
	s.mu.Unlock()
	s.emit(st)

	go s.read(PurposeMatchmaking, t)
	return nil
}

// Join opens a room connection for code. It is a no-op while a session is
// already in progress.
func (s *Session) Join(ctx context.Context, code string) error {
	if !s.begin(ctx, code) {
		return nil
	}
	return s.openRoom(ctx, code)
}

// Cancel withdraws from matchmaking. Outside Waiting it does nothing.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != Waiting {
		s.mu.Unlock()
		return
	}

	if t := s.conns[PurposeMatchmaking]; t != nil {
		if err := t.Send(signaling.MatchRequest{Action: signaling.ActionCancel}); err != nil {
			s.logger.Debug("cancel not sent", "error", err)
		}
		t.Close()
		s.conns[PurposeMatchmaking] = nil
	}
	s.state = Closed
	s.status = StatusCancelled
	s.outcome = OutcomeCancelled
	st := s.snapshot()
	s.mu.Unlock()

	s.emit(st)
}

// Leave closes the room connection. The session reaches Closed once the
// connection has shut down.
func (s *Session) Leave() {
	s.mu.Lock()
	t := s.conns[PurposeRoom]
	if t == nil || (s.state != Active && s.state != Open) {
		s.mu.Unlock()
		return
	}
	s.state = Closing
	st := s.snapshot()
	s.mu.Unlock()

	s.emit(st)
	t.Close()
}

// Close tears everything down immediately.
func (s *Session) Close() {
	s.mu.Lock()
	s.closeAll()
	if s.state != Closed && s.state != Idle {
		s.state = Closed
		if s.outcome == OutcomeNone {
			s.outcome = OutcomeLeft
		}
	}
	st := s.snapshot()
	s.mu.Unlock()

	s.emit(st)
}

// SendChat sends a chat line to the room.
func (s *Session) SendChat(text string) error {
	return s.sendRoom("send chat", signaling.ChatMessage{Type: signaling.TypeChatMessage, Message: text}, nil)
}

// SetMuted announces the local microphone state.
func (s *Session) SetMuted(muted bool) error {
	return s.sendRoom("toggle audio", signaling.ToggleAudio{Type: signaling.TypeToggleAudio, Muted: muted}, func(r *Room) {
		r.Self.Muted = muted
		if muted {
			r.Self.Speaking = false
		}
	})
}

// SetSpeaking announces a change in voice activity.
func (s *Session) SetSpeaking(speaking bool) error {
	return s.sendRoom("speaking status", signaling.SpeakingStatus{Type: signaling.TypeSpeakingStatus, IsSpeaking: speaking}, func(r *Room) {
		r.Self.Speaking = speaking
	})
}

// SendTranscript relays a transcript fragment. final may be nil.
func (s *Session) SendTranscript(text string, final *bool) error {
	return s.sendRoom("send transcript", signaling.SpeechTranscript{Type: signaling.TypeSpeechTranscript, Transcript: text, Final: final}, nil)
}

// SendSignal relays an opaque voice-plane payload (offer, answer or ICE
// candidate) to the other participant. Incoming signals arrive as Updates
// carrying a signal message.
func (s *Session) SendSignal(payload json.RawMessage) error {
	if !json.Valid(payload) {
		return WrapError("send signal", ErrProtocol, "payload is not JSON")
	}
	return s.sendRoom("send signal", signaling.Signal{Type: signaling.TypeSignal, Payload: payload}, nil)
}

func (s *Session) sendRoom(op string, msg any, local func(*Room)) error {
	s.mu.Lock()
	t := s.conns[PurposeRoom]
	if s.state != Active || t == nil {
		s.mu.Unlock()
		return WrapError(op, ErrStateConflict, "not in a room")
	}
	if local != nil && s.room != nil {
		local(s.room)
	}
	s.mu.Unlock()

	if err := t.Send(msg); err != nil {
		return WrapError(op, ErrConnection, err.Error())
	}
	return nil
}

// begin moves an idle or finished session to Connecting.
func (s *Session) begin(ctx context.Context, code string) bool {
	s.mu.Lock()
	if s.state.busy() {
		s.mu.Unlock()
		return false
	}

	s.ctx = ctx
	s.state = Connecting
	s.status = StatusNone
	if code == "" {
		s.status = StatusSearching
	}
	s.outcome = OutcomeNone
	s.cause = nil
	s.roomCode = code
	s.room = nil
	st := s.snapshot()
	s.mu.Unlock()

	s.emit(st)
	return true
}

func (s *Session) openRoom(ctx context.Context, code string) error {
	t, err := s.dialer.Dial(ctx, s.endpoints.RoomURL(code))
	if err != nil {
		s.fail(WrapError("join room", ErrConnection, err.Error()))
		return err
	}

	s.mu.Lock()
	if s.state != Connecting || s.roomCode != code {
		s.mu.Unlock()
		t.Close()
		return nil
	}
	s.own(PurposeRoom, t)
	s.state = Open
	st := s.snapshot()
	s.mu.Unlock()
	s.emit(st)

	go s.read(PurposeRoom, t)
	return nil
}

// own makes t the single live connection for purpose, closing any
// previous one. Caller holds s.mu.
func (s *Session) own(p Purpose, t Transport) {
	if old := s.conns[p]; old != nil && old != t {
		old.Close()
	}
	s.conns[p] = t
}

func (s *Session) read(p Purpose, t Transport) {
	for raw := range t.Incoming() {
		if p == PurposeMatchmaking {
			s.handleMatchStatus(t, raw)
		} else {
			s.handleRoomMessage(t, raw)
		}
	}
	s.onClose(p, t)
}

func (s *Session) handleMatchStatus(t Transport, raw []byte) {
	st, err := signaling.DecodeMatchStatus(raw)
	if err != nil {
		s.logger.Debug("ignoring matchmaking frame", "error", err)
		return
	}

	s.mu.Lock()
	if s.conns[PurposeMatchmaking] != t {
		s.mu.Unlock()
		return
	}

	switch st.Status {
	case signaling.StatusWaiting:
		s.status = StatusWaiting
		u := s.snapshot()
		s.mu.Unlock()
		s.emit(u)

	case signaling.StatusMatched:
		t.Close()
		s.conns[PurposeMatchmaking] = nil
		s.state = Connecting
		s.status = StatusMatched
		s.roomCode = st.RoomCode
		ctx := s.ctx
		u := s.snapshot()
		s.mu.Unlock()
		s.emit(u)

		s.logger.Info("matched", "room_code", st.RoomCode)
		s.openRoom(ctx, st.RoomCode)

	case signaling.StatusCancelled:
		t.Close()
		s.conns[PurposeMatchmaking] = nil
		s.state = Closed
		s.status = StatusCancelled
		s.outcome = OutcomeCancelled
		u := s.snapshot()
		s.mu.Unlock()
		s.emit(u)

	case signaling.StatusExpired:
		s.mu.Unlock()
		s.fail(NewError("find match", ErrQueueExpired))

	case signaling.StatusError:
		s.mu.Unlock()
		s.fail(ServerError("find match", st.Error, ""))
	}
}

func (s *Session) handleRoomMessage(t Transport, raw []byte) {
	msg, err := signaling.DecodeRoomMessage(raw)
	if err != nil {
		s.logger.Debug("ignoring room frame", "error", err)
		return
	}

	s.mu.Lock()
	if s.conns[PurposeRoom] != t {
		s.mu.Unlock()
		return
	}

	switch msg.Type {
	case signaling.TypeError:
		// Protocol errors leave the connection usable.
		if msg.Error == "protocol_error" {
			s.mu.Unlock()
			s.logger.Warn("server rejected a message", "details", msg.Details)
			s.emit(Update{State: Active, Message: &msg, Err: ServerError("room", msg.Error, msg.Details)})
			return
		}
		s.mu.Unlock()
		s.fail(ServerError("join room", msg.Error, msg.Details))
		return

	case signaling.TypeRoomState:
		s.room = newRoom(msg)
		if msg.RoomCode != "" {
			s.roomCode = msg.RoomCode
		}
		if s.state == Open || s.state == Active {
			s.state = Active
		}

	default:
		if s.room != nil {
			s.room.apply(msg)
		}
	}

	u := s.snapshot()
	u.Message = &msg
	s.mu.Unlock()
	s.emit(u)
}

// onClose runs once t's Incoming channel is closed.
func (s *Session) onClose(p Purpose, t Transport) {
	s.mu.Lock()
	if s.conns[p] != t {
		s.mu.Unlock()
		return
	}
	s.conns[p] = nil

	if s.state == Closing {
		s.state = Closed
		s.outcome = OutcomeLeft
		u := s.snapshot()
		s.mu.Unlock()
		s.emit(u)
		return
	}
	s.mu.Unlock()

	if err := t.Err(); err != nil {
		s.fail(WrapError(p.String(), ErrConnection, err.Error()))
		return
	}
	s.fail(WrapError(p.String(), ErrConnection, "closed by server"))
}

// fail passes through Error to Closed, keeping cause.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.state == Closed || s.state == Idle {
		s.mu.Unlock()
		return
	}
	s.closeAll()
	s.state = Error
	s.status = StatusError
	s.outcome = OutcomeError
	s.cause = cause
	errUpdate := s.snapshot()
	s.state = Closed
	closed := s.snapshot()
	s.mu.Unlock()

	s.logger.Info("session failed", "error", cause)
	s.emit(errUpdate)
	s.emit(closed)
}

// closeAll closes every owned connection. Caller holds s.mu.
func (s *Session) closeAll() {
	for i, t := range s.conns {
		if t != nil {
			t.Close()
			s.conns[i] = nil
		}
	}
}

// snapshot builds an Update from the current state. Caller holds s.mu.
func (s *Session) snapshot() Update {
	return Update{State: s.state, Status: s.status, RoomCode: s.roomCode, Err: s.cause}
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		s.logger.Warn("update dropped", "state", u.State)
	}
}
