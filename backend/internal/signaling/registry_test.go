package signaling_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

func newRegistry(t *testing.T, opts signaling.RegistryOptions) *signaling.Registry {
	t.Helper()
	if opts.Grace == 0 {
		opts.Grace = time.Minute
	}
	opts.Logger = quietLogger()
	g := signaling.NewRegistry(opts)
	t.Cleanup(g.Close)
	return g
}

func createRoom(t *testing.T, g *signaling.Registry) string {
	t.Helper()
	room, err := g.Create(signaling.OriginCreate)
	require.NoError(t, err)
	return room.Code
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name     string
		gen      signaling.CodeGenerator
		attempts int
		validate func(t *testing.T, g *signaling.Registry)
	}{
		{
			name: "random codes have the room code shape",
			validate: func(t *testing.T, g *signaling.Registry) {
				room, err := g.Create(signaling.OriginMatchmaking)
				require.NoError(t, err)
				assert.True(t, signaling.ValidCode(room.Code), room.Code)
				assert.Equal(t, signaling.OriginMatchmaking, room.Origin)
				assert.WithinDuration(t, time.Now(), room.CreatedAt, time.Second)
			},
		},
		{
			name: "collision retries with a fresh code",
			gen:  sequence("AAAAAA", "AAAAAA", "BBBBBB"),
			validate: func(t *testing.T, g *signaling.Registry) {
				a, err := g.Create(signaling.OriginCreate)
				require.NoError(t, err)
				b, err := g.Create(signaling.OriginCreate)
				require.NoError(t, err)
				assert.Equal(t, "AAAAAA", a.Code)
				assert.Equal(t, "BBBBBB", b.Code)
			},
		},
		{
			name:     "code space exhausted",
			gen:      sequence("AAAAAA", "AAAAAA", "AAAAAA", "AAAAAA"),
			attempts: 3,
			validate: func(t *testing.T, g *signaling.Registry) {
				_, err := g.Create(signaling.OriginCreate)
				require.NoError(t, err)
				_, err = g.Create(signaling.OriginCreate)
				assert.ErrorIs(t, err, signaling.ErrStateConflict)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newRegistry(t, signaling.RegistryOptions{Generate: tt.gen, CodeAttempts: tt.attempts})
			tt.validate(t, g)
		})
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})

	for _, code := range []string{"ZZZZZZ", "bad", ""} {
		_, err := g.Join(code, newPeer(), who("alice"))
		assert.ErrorIs(t, err, signaling.ErrNotFound, code)
		assert.Equal(t, "not_found", signaling.ErrorCode(err))
	}
}

func TestJoinAssignsRolesAndAnnounces(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	alice, bob := newPeer(), newPeer()

	pa, err := g.Join(code, alice, who("alice"))
	require.NoError(t, err)
	assert.Equal(t, signaling.RoleDefender, pa.Role)

	state := alice.last(t)
	assert.Equal(t, signaling.TypeRoomState, state["type"])
	assert.Equal(t, code, state["room_code"])
	assert.Empty(t, state["participants"])

	// Lower-case codes resolve to the same room.
	pb, err := g.Join(strings.ToLower(code), bob, who("bob"))
	require.NoError(t, err)
	assert.Equal(t, signaling.RoleChallenger, pb.Role)
	assert.NotEqual(t, pa.ID, pb.ID)

	state = bob.last(t)
	assert.Equal(t, signaling.TypeRoomState, state["type"])
	self := state["self"].(map[string]any)
	assert.Equal(t, pb.ID, self["user_id"])
	assert.Equal(t, "Challenger", self["role"])
	others := state["participants"].([]any)
	require.Len(t, others, 1)
	assert.Equal(t, pa.ID, others[0].(map[string]any)["user_id"])

	joined := alice.with("type", signaling.TypeParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, pb.ID, joined[0]["participant"].(map[string]any)["user_id"])
	assert.Empty(t, bob.with("type", signaling.TypeParticipantJoined), "joiner is not told about itself")

	code2, ok := g.RoomOf("bob")
	assert.True(t, ok)
	assert.Equal(t, code, code2)
}

func TestRoomFull(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	_, err := g.Join(code, newPeer(), who("alice"))
	require.NoError(t, err)
	_, err = g.Join(code, newPeer(), who("bob"))
	require.NoError(t, err)

	_, err = g.Join(code, newPeer(), who("carol"))
	assert.ErrorIs(t, err, signaling.ErrRoomFull)
	assert.Equal(t, "room_full", signaling.ErrorCode(err))
}

func TestJoinIsIdempotentPerIdentity(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	alice, bob := newPeer(), newPeer()
	first, err := g.Join(code, alice, who("alice"))
	require.NoError(t, err)
	_, err = g.Join(code, bob, who("bob"))
	require.NoError(t, err)
	bob.reset()

	alice2 := newPeer()
	again, err := g.Join(code, alice2, who("alice"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Role, again.Role)
	assert.True(t, alice.Closed(), "stale connection is closed")
	assert.Equal(t, signaling.TypeRoomState, alice2.last(t)["type"])
	assert.Empty(t, bob.messages(), "rebind is not announced")

	summary, err := g.Summary(code)
	require.NoError(t, err)
	assert.Len(t, summary.Participants, 2)

	// The stale connection going away must not evict the rebound participant.
	err = g.Disconnect(code, first.ID, alice)
	assert.ErrorIs(t, err, signaling.ErrStateConflict)
	summary, err = g.Summary(code)
	require.NoError(t, err)
	assert.Len(t, summary.Participants, 2)

	// Relays now reach the new connection.
	require.NoError(t, g.Relay(code, summary.Participants[1].ID, signaling.Event{Type: signaling.TypeChatMessage, Text: "hi"}))
	assert.Len(t, alice2.with("type", signaling.TypeChatMessage), 1)
}

func TestStaleConnectionCannotRelay(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	alice, bob := newPeer(), newPeer()
	pa, err := g.Join(code, alice, who("alice"))
	require.NoError(t, err)
	_, err = g.Join(code, bob, who("bob"))
	require.NoError(t, err)

	alice2 := newPeer()
	_, err = g.Join(code, alice2, who("alice"))
	require.NoError(t, err)
	bob.reset()

	err = g.RelayFrom(code, pa.ID, alice, signaling.Event{Type: signaling.TypeChatMessage, Text: "late"})
	assert.ErrorIs(t, err, signaling.ErrStateConflict)
	assert.Empty(t, bob.messages())

	require.NoError(t, g.RelayFrom(code, pa.ID, alice2, signaling.Event{Type: signaling.TypeChatMessage, Text: "hi"}))
	assert.Len(t, bob.with("type", signaling.TypeChatMessage), 1)
}

func TestFailedJoinReleasesMembership(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	full, other := createRoom(t, g), createRoom(t, g)

	_, err := g.Join(full, newPeer(), who("alice"))
	require.NoError(t, err)
	_, err = g.Join(full, newPeer(), who("bob"))
	require.NoError(t, err)

	_, err = g.Join(full, newPeer(), who("carol"))
	require.ErrorIs(t, err, signaling.ErrRoomFull)

	_, seated := g.RoomOf("carol")
	assert.False(t, seated)
	_, err = g.Join(other, newPeer(), who("carol"))
	assert.NoError(t, err)
}

func TestJoinDoesNotBlockOtherRooms(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	a, b := createRoom(t, g), createRoom(t, g)

	slow := newGatedPeer()
	slowDone := make(chan error, 1)
	go func() {
		_, err := g.Join(a, slow, who("slow"))
		slowDone <- err
	}()
	<-slow.entered

	// Room a is mid-join and holding its lock; room b must not wait for it.
	fast := make(chan error, 1)
	go func() {
		_, err := g.Join(b, newPeer(), who("fast"))
		fast <- err
	}()

	select {
	case err := <-fast:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("join to an unrelated room blocked")
	}
	assert.Equal(t, 2, g.Stats().Participants)

	close(slow.open)
	require.NoError(t, <-slowDone)
}

func TestJoinSecondRoomConflicts(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	a, b := createRoom(t, g), createRoom(t, g)

	_, err := g.Join(a, newPeer(), who("alice"))
	require.NoError(t, err)
	_, err = g.Join(b, newPeer(), who("alice"))
	assert.ErrorIs(t, err, signaling.ErrStateConflict)
}

func TestLeave(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	alice, bob := newPeer(), newPeer()
	pa, err := g.Join(code, alice, who("alice"))
	require.NoError(t, err)
	pb, err := g.Join(code, bob, who("bob"))
	require.NoError(t, err)

	require.NoError(t, g.Leave(code, pb.ID))

	left := alice.with("type", signaling.TypeParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, pb.ID, left[0]["user_id"])

	_, ok := g.RoomOf("bob")
	assert.False(t, ok)

	assert.ErrorIs(t, g.Leave(code, pb.ID), signaling.ErrNotFound)
	assert.ErrorIs(t, g.Leave("QQQQQQ", pa.ID), signaling.ErrNotFound)

	// The freed slot takes the Challenger role again.
	pc, err := g.Join(code, newPeer(), who("carol"))
	require.NoError(t, err)
	assert.Equal(t, signaling.RoleChallenger, pc.Role)
}

func TestDefenderSlotIsReused(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	pa, err := g.Join(code, newPeer(), who("alice"))
	require.NoError(t, err)
	_, err = g.Join(code, newPeer(), who("bob"))
	require.NoError(t, err)
	require.NoError(t, g.Leave(code, pa.ID))

	pc, err := g.Join(code, newPeer(), who("carol"))
	require.NoError(t, err)
	assert.Equal(t, signaling.RoleDefender, pc.Role)
}

func TestRelay(t *testing.T) {
	yes := true

	tests := []struct {
		name  string
		event signaling.Event
		want  map[string]any
	}{
		{
			name:  "chat message",
			event: signaling.Event{Type: signaling.TypeChatMessage, Text: "Opening statement"},
			want:  map[string]any{"type": "chat_message", "sender": "alice", "message": "Opening statement"},
		},
		{
			name:  "toggle audio becomes audio status",
			event: signaling.Event{Type: signaling.TypeToggleAudio, Flag: true},
			want:  map[string]any{"type": "audio_status", "muted": true},
		},
		{
			name:  "speaking status",
			event: signaling.Event{Type: signaling.TypeSpeakingStatus, Flag: true},
			want:  map[string]any{"type": "speaking_status", "isSpeaking": true},
		},
		{
			name:  "speech transcript",
			event: signaling.Event{Type: signaling.TypeSpeechTranscript, Text: "I rebut", Final: &yes},
			want:  map[string]any{"type": "speech_transcript", "sender": "alice", "transcript": "I rebut", "final": true},
		},
		{
			name:  "opaque signal",
			event: signaling.Event{Type: signaling.TypeSignal, Payload: []byte(`{"sdp":"offer"}`)},
			want:  map[string]any{"type": "signal", "payload": map[string]any{"sdp": "offer"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newRegistry(t, signaling.RegistryOptions{})
			code := createRoom(t, g)

			alice, bob := newPeer(), newPeer()
			pa, err := g.Join(code, alice, who("alice"))
			require.NoError(t, err)
			_, err = g.Join(code, bob, who("bob"))
			require.NoError(t, err)
			alice.reset()
			bob.reset()

			require.NoError(t, g.Relay(code, pa.ID, tt.event))

			assert.Empty(t, alice.messages(), "sender never receives its own event")
			got := bob.last(t)
			assert.Equal(t, pa.ID, got["user_id"])
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}
}

func TestRelayUpdatesParticipantState(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	pa, err := g.Join(code, newPeer(), who("alice"))
	require.NoError(t, err)

	require.NoError(t, g.Relay(code, pa.ID, signaling.Event{Type: signaling.TypeSpeakingStatus, Flag: true}))
	summary, err := g.Summary(code)
	require.NoError(t, err)
	assert.True(t, summary.Participants[0].Speaking)

	// Muting also clears speaking.
	require.NoError(t, g.Relay(code, pa.ID, signaling.Event{Type: signaling.TypeToggleAudio, Flag: true}))
	summary, err = g.Summary(code)
	require.NoError(t, err)
	assert.True(t, summary.Participants[0].Muted)
	assert.False(t, summary.Participants[0].Speaking)

	// A late joiner sees the current state.
	bob := newPeer()
	_, err = g.Join(code, bob, who("bob"))
	require.NoError(t, err)
	others := bob.last(t)["participants"].([]any)
	assert.Equal(t, true, others[0].(map[string]any)["muted"])
}

func TestRelayErrors(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	err := g.Relay("QQQQQQ", "nobody", signaling.Event{Type: signaling.TypeChatMessage})
	assert.ErrorIs(t, err, signaling.ErrNotFound)

	err = g.Relay(code, "nobody", signaling.Event{Type: signaling.TypeChatMessage})
	assert.ErrorIs(t, err, signaling.ErrNotFound)
}

func TestRoomIsolation(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	r1, r2 := createRoom(t, g), createRoom(t, g)

	a, b, c, d := newPeer(), newPeer(), newPeer(), newPeer()
	pa, err := g.Join(r1, a, who("a"))
	require.NoError(t, err)
	_, err = g.Join(r1, b, who("b"))
	require.NoError(t, err)
	_, err = g.Join(r2, c, who("c"))
	require.NoError(t, err)
	_, err = g.Join(r2, d, who("d"))
	require.NoError(t, err)
	c.reset()
	d.reset()

	require.NoError(t, g.Relay(r1, pa.ID, signaling.Event{Type: signaling.TypeChatMessage, Text: "only r1"}))
	require.NoError(t, g.Leave(r1, pa.ID))

	assert.Len(t, b.with("type", signaling.TypeChatMessage), 1)
	assert.Empty(t, c.messages())
	assert.Empty(t, d.messages())
}

func TestPerSenderOrdering(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{})
	code := createRoom(t, g)

	alice, bob := newPeer(), newPeer()
	pa, err := g.Join(code, alice, who("alice"))
	require.NoError(t, err)
	pb, err := g.Join(code, bob, who("bob"))
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for _, sender := range []string{pa.ID, pb.ID} {
		sender := sender
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				assert.NoError(t, g.Relay(code, sender, signaling.Event{Type: signaling.TypeChatMessage, Text: fmt.Sprint(i)}))
			}
		}()
	}
	wg.Wait()

	for _, p := range []*fakePeer{alice, bob} {
		chats := p.with("type", signaling.TypeChatMessage)
		require.Len(t, chats, n)
		for i, m := range chats {
			assert.Equal(t, fmt.Sprint(i), m["message"])
		}
	}
}

func TestEmptyRoomIsReclaimedAfterGrace(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{Grace: 20 * time.Millisecond})
	code := createRoom(t, g)

	p, err := g.Join(code, newPeer(), who("alice"))
	require.NoError(t, err)

	// Occupied rooms are never reclaimed.
	time.Sleep(60 * time.Millisecond)
	_, err = g.Get(code)
	require.NoError(t, err)

	require.NoError(t, g.Leave(code, p.ID))
	assert.Eventually(t, func() bool {
		_, err := g.Get(code)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	_, err = g.Join(code, newPeer(), who("alice"))
	assert.ErrorIs(t, err, signaling.ErrNotFound)
	assert.Zero(t, g.Stats().Rooms)
}

func TestRejoinWithinGraceKeepsRoom(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{Grace: 80 * time.Millisecond})
	code := createRoom(t, g)

	p, err := g.Join(code, newPeer(), who("alice"))
	require.NoError(t, err)
	require.NoError(t, g.Leave(code, p.ID))

	_, err = g.Join(code, newPeer(), who("alice"))
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	_, err = g.Get(code)
	assert.NoError(t, err)
}

func TestUnjoinedRoomIsReclaimed(t *testing.T) {
	g := newRegistry(t, signaling.RegistryOptions{Grace: 10 * time.Millisecond})
	code := createRoom(t, g)

	assert.Eventually(t, func() bool {
		_, err := g.Get(code)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestStatsAndClose(t *testing.T) {
	g := signaling.NewRegistry(signaling.RegistryOptions{Logger: quietLogger(), Grace: time.Minute})
	code := createRoom(t, g)
	createRoom(t, g)

	alice := newPeer()
	_, err := g.Join(code, alice, who("alice"))
	require.NoError(t, err)

	assert.Equal(t, signaling.Stats{Rooms: 2, Participants: 1}, g.Stats())

	g.Close()
	assert.True(t, alice.Closed())
	assert.Equal(t, signaling.Stats{}, g.Stats())

	_, err = g.Create(signaling.OriginCreate)
	assert.ErrorIs(t, err, signaling.ErrClosed)
}
