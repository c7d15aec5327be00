package signaling_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMatchmaker(t *testing.T, opts signaling.MatchmakerOptions) (*signaling.Matchmaker, *signaling.Registry) {
	t.Helper()
	g := newRegistry(t, signaling.RegistryOptions{})
	opts.Logger = quietLogger()
	return signaling.NewMatchmaker(g, opts), g
}

func statuses(p *fakePeer) []string {
	var out []string
	for _, m := range p.messages() {
		out = append(out, fmt.Sprint(m["status"]))
	}
	return out
}

func matchedCode(t *testing.T, p *fakePeer) string {
	t.Helper()
	matched := p.with("status", signaling.StatusMatched)
	require.Len(t, matched, 1, "peer %s must be matched exactly once", p.ID())
	return matched[0]["room_code"].(string)
}

func TestEnqueueAcknowledges(t *testing.T) {
	m, _ := newMatchmaker(t, signaling.MatchmakerOptions{})
	a := newPeer()

	require.NoError(t, m.Enqueue(a, "alice"))
	assert.Equal(t, []string{"waiting"}, statuses(a))
	assert.Equal(t, 1, m.Len())
}

func TestEnqueueConflicts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, m *signaling.Matchmaker, g *signaling.Registry) (*fakePeer, string)
	}{
		{
			name: "same connection twice",
			setup: func(t *testing.T, m *signaling.Matchmaker, _ *signaling.Registry) (*fakePeer, string) {
				a := newPeer()
				require.NoError(t, m.Enqueue(a, "alice"))
				return a, "alice"
			},
		},
		{
			name: "same identity on another connection",
			setup: func(t *testing.T, m *signaling.Matchmaker, _ *signaling.Registry) (*fakePeer, string) {
				require.NoError(t, m.Enqueue(newPeer(), "alice"))
				return newPeer(), "alice"
			},
		},
		{
			name: "identity already seated in a room",
			setup: func(t *testing.T, _ *signaling.Matchmaker, g *signaling.Registry) (*fakePeer, string) {
				code := createRoom(t, g)
				_, err := g.Join(code, newPeer(), who("alice"))
				require.NoError(t, err)
				return newPeer(), "alice"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, g := newMatchmaker(t, signaling.MatchmakerOptions{})
			p, subject := tt.setup(t, m, g)
			before := m.Len()

			err := m.Enqueue(p, subject)
			assert.ErrorIs(t, err, signaling.ErrStateConflict)
			assert.Equal(t, "state_conflict", signaling.ErrorCode(err))
			assert.Equal(t, before, m.Len())
		})
	}
}

func TestPairingIsSymmetric(t *testing.T) {
	m, g := newMatchmaker(t, signaling.MatchmakerOptions{})
	a, b := newPeer(), newPeer()

	require.NoError(t, m.Enqueue(a, "alice"))
	require.NoError(t, m.Enqueue(b, "bob"))

	code := matchedCode(t, a)
	assert.Equal(t, code, matchedCode(t, b))
	assert.Equal(t, []string{"waiting", "matched"}, statuses(a))
	assert.Equal(t, []string{"waiting", "matched"}, statuses(b))
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Zero(t, m.Len())

	room, err := g.Get(code)
	require.NoError(t, err)
	assert.Equal(t, signaling.OriginMatchmaking, room.Origin)
}

func TestPairingIsFIFO(t *testing.T) {
	m, _ := newMatchmaker(t, signaling.MatchmakerOptions{})
	peers := []*fakePeer{newPeer(), newPeer(), newPeer(), newPeer(), newPeer()}

	for i, p := range peers {
		require.NoError(t, m.Enqueue(p, fmt.Sprintf("user-%d", i)))
	}

	assert.Equal(t, matchedCode(t, peers[0]), matchedCode(t, peers[1]))
	assert.Equal(t, matchedCode(t, peers[2]), matchedCode(t, peers[3]))
	assert.NotEqual(t, matchedCode(t, peers[0]), matchedCode(t, peers[2]))
	assert.Empty(t, peers[4].with("status", signaling.StatusMatched))
	assert.Equal(t, 1, m.Len())
}

func TestClosedPeerAbortsPairAndLivePeerKeepsFront(t *testing.T) {
	m, _ := newMatchmaker(t, signaling.MatchmakerOptions{})
	a, gone, c := newPeer(), newPeer(), newPeer()

	require.NoError(t, m.Enqueue(a, "alice"))
	gone.Close()
	require.NoError(t, m.Enqueue(gone, "ghost"))

	assert.Equal(t, []string{"waiting"}, statuses(a))
	assert.Equal(t, 1, m.Len(), "closed entry dropped, live entry kept")

	require.NoError(t, m.Enqueue(c, "carol"))
	assert.Equal(t, matchedCode(t, a), matchedCode(t, c))
	assert.Empty(t, gone.messages())
}

func TestCancel(t *testing.T) {
	m, _ := newMatchmaker(t, signaling.MatchmakerOptions{})
	a, b := newPeer(), newPeer()

	require.NoError(t, m.Enqueue(a, "alice"))
	assert.True(t, m.Cancel(a))
	assert.False(t, m.Cancel(a), "cancel is idempotent")
	assert.Zero(t, m.Len())

	require.NoError(t, m.Enqueue(b, "bob"))
	assert.Empty(t, b.with("status", signaling.StatusMatched))
	assert.Empty(t, a.with("status", signaling.StatusMatched))

	// A cancelled client may queue again.
	a2 := newPeer()
	require.NoError(t, m.Enqueue(a2, "alice"))
	assert.Equal(t, matchedCode(t, a2), matchedCode(t, b))
}

func TestExpire(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m, _ := newMatchmaker(t, signaling.MatchmakerOptions{QueueTTL: time.Minute, Now: clk.Now})

	a := newPeer()
	require.NoError(t, m.Enqueue(a, "alice"))

	clk.Advance(59 * time.Second)
	assert.Zero(t, m.Expire())
	assert.Equal(t, 1, m.Len())

	clk.Advance(time.Second)
	assert.Equal(t, 1, m.Expire())
	assert.Zero(t, m.Len())
	assert.Equal(t, []string{"waiting", "expired"}, statuses(a))
	assert.True(t, a.Closed())
}

func TestCloseDrainsQueue(t *testing.T) {
	m, g := newMatchmaker(t, signaling.MatchmakerOptions{})

	// With the registry gone no pair can be made, so both stay queued.
	g.Close()
	a, b := newPeer(), newPeer()
	require.NoError(t, m.Enqueue(a, "alice"))
	require.NoError(t, m.Enqueue(b, "bob"))
	require.Equal(t, 2, m.Len())

	m.Close()
	assert.Zero(t, m.Len())
	for _, p := range []*fakePeer{a, b} {
		assert.Equal(t, []string{"waiting", "error"}, statuses(p))
		assert.Equal(t, "connection_error", p.last(t)["error"])
		assert.True(t, p.Closed())
	}

	late := newPeer()
	assert.ErrorIs(t, m.Enqueue(late, "carol"), signaling.ErrClosed)
	assert.Empty(t, late.messages())
	assert.Zero(t, m.Len())
}

func TestRunSweepsQueue(t *testing.T) {
	m, _ := newMatchmaker(t, signaling.MatchmakerOptions{
		QueueTTL: 20 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	a := newPeer()
	require.NoError(t, m.Enqueue(a, "alice"))

	assert.Eventually(t, func() bool {
		return len(a.with("status", signaling.StatusExpired)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, m.Len())
}

func TestNoDoublePairingUnderConcurrency(t *testing.T) {
	m, g := newMatchmaker(t, signaling.MatchmakerOptions{})

	const n = 100
	peers := make([]*fakePeer, n)
	for i := range peers {
		peers[i] = newPeer()
	}

	var wg sync.WaitGroup
	for i, p := range peers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Enqueue(p, fmt.Sprintf("user-%d", i)))
			// Some clients race a cancel against their own pairing.
			if i%10 == 0 {
				m.Cancel(p)
			}
		}()
	}
	wg.Wait()
	m.Pair()

	perRoom := map[string]int{}
	matched := 0
	for _, p := range peers {
		got := p.with("status", signaling.StatusMatched)
		require.LessOrEqual(t, len(got), 1, "peer %s notified twice", p.ID())
		if len(got) == 1 {
			matched++
			perRoom[got[0]["room_code"].(string)]++
		}
	}

	for code, count := range perRoom {
		assert.Equal(t, 2, count, "room %s", code)
		_, err := g.Get(code)
		assert.NoError(t, err)
	}
	assert.Equal(t, n, matched+m.Len()+cancelledUnmatched(peers))
	assert.LessOrEqual(t, m.Len(), 1)
}

// cancelledUnmatched counts peers that were neither matched nor left waiting.
func cancelledUnmatched(peers []*fakePeer) int {
	count := 0
	for i, p := range peers {
		if i%10 == 0 && len(p.with("status", signaling.StatusMatched)) == 0 {
			count++
		}
	}
	return count
}
