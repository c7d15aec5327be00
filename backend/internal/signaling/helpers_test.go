package signaling_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodinGakpo/DebateIT/backend/internal/identity"
	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

var peerSeq atomic.Int64

// fakePeer records every message sent to it, decoded as a JSON object.
type fakePeer struct {
	id string

	mu     sync.Mutex
	msgs   []map[string]any
	closed bool
}

func newPeer() *fakePeer {
	return &fakePeer{id: fmt.Sprintf("peer-%d", peerSeq.Add(1))}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return signaling.NewError("send", signaling.ErrClosed)
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) messages() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.msgs...)
}

// with returns the messages whose key field equals value.
func (p *fakePeer) with(key, value string) []map[string]any {
	var out []map[string]any
	for _, m := range p.messages() {
		if m[key] == value {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePeer) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := p.messages()
	require.NotEmpty(t, msgs, "peer %s received nothing", p.id)
	return msgs[len(msgs)-1]
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = nil
}

func who(subject string) identity.Identity {
	return identity.Identity{Subject: subject, Name: subject}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sequence returns a generator yielding codes in order, then failing.
func sequence(codes ...string) signaling.CodeGenerator {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return "", fmt.Errorf("sequence exhausted")
		}
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
}

// gatedPeer blocks its first Send until open is closed, standing in for a
// slow delivery that holds its room's lock.
type gatedPeer struct {
	*fakePeer
	entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

func newGatedPeer() *gatedPeer {
	return &gatedPeer{fakePeer: newPeer(), entered: make(chan struct{}), open: make(chan struct{})}
}

func (p *gatedPeer) Send(msg any) error {
	p.once.Do(func() {
		close(p.entered)
		<-p.open
	})
	return p.fakePeer.Send(msg)
}
