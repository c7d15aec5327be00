package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// OverflowPolicy decides what happens to a recipient whose outbound buffer
// is full when a new message is queued for it.
type OverflowPolicy string

const (
	OverflowDisconnect OverflowPolicy = "disconnect"
	OverflowDrop       OverflowPolicy = "drop"
)

// Peer is the part of a connection the Matchmaker and the rooms depend on.
// Send must never block.
type Peer interface {
	ID() string
	Send(msg any) error
	Closed() bool
	Close()
}

type ConnOptions struct {
	Buffer int
	Policy OverflowPolicy
	Logger *slog.Logger
}

// Conn is a single websocket connection, either a matchmaking or a room
// channel. All writes go through the buffered send channel and WritePump.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	policy OverflowPolicy
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewConn wraps ws. A nil ws is allowed for callers that only need the
// buffering side of the connection.
func NewConn(ws *websocket.Conn, opts ConnOptions) *Conn {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Policy == "" {
		opts.Policy = OverflowDisconnect
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, opts.Buffer),
		policy: opts.Policy,
		logger: opts.Logger.With("conn_id", id),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send encodes msg and queues it without blocking. When the buffer is full
// the overflow policy applies and ErrBufferFull is returned.
func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return WrapError("send", ErrProtocol, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewError("send", ErrClosed)
	}

	select {
	case c.send <- data:
		return nil
	default:
	}

	c.dropped.Add(1)
	if c.policy == OverflowDisconnect {
		c.logger.Warn("send buffer full, disconnecting slow client")
		c.closeLocked()
	} else {
		c.logger.Debug("send buffer full, dropping message")
	}
	return NewError("send", ErrBufferFull)
}

// Dropped reports how many messages were refused because the buffer was full.
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close stops the connection. Messages already queued are still flushed by
// WritePump before the close frame. Calling Close more than once is safe.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// ReadPump pumps messages from the websocket connection to onMessage.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine. onMessage is therefore called sequentially, which
// is what gives each sender its FIFO ordering.
func (c *Conn) ReadPump(onMessage func([]byte)) {
	defer func() {
		c.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Info("connection dropped", "error", err)
			}
			return
		}
		onMessage(data)
	}
}

// WritePump pumps messages from the send buffer to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) write(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// flush writes whatever is still buffered so final statuses reach the client.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
