package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes each event on "<prefix>.<kind>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func DialNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("debateit-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Subject(kind Kind) string {
	return Subject(p.prefix, kind)
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	return p.conn.Publish(p.Subject(ev.Kind), data)
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

func Subject(prefix string, kind Kind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}
