package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/CodinGakpo/DebateIT/cli/internal/api"
	"github.com/CodinGakpo/DebateIT/cli/internal/config"
	"github.com/CodinGakpo/DebateIT/cli/internal/dns"
	"github.com/CodinGakpo/DebateIT/cli/internal/presence"
	"github.com/CodinGakpo/DebateIT/cli/internal/session"
	"github.com/CodinGakpo/DebateIT/cli/internal/signaling"
	"github.com/CodinGakpo/DebateIT/cli/internal/ui"
)

// Connection bundles what every command needs to talk to the server.
type Connection struct {
	Config   *config.Config
	Resolver *dns.Resolver
	API      *api.Client
}

func NewConnection() (*Connection, error) {
	cfg, err := config.Load(config.Options{
		Server: flagServer,
		Name:   flagName,
		Token:  flagToken,
	})
	if err != nil {
		return nil, session.WrapError("load config", session.ErrConnection, err.Error())
	}

	resolver := dns.NewResolver()
	return &Connection{
		Config:   cfg,
		Resolver: resolver,
		API:      api.New(cfg, resolver),
	}, nil
}

func (c *Connection) NewSession() *session.Session {
	dial := session.DialerFunc(func(ctx context.Context, url string) (session.Transport, error) {
		client, err := signaling.Dial(ctx, url, signaling.DialOptions{Resolver: c.Resolver})
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	return session.New(session.Options{
		Dialer:    dial,
		Endpoints: c.Config,
		Logger:    slog.Default().With("component", "session"),
	})
}

// RunSession starts sess with start and hands the terminal to the room
// screen until the session is over.
func RunSession(ctx context.Context, sess *session.Session, start func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	talk := presence.NewManualSource()
	detector := presence.NewDetector(talk, presence.Options{
		OnChange: func(speaking bool) {
			if err := sess.SetSpeaking(speaking); err != nil {
				slog.Debug("speaking status not sent", "error", err)
			}
		},
	})
	model := ui.NewRoomModel(sess, detector, talk)

	errc := make(chan error, 1)
	go func() { errc <- start(ctx) }()

	uiErr := ui.RunRoom(model)
	cancel()
	sess.Close()
	if err := <-errc; err != nil && uiErr == nil {
		uiErr = err
	}

	switch {
	case uiErr == nil && sess.Outcome() == session.OutcomeCancelled:
		ui.PrintInfo("Matchmaking cancelled")
	case uiErr == nil:
		ui.PrintSuccess("Left the room")
	case errors.Is(uiErr, session.ErrQueueExpired):
		ui.PrintWarning("No opponent found in time, try again later")
		return nil
	}
	return uiErr
}
