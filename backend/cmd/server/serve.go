package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/backend/internal/config"
	"github.com/CodinGakpo/DebateIT/backend/internal/events"
	"github.com/CodinGakpo/DebateIT/backend/internal/identity"
	"github.com/CodinGakpo/DebateIT/backend/internal/server"
	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
	"github.com/CodinGakpo/DebateIT/internal/logging"
)

var serveOpts config.Options

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the matchmaking and room server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveOpts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.Addr, "addr", "a", "", "listen address (env: ADDR)")
	serveCmd.Flags().StringVar(&serveOpts.LogLevel, "log-level", "", "debug, info, warn or error (env: LOG_LEVEL)")
	serveCmd.Flags().StringVar(&serveOpts.LogFormat, "log-format", "", "text or json (env: LOG_FORMAT)")
	serveCmd.Flags().StringVar(&serveOpts.NATSURL, "nats", "", "NATS URL for lifecycle events (env: NATS_URL)")
	serveCmd.Flags().StringVar(&serveOpts.EnvFile, "env-file", "", "dotenv file to load (default .env)")
	rootCmd.AddCommand(serveCmd)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	registry := signaling.NewRegistry(signaling.RegistryOptions{
		Grace:           cfg.RoomGrace,
		MaxParticipants: cfg.MaxParticipants,
		CodeAttempts:    cfg.CodeAttempts,
		Publisher:       publisher,
		Logger:          logger.With("component", "registry"),
	})
	defer registry.Close()

	matchmaker := signaling.NewMatchmaker(registry, signaling.MatchmakerOptions{
		QueueTTL:  cfg.QueueTTL,
		Interval:  cfg.PairInterval,
		Publisher: publisher,
		Logger:    logger.With("component", "matchmaker"),
	})
	defer matchmaker.Close()
	go matchmaker.Run(ctx)

	verifier := identity.NewVerifier(cfg.JWTSecret)
	if !verifier.Verifies() {
		logger.Warn("JWT_SECRET not set, identity tokens are not verified")
	}

	srv := server.New(server.Options{
		Registry:   registry,
		Matchmaker: matchmaker,
		Verifier:   verifier,
		SendBuffer: cfg.SendBuffer,
		Overflow:   signaling.OverflowPolicy(cfg.OverflowPolicy),
		Origins:    cfg.Origins(),
		Logger:     logger.With("component", "server"),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return events.Nop{}, nil
	}

	nc, err := events.DialNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing lifecycle events", "nats", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
	return events.NewAsync(nc, 256, logger.With("component", "events")), nil
}
