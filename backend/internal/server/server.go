package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/CodinGakpo/DebateIT/backend/internal/identity"
	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

type Options struct {
	Registry   *signaling.Registry
	Matchmaker *signaling.Matchmaker
	Verifier   *identity.Verifier

	SendBuffer int
	Overflow   signaling.OverflowPolicy
	// Origins lists the allowed websocket origins. Empty allows any.
	Origins []string
	Logger  *slog.Logger
}

// Server exposes the matchmaking and room channels plus a small JSON API.
type Server struct {
	registry   *signaling.Registry
	matchmaker *signaling.Matchmaker
	verifier   *identity.Verifier
	upgrader   websocket.Upgrader
	sendBuffer int
	overflow   signaling.OverflowPolicy
	logger     *slog.Logger
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Verifier == nil {
		opts.Verifier = identity.NewVerifier("")
	}

	s := &Server{
		registry:   opts.Registry,
		matchmaker: opts.Matchmaker,
		verifier:   opts.Verifier,
		sendBuffer: opts.SendBuffer,
		overflow:   opts.Overflow,
		logger:     opts.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin:     checkOrigin(opts.Origins),
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", s.createRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}", s.getRoom).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(s.verifier.Middleware)
	ws.HandleFunc("/matchmaking/", s.serveMatchmaking)
	ws.HandleFunc("/matchmaking", s.serveMatchmaking)
	ws.HandleFunc("/room/{code}/", s.serveRoom)
	ws.HandleFunc("/room/{code}", s.serveRoom)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Session server is healthy."))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func (s *Server) newConn(ws *websocket.Conn, attrs ...any) *signaling.Conn {
	return signaling.NewConn(ws, signaling.ConnOptions{
		Buffer: s.sendBuffer,
		Policy: s.overflow,
		Logger: s.logger.With(attrs...),
	})
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients (the CLI) send no Origin.
		if len(allowed) == 0 || origin == "" {
			return true
		}
		return lo.Contains(allowed, origin)
	}
}
