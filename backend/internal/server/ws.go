package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CodinGakpo/DebateIT/backend/internal/identity"
	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

// serveMatchmaking runs one matchmaking connection. Closing the socket
// cancels any queue entry it still holds.
func (s *Server) serveMatchmaking(w http.ResponseWriter, r *http.Request) {
	who := identityOf(r)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "path", r.URL.Path, "error", err)
		return
	}

	conn := s.newConn(ws, "channel", "matchmaking", "subject", who.Subject)
	go conn.WritePump()

	conn.ReadPump(func(data []byte) {
		s.handleMatchRequest(conn, who, data)
	})

	s.matchmaker.Cancel(conn)
}

func (s *Server) handleMatchRequest(conn *signaling.Conn, who identity.Identity, data []byte) {
	var req signaling.MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Debug("bad matchmaking message", "conn_id", conn.ID(), "error", err)
		conn.Send(signaling.MatchStatus{Status: signaling.StatusError, Error: signaling.ErrProtocol.Error()})
		return
	}

	switch req.Action {
	case signaling.ActionFindMatch:
		if err := s.matchmaker.Enqueue(conn, who.Subject); err != nil {
			s.logger.Info("enqueue rejected", "conn_id", conn.ID(), "error", err)
			conn.Send(signaling.MatchStatus{Status: signaling.StatusError, Error: signaling.ErrorCode(err)})
		}

	case signaling.ActionCancel:
		s.matchmaker.Cancel(conn)
		conn.Send(signaling.MatchStatus{Status: signaling.StatusCancelled})
		conn.Close()

	default:
		s.logger.Debug("unknown matchmaking action", "conn_id", conn.ID(), "action", req.Action)
		conn.Send(signaling.MatchStatus{Status: signaling.StatusError, Error: signaling.ErrProtocol.Error()})
	}
}

// serveRoom runs one room connection: join, relay until the socket closes,
// then leave.
func (s *Server) serveRoom(w http.ResponseWriter, r *http.Request) {
	who := identityOf(r)
	code := signaling.NormalizeCode(mux.Vars(r)["code"])

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "path", r.URL.Path, "error", err)
		return
	}

	conn := s.newConn(ws, "channel", "room", "room_code", code, "subject", who.Subject)
	go conn.WritePump()

	participant, err := s.registry.Join(code, conn, who)
	if err != nil {
		s.logger.Info("join rejected", "room_code", code, "error", err)
		conn.Send(signaling.NewErrorMessage(err))
		conn.Close()
		return
	}

	conn.ReadPump(func(data []byte) {
		ev, err := signaling.ParseEvent(data)
		if err != nil {
			s.logger.Debug("dropping room message", "room_code", code, "participant_id", participant.ID, "error", err)
			conn.Send(signaling.NewErrorMessage(err))
			return
		}
		if err := s.registry.RelayFrom(code, participant.ID, conn, ev); err != nil {
			s.logger.Debug("relay failed", "room_code", code, "participant_id", participant.ID, "error", err)
			conn.Send(signaling.NewErrorMessage(err))
		}
	})

	if err := s.registry.Disconnect(code, participant.ID, conn); err != nil {
		s.logger.Debug("disconnect", "room_code", code, "participant_id", participant.ID, "error", err)
	}
}

func identityOf(r *http.Request) identity.Identity {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id
	}
	return identity.Anonymous()
}
