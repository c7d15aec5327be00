package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

type createRoomResponse struct {
	RoomCode  string    `json:"room_code"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) createRoom(w http.ResponseWriter, _ *http.Request) {
	room, err := s.registry.Create(signaling.OriginCreate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createRoomResponse{RoomCode: room.Code, CreatedAt: room.CreatedAt})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	summary, err := s.registry.Summary(mux.Vars(r)["code"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	st := s.registry.Stats()
	st.Waiting = s.matchmaker.Len()
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, signaling.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, signaling.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, signaling.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: signaling.ErrorCode(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}
