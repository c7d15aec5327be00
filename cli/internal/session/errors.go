package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("room not found")
	ErrStateConflict = errors.New("state conflict")
	ErrProtocol      = errors.New("protocol error")
	ErrConnection    = errors.New("connection error")
	ErrRoomFull      = errors.New("room is full")
	ErrQueueExpired  = errors.New("no opponent found in time")
	ErrServer        = errors.New("server error")
)

// SessionError represents an error that occurred during a session operation.
type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}

// ServerError converts the error code carried by a server message.
func ServerError(op, code, details string) *SessionError {
	var err error
	switch code {
	case "not_found":
		err = ErrNotFound
	case "room_full":
		err = ErrRoomFull
	case "state_conflict":
		err = ErrStateConflict
	case "protocol_error":
		err = ErrProtocol
	case "connection_error":
		err = ErrConnection
	default:
		err = ErrServer
		if details == "" {
			details = code
		}
	}
	return WrapError(op, err, details)
}
