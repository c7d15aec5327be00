package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not_found")
	ErrStateConflict = errors.New("state_conflict")
	ErrProtocol      = errors.New("protocol_error")
	ErrConnection    = errors.New("connection_error")
	ErrRoomFull      = errors.New("room_full")
	ErrClosed        = errors.New("closed")
	ErrBufferFull    = errors.New("send buffer full")
)

// SessionError carries the operation that failed alongside one of the
// sentinel errors above, so callers can still match with errors.Is.
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

// ErrorCode maps err onto the short code sent to clients in error payloads.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrRoomFull):
		return ErrRoomFull.Error()
	case errors.Is(err, ErrStateConflict):
		return ErrStateConflict.Error()
	case errors.Is(err, ErrProtocol):
		return ErrProtocol.Error()
	case errors.Is(err, ErrClosed), errors.Is(err, ErrBufferFull), errors.Is(err, ErrConnection):
		return ErrConnection.Error()
	default:
		return "internal_error"
	}
}

// errorDetails returns the human readable part of a SessionError, if any.
func errorDetails(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Details
	}
	return ""
}
