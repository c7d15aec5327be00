package session

// State is the lifecycle of a Session.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Waiting
	Active
	Closing
	Closed
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Error:
		return "error"
	}
	return "unknown"
}

// busy reports whether a start request must be ignored.
func (s State) busy() bool {
	return s == Connecting || s == Open || s == Waiting || s == Active || s == Closing
}

// Status is the coarse progress shown to the user.
type Status string

const (
	StatusNone      Status = ""
	StatusSearching Status = "searching"
	StatusWaiting   Status = "waiting"
	StatusMatched   Status = "matched"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Outcome records how a session reached Closed.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeLeft      Outcome = "left"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Purpose names the logical channel a connection serves.
type Purpose int

const (
	PurposeMatchmaking Purpose = iota
	PurposeRoom
)

func (p Purpose) String() string {
	if p == PurposeRoom {
		return "room"
	}
	return "matchmaking"
}
