package signaling

import (
	"encoding/json"
	"fmt"
)

// Matchmaking channel actions and statuses.
const (
	ActionFindMatch = "find_match"
	ActionCancel    = "cancel"

	StatusWaiting   = "waiting"
	StatusMatched   = "matched"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
	StatusError     = "error"
)

// Room channel message types.
const (
	TypeRoomState         = "room_state"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeChatMessage       = "chat_message"
	TypeToggleAudio       = "toggle_audio"
	TypeAudioStatus       = "audio_status"
	TypeSpeakingStatus    = "speaking_status"
	TypeSpeechTranscript  = "speech_transcript"
	TypeSignal            = "signal"
	TypeError             = "error"
)

// MatchRequest is the only message a client sends on the matchmaking channel.
type MatchRequest struct {
	Action string `json:"action"`
}

// MatchStatus is every server message on the matchmaking channel.
type MatchStatus struct {
	Status   string `json:"status"`
	RoomCode string `json:"room_code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Inbound is a client to server room message. Only the fields belonging to
// Type are expected to be set.
type Inbound struct {
	Type       string          `json:"type"`
	Message    *string         `json:"message,omitempty"`
	Muted      *bool           `json:"muted,omitempty"`
	IsSpeaking *bool           `json:"isSpeaking,omitempty"`
	Transcript *string         `json:"transcript,omitempty"`
	Final      *bool           `json:"final,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Event is a validated inbound message ready to be relayed.
type Event struct {
	Type    string
	Text    string
	Flag    bool
	Final   *bool
	Payload json.RawMessage
}

// ParseEvent decodes and validates a raw room message.
func ParseEvent(raw []byte) (Event, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Event{}, WrapError("decode event", ErrProtocol, err.Error())
	}
	return in.Event()
}

// Event checks that the fields required by in.Type are present.
func (in Inbound) Event() (Event, error) {
	missing := func(field string) (Event, error) {
		return Event{}, WrapError("decode event", ErrProtocol, fmt.Sprintf("%s requires %q", in.Type, field))
	}

	switch in.Type {
	case TypeChatMessage:
		if in.Message == nil {
			return missing("message")
		}
		return Event{Type: in.Type, Text: *in.Message}, nil

	case TypeToggleAudio:
		if in.Muted == nil {
			return missing("muted")
		}
		return Event{Type: in.Type, Flag: *in.Muted}, nil

	case TypeSpeakingStatus:
		if in.IsSpeaking == nil {
			return missing("isSpeaking")
		}
		return Event{Type: in.Type, Flag: *in.IsSpeaking}, nil

	case TypeSpeechTranscript:
		if in.Transcript == nil {
			return missing("transcript")
		}
		return Event{Type: in.Type, Text: *in.Transcript, Final: in.Final}, nil

	case TypeSignal:
		if len(in.Payload) == 0 {
			return missing("payload")
		}
		return Event{Type: in.Type, Payload: in.Payload}, nil

	case "":
		return Event{}, WrapError("decode event", ErrProtocol, "missing type")

	default:
		return Event{}, WrapError("decode event", ErrProtocol, fmt.Sprintf("unknown type %q", in.Type))
	}
}

// Participant is the wire view of a room member.
type Participant struct {
	ID       string `json:"user_id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Muted    bool   `json:"muted"`
	Speaking bool   `json:"isSpeaking"`
}

type RoomState struct {
	Type         string        `json:"type"`
	RoomCode     string        `json:"room_code"`
	Self         Participant   `json:"self"`
	Participants []Participant `json:"participants"`
}

type ParticipantJoined struct {
	Type        string      `json:"type"`
	Participant Participant `json:"participant"`
}

type ParticipantLeft struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type ChatRelay struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type AudioStatus struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Muted  bool   `json:"muted"`
}

type SpeakingStatus struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	IsSpeaking bool   `json:"isSpeaking"`
}

type TranscriptRelay struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	Sender     string `json:"sender"`
	Transcript string `json:"transcript"`
	Final      *bool  `json:"final,omitempty"`
}

type SignalRelay struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewErrorMessage builds the room channel error payload for err.
func NewErrorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: ErrorCode(err), Details: errorDetails(err)}
}
