package signaling

import (
	"encoding/json"
	"fmt"
)

// Matchmaking channel.
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

type MatchRequest struct {
	Action string `json:"action"`
}

type MatchStatus struct {
	Status   string `json:"status"`
	RoomCode string `json:"room_code,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Participant struct {
	ID       string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Muted    bool   `json:"muted"`
	Speaking bool   `json:"isSpeaking"`
}

// RoomMessage is any server to client message on the room channel. Which
// fields are set depends on Type.
type RoomMessage struct {
	Type         string          `json:"type"`
	RoomCode     string          `json:"room_code,omitempty"`
	Self         *Participant    `json:"self,omitempty"`
	Participants []Participant   `json:"participants,omitempty"`
	Participant  *Participant    `json:"participant,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Sender       string          `json:"sender,omitempty"`
	Message      string          `json:"message,omitempty"`
	Muted        *bool           `json:"muted,omitempty"`
	IsSpeaking   *bool           `json:"isSpeaking,omitempty"`
	Transcript   string          `json:"transcript,omitempty"`
	Final        *bool           `json:"final,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Error        string          `json:"error,omitempty"`
	Details      string          `json:"details,omitempty"`
}

// Client to server room messages.
type (
	ChatMessage struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}

	ToggleAudio struct {
		Type  string `json:"type"`
		Muted bool   `json:"muted"`
	}

	SpeakingStatus struct {
		Type       string `json:"type"`
		IsSpeaking bool   `json:"isSpeaking"`
	}

	SpeechTranscript struct {
		Type       string `json:"type"`
		Transcript string `json:"transcript"`
		Final      *bool  `json:"final,omitempty"`
	}

	Signal struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
)

// DecodeMatchStatus parses a matchmaking channel frame.
func DecodeMatchStatus(raw []byte) (MatchStatus, error) {
	var st MatchStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return MatchStatus{}, fmt.Errorf("decode match status: %w", err)
	}
	switch st.Status {
	case StatusWaiting, StatusCancelled, StatusExpired, StatusError:
	case StatusMatched:
		if st.RoomCode == "" {
			return MatchStatus{}, fmt.Errorf("decode match status: matched without room_code")
		}
	default:
		return MatchStatus{}, fmt.Errorf("decode match status: unknown status %q", st.Status)
	}
	return st, nil
}

// DecodeRoomMessage parses a room channel frame.
func DecodeRoomMessage(raw []byte) (RoomMessage, error) {
	var msg RoomMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return RoomMessage{}, fmt.Errorf("decode room message: %w", err)
	}
	if msg.Type == "" {
		return RoomMessage{}, fmt.Errorf("decode room message: missing type")
	}
	if msg.Type == TypeRoomState && msg.Self == nil {
		return RoomMessage{}, fmt.Errorf("decode room message: room_state without self")
	}
	if msg.Type == TypeParticipantJoined && msg.Participant == nil {
		return RoomMessage{}, fmt.Errorf("decode room message: participant_joined without participant")
	}
	return msg, nil
}
