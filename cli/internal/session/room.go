package session

import (
	"slices"

	"github.com/CodinGakpo/DebateIT/cli/internal/signaling"
)

// Room is the client's view of the room it is in.
type Room struct {
	Code   string
	Self   signaling.Participant
	Others []signaling.Participant
}

func newRoom(msg signaling.RoomMessage) *Room {
	return &Room{
		Code:   msg.RoomCode,
		Self:   *msg.Self,
		Others: slices.Clone(msg.Participants),
	}
}

// apply folds a presence or status message into the roster.
func (r *Room) apply(msg signaling.RoomMessage) {
	switch msg.Type {
	case signaling.TypeParticipantJoined:
		r.Others = slices.DeleteFunc(r.Others, func(p signaling.Participant) bool { return p.ID == msg.Participant.ID })
		r.Others = append(r.Others, *msg.Participant)

	case signaling.TypeParticipantLeft:
		r.Others = slices.DeleteFunc(r.Others, func(p signaling.Participant) bool { return p.ID == msg.UserID })

	case signaling.TypeAudioStatus:
		if p := r.find(msg.UserID); p != nil && msg.Muted != nil {
			p.Muted = *msg.Muted
			if p.Muted {
				p.Speaking = false
			}
		}

	case signaling.TypeSpeakingStatus:
		if p := r.find(msg.UserID); p != nil && msg.IsSpeaking != nil {
			p.Speaking = *msg.IsSpeaking
		}
	}
}

func (r *Room) find(id string) *signaling.Participant {
	for i := range r.Others {
		if r.Others[i].ID == id {
			return &r.Others[i]
		}
	}
	return nil
}

// Name returns the display name of participant id, or "" if unknown.
func (r *Room) Name(id string) string {
	if id == r.Self.ID {
		return r.Self.Name
	}
	if p := r.find(id); p != nil {
		return p.Name
	}
	return ""
}

func (r *Room) clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Others = slices.Clone(r.Others)
	return &c
}
