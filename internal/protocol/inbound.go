package protocol

import (
	"unicode/utf8"

	"github.com/manpreetbhatti/collabrooms/internal/room"
)

// DefaultMaxMessageLength bounds chat text when no limit is configured
const DefaultMaxMessageLength = 5000

// Inbound is implemented by every client -> server event
type Inbound interface {
	Event() string
	Validate() error
}

type JoinRoom struct {
	RoomID string    `json:"roomId"`
	User   room.User `json:"user"`
}

func (*JoinRoom) Event() string { return EventJoinRoom }

func (e *JoinRoom) Validate() error {
	if e.RoomID == "" {
		return ErrMissingRoomID
	}
	if !e.User.Valid() {
		return ErrMissingUser
	}
	return nil
}

type RespondJoinRequest struct {
	RequesterID string `json:"requesterId"`
	Accepted    bool   `json:"accepted"`
}

func (*RespondJoinRequest) Event() string { return EventRespondJoinRequest }

func (e *RespondJoinRequest) Validate() error {
	if e.RequesterID == "" {
		return ErrMissingTarget
	}
	return nil
}

// CodeChange carries the full document text. The room is resolved from
// the sender's connection, never from the payload.
type CodeChange struct {
	Code string `json:"code"`
}

func (*CodeChange) Event() string { return EventCodeChange }

func (*CodeChange) Validate() error { return nil }

type CursorPosition struct {
	RoomID   string        `json:"roomId"`
	User     room.User     `json:"user"`
	Position room.Position `json:"position"`
}

func (*CursorPosition) Event() string { return EventCursorPosition }

func (e *CursorPosition) Validate() error {
	if e.RoomID == "" {
		return ErrMissingRoomID
	}
	if !e.User.Valid() {
		return ErrMissingUser
	}
	return nil
}

type NewMessage struct {
	RoomID string    `json:"roomId"`
	User   room.User `json:"user"`
	Text   string    `json:"text"`
}

func (*NewMessage) Event() string { return EventNewMessage }

func (e *NewMessage) Validate() error {
	return e.ValidateLength(DefaultMaxMessageLength)
}

// ValidateLength validates the message against a custom text limit
func (e *NewMessage) ValidateLength(max int) error {
	if e.RoomID == "" {
		return ErrMissingRoomID
	}
	if !e.User.Valid() {
		return ErrMissingUser
	}
	return ValidateText(e.Text, max)
}

// ValidateText checks chat text is non-empty, valid UTF-8 and at most max runes
func ValidateText(text string, max int) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if !utf8.ValidString(text) {
		return ErrMalformed
	}
	if max > 0 && utf8.RuneCountInString(text) > max {
		return ErrMessageTooLong
	}
	return nil
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

func (*LeaveRoom) Event() string { return EventLeaveRoom }

func (e *LeaveRoom) Validate() error {
	if e.RoomID == "" {
		return ErrMissingRoomID
	}
	return nil
}

type CloseRoom struct {
	RoomID string `json:"roomId"`
}

func (*CloseRoom) Event() string { return EventCloseRoom }

func (e *CloseRoom) Validate() error {
	if e.RoomID == "" {
		return ErrMissingRoomID
	}
	return nil
}

type LanguageChange struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

func (*LanguageChange) Event() string { return EventLanguageChange }

func (e *LanguageChange) Validate() error {
	if e.RoomID == "" {
		return ErrMissingRoomID
	}
	if e.Language == "" {
		return ErrMissingLang
	}
	return nil
}
