// Package protocol defines the JSON event envelope exchanged over a room
// connection and the typed inbound and outbound events it carries.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names (client -> server)
const (
	EventJoinRoom           = "joinRoom"
	EventRespondJoinRequest = "respondJoinRequest"
	EventCodeChange         = "codeChange"
	EventCursorPosition     = "cursorPosition"
	EventNewMessage         = "newMessage"
	EventLeaveRoom          = "leaveRoom"
	EventCloseRoom          = "closeRoom"
	EventLanguageChange     = "languageChange"
)

// Outbound event names (server -> client)
const (
	EventRoomAdminStatus       = "roomAdminStatus"
	EventChatHistory           = "chatHistory"
	EventJoinRequest           = "joinRequest"
	EventJoinAccepted          = "joinAccepted"
	EventJoinRejected          = "joinRejected"
	EventUpdateUsers           = "updateUsers"
	EventUserJoined            = "userJoined"
	EventUserLeft              = "userLeft"
	EventCodeUpdate            = "codeUpdate"
	EventUpdateCursorPositions = "updateCursorPositions"
	EventLanguageUpdate        = "languageUpdate"
	EventMessageReceived       = "messageReceived"
	EventRoomClosed            = "roomClosed"
	EventError                 = "error"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMissingRoomID  = errors.New("roomId is required")
	ErrMissingUser    = errors.New("user with uid and name is required")
	ErrMissingTarget  = errors.New("requesterId is required")
	ErrMissingLang    = errors.New("language is required")
	ErrEmptyMessage   = errors.New("message text cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// Envelope is the frame layout in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses one frame into its typed inbound event. It checks shape
// only; callers run Validate before acting on the event.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var in Inbound
	switch env.Event {
	case EventJoinRoom:
		in = &JoinRoom{}
	case EventRespondJoinRequest:
		in = &RespondJoinRequest{}
	case EventCodeChange:
		in = &CodeChange{}
	case EventCursorPosition:
		in = &CursorPosition{}
	case EventNewMessage:
		in = &NewMessage{}
	case EventLeaveRoom:
		in = &LeaveRoom{}
	case EventCloseRoom:
		in = &CloseRoom{}
	case EventLanguageChange:
		in = &LanguageChange{}
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, in); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
	}
	return in, nil
}

// Encode renders an outbound event as one frame
func Encode(out Outbound) ([]byte, error) {
	return json.Marshal(out)
}
