package protocol

import (
	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

// Outbound is one server -> client event
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type AdminStatusPayload struct {
	IsAdmin bool `json:"isAdmin"`
}

type JoinRequestPayload struct {
	RequesterID string    `json:"requesterId"`
	User        room.User `json:"user"`
}

type JoinAcceptedPayload struct {
	RoomID string    `json:"roomId"`
	User   room.User `json:"user"`
}

type JoinRejectedPayload struct {
	RoomID string `json:"roomId"`
}

type UserPayload struct {
	User room.User `json:"user"`
}

type LanguagePayload struct {
	Language string `json:"language"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func AdminStatus(isAdmin bool) Outbound {
	return Outbound{Event: EventRoomAdminStatus, Data: AdminStatusPayload{IsAdmin: isAdmin}}
}

func ChatHistory(msgs []chat.Message) Outbound {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return Outbound{Event: EventChatHistory, Data: msgs}
}

func JoinRequest(requesterID string, user room.User) Outbound {
	return Outbound{Event: EventJoinRequest, Data: JoinRequestPayload{RequesterID: requesterID, User: user}}
}

func JoinAccepted(roomID string, user room.User) Outbound {
	return Outbound{Event: EventJoinAccepted, Data: JoinAcceptedPayload{RoomID: roomID, User: user}}
}

func JoinRejected(roomID string) Outbound {
	return Outbound{Event: EventJoinRejected, Data: JoinRejectedPayload{RoomID: roomID}}
}

func UpdateUsers(names []string) Outbound {
	if names == nil {
		names = []string{}
	}
	return Outbound{Event: EventUpdateUsers, Data: names}
}

func UserJoined(user room.User) Outbound {
	return Outbound{Event: EventUserJoined, Data: UserPayload{User: user}}
}

func UserLeft(user room.User) Outbound {
	return Outbound{Event: EventUserLeft, Data: UserPayload{User: user}}
}

func CodeUpdate(code string) Outbound {
	return Outbound{Event: EventCodeUpdate, Data: code}
}

func CursorPositions(cursors map[string]room.Cursor) Outbound {
	if cursors == nil {
		cursors = map[string]room.Cursor{}
	}
	return Outbound{Event: EventUpdateCursorPositions, Data: cursors}
}

func LanguageUpdate(language string) Outbound {
	return Outbound{Event: EventLanguageUpdate, Data: LanguagePayload{Language: language}}
}

func MessageReceived(msg chat.Message) Outbound {
	return Outbound{Event: EventMessageReceived, Data: msg}
}

func RoomClosed() Outbound {
	return Outbound{Event: EventRoomClosed}
}

func Error(message string) Outbound {
	return Outbound{Event: EventError, Data: ErrorPayload{Message: message}}
}
