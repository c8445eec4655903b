package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Inbound
		wantErr error
	}{
		{
			name: "join room",
			raw:  `{"event":"joinRoom","data":{"roomId":"r1","user":{"uid":"u1","name":"Ada"}}}`,
			want: &JoinRoom{RoomID: "r1", User: room.User{UID: "u1", Name: "Ada"}},
		},
		{
			name: "respond",
			raw:  `{"event":"respondJoinRequest","data":{"requesterId":"c2","accepted":true}}`,
			want: &RespondJoinRequest{RequesterID: "c2", Accepted: true},
		},
		{
			name: "code change",
			raw:  `{"event":"codeChange","data":{"code":"print(1)"}}`,
			want: &CodeChange{Code: "print(1)"},
		},
		{
			name: "cursor",
			raw:  `{"event":"cursorPosition","data":{"roomId":"r1","user":{"uid":"u1","name":"Ada"},"position":{"lineNumber":3,"column":7}}}`,
			want: &CursorPosition{RoomID: "r1", User: room.User{UID: "u1", Name: "Ada"}, Position: room.Position{LineNumber: 3, Column: 7}},
		},
		{
			name: "close without data",
			raw:  `{"event":"closeRoom"}`,
			want: &CloseRoom{},
		},
		{
			name:    "not json",
			raw:     `joinRoom r1`,
			wantErr: ErrMalformed,
		},
		{
			name:    "missing event",
			raw:     `{"data":{}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown event",
			raw:     `{"event":"deleteEverything"}`,
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "wrong payload type",
			raw:     `{"event":"codeChange","data":{"code":42}}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Event(), got.Event())
		})
	}
}

func TestValidate(t *testing.T) {
	ada := room.User{UID: "u1", Name: "Ada"}

	tests := []struct {
		name string
		in   Inbound
		want error
	}{
		{"join ok", &JoinRoom{RoomID: "r1", User: ada}, nil},
		{"join without room", &JoinRoom{User: ada}, ErrMissingRoomID},
		{"join without uid", &JoinRoom{RoomID: "r1", User: room.User{Name: "Ada"}}, ErrMissingUser},
		{"join without name", &JoinRoom{RoomID: "r1", User: room.User{UID: "u1"}}, ErrMissingUser},
		{"respond without requester", &RespondJoinRequest{Accepted: true}, ErrMissingTarget},
		{"empty code is fine", &CodeChange{}, nil},
		{"cursor without user", &CursorPosition{RoomID: "r1"}, ErrMissingUser},
		{"message ok", &NewMessage{RoomID: "r1", User: ada, Text: "hi"}, nil},
		{"message empty", &NewMessage{RoomID: "r1", User: ada}, ErrEmptyMessage},
		{"message too long", &NewMessage{RoomID: "r1", User: ada, Text: strings.Repeat("x", DefaultMaxMessageLength+1)}, ErrMessageTooLong},
		{"leave without room", &LeaveRoom{}, ErrMissingRoomID},
		{"language without value", &LanguageChange{RoomID: "r1"}, ErrMissingLang},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestEncodeShapes(t *testing.T) {
	tests := []struct {
		name string
		out  Outbound
		want string
	}{
		{"admin status", AdminStatus(true), `{"event":"roomAdminStatus","data":{"isAdmin":true}}`},
		{"room closed has no data", RoomClosed(), `{"event":"roomClosed"}`},
		{"empty history is a list", ChatHistory(nil), `{"event":"chatHistory","data":[]}`},
		{"empty code is kept", CodeUpdate(""), `{"event":"codeUpdate","data":""}`},
		{"users", UpdateUsers([]string{"Ada", "Bob"}), `{"event":"updateUsers","data":["Ada","Bob"]}`},
		{"rejected", JoinRejected("r1"), `{"event":"joinRejected","data":{"roomId":"r1"}}`},
		{
			"message",
			MessageReceived(chat.Message{User: room.User{UID: "u1", Name: "Ada"}, Text: "hi", Timestamp: 1700000000000}),
			`{"event":"messageReceived","data":{"user":{"uid":"u1","name":"Ada"},"text":"hi","timestamp":1700000000000}}`,
		},
		{
			"cursor map hides owner connection",
			CursorPositions(map[string]room.Cursor{"u1": {User: room.User{UID: "u1", Name: "Ada"}, Position: room.Position{LineNumber: 2, Column: 5}, ConnID: "c1"}}),
			`{"event":"updateCursorPositions","data":{"u1":{"user":{"uid":"u1","name":"Ada"},"position":{"lineNumber":2,"column":5}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.out)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestEnvelopeRoundTripFromClient(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"event": EventNewMessage,
		"data":  map[string]any{"roomId": "r1", "user": map[string]string{"uid": "u1", "name": "Ada"}, "text": "hello"},
	})
	require.NoError(t, err)

	in, err := Decode(raw)
	require.NoError(t, err)
	msg, ok := in.(*NewMessage)
	require.True(t, ok)
	assert.NoError(t, msg.ValidateLength(3000))
	assert.ErrorIs(t, msg.ValidateLength(3), ErrMessageTooLong)
}
