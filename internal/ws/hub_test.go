package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/coordinator"
	"github.com/manpreetbhatti/collabrooms/internal/metrics"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

func newTestClient(hub *Hub, id string, buffer int) *Client {
	c := &Client{id: id, hub: hub, send: make(chan []byte, buffer)}
	hub.register(c)
	return c
}

func TestHubDeliverTargetsListedConnections(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	a := newTestClient(hub, "a", 4)
	b := newTestClient(hub, "b", 4)

	hub.Deliver(protocol.CodeUpdate("x"), "a", "ghost")

	require.Len(t, a.send, 1)
	assert.Empty(t, b.send)
	assert.JSONEq(t, `{"event":"codeUpdate","data":"x"}`, string(<-a.send))
}

func TestHubDropsSlowClient(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hub := NewHub(zerolog.Nop(), m)
	slow := newTestClient(hub, "slow", 1)

	hub.Deliver(protocol.RoomClosed(), "slow")
	hub.Deliver(protocol.RoomClosed(), "slow")

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DroppedClients))

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "dropped client's queue is closed")

	// a later unregister from the read pump must not close twice
	assert.NotPanics(t, func() { hub.unregister(slow) })
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := newTestClient(hub, "a", 1)

	hub.CloseAll()

	assert.Equal(t, 0, hub.ClientCount())
	_, open := <-c.send
	assert.False(t, open)
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(context.Background(), NewHub(zerolog.Nop(), nil), nil, Options{AllowedOrigins: []string{"http://app.test"}})

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, s.checkOrigin(r), "no origin header")

	r.Header.Set("Origin", "http://app.test")
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "http://evil.test")
	assert.False(t, s.checkOrigin(r))
}

type wsHarness struct {
	t   *testing.T
	url string
}

func startServer(t *testing.T) *wsHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(zerolog.Nop(), nil)
	coord := coordinator.New(zerolog.Nop(), hub, chat.NewMemoryStore(), nil, coordinator.DefaultOptions())
	go coord.Run(ctx)

	srv := httptest.NewServer(NewServer(ctx, hub, coord, Options{}))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
		cancel()
	})
	return &wsHarness{t: t, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *wsHarness) dial() *websocket.Conn {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(protocol.Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// await reads frames until one carries the wanted event
func await(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

func TestEndToEndJoinFlow(t *testing.T) {
	h := startServer(t)
	a := h.dial()
	b := h.dial()

	alice := room.User{UID: "u-a", Name: "Alice"}
	bruno := room.User{UID: "u-b", Name: "Bruno"}

	emit(t, a, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", User: alice})
	assert.JSONEq(t, `{"isAdmin":true}`, string(await(t, a, protocol.EventRoomAdminStatus)))

	emit(t, b, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", User: bruno})
	var req protocol.JoinRequestPayload
	require.NoError(t, json.Unmarshal(await(t, a, protocol.EventJoinRequest), &req))
	assert.Equal(t, bruno, req.User)
	require.NotEmpty(t, req.RequesterID)

	emit(t, a, protocol.EventRespondJoinRequest, protocol.RespondJoinRequest{RequesterID: req.RequesterID, Accepted: true})

	var accepted protocol.JoinAcceptedPayload
	require.NoError(t, json.Unmarshal(await(t, b, protocol.EventJoinAccepted), &accepted))
	assert.Equal(t, "r1", accepted.RoomID)

	assert.JSONEq(t, `["Alice","Bruno"]`, string(await(t, a, protocol.EventUpdateUsers)))
	assert.JSONEq(t, `["Alice","Bruno"]`, string(await(t, b, protocol.EventUpdateUsers)))

	emit(t, b, protocol.EventNewMessage, protocol.NewMessage{RoomID: "r1", User: bruno, Text: "hello"})
	for _, conn := range []*websocket.Conn{a, b} {
		var msg chat.Message
		require.NoError(t, json.Unmarshal(await(t, conn, protocol.EventMessageReceived), &msg))
		assert.Equal(t, "hello", msg.Text)
	}

	// admin going away closes the room for everyone left
	require.NoError(t, a.Close())
	await(t, b, protocol.EventRoomClosed)
}

func TestMalformedFrameGetsError(t *testing.T) {
	h := startServer(t)
	conn := h.dial()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(await(t, conn, protocol.EventError), &payload))
	assert.Contains(t, payload.Message, protocol.ErrMalformed.Error())

	emit(t, conn, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1"})
	require.NoError(t, json.Unmarshal(await(t, conn, protocol.EventError), &payload))
	assert.Equal(t, protocol.ErrMissingUser.Error(), payload.Message)
}
