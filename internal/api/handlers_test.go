package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/coordinator"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

type nopTransport struct{}

func (nopTransport) Deliver(protocol.Outbound, ...string) {}

type fixedSockets int

func (n fixedSockets) ClientCount() int { return int(n) }

type testEnv struct {
	api    *API
	coord  *coordinator.Coordinator
	store  *chat.MemoryStore
	router http.Handler
}

func setupTestAPI(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := chat.NewMemoryStore()
	coord := coordinator.New(zerolog.Nop(), nopTransport{}, store, nil, coordinator.DefaultOptions())
	go coord.Run(ctx)

	api := New(coord, store, fixedSockets(3), zerolog.Nop())
	return &testEnv{
		api:    api,
		coord:  coord,
		store:  store,
		router: api.Router(RouterOptions{RateLimit: 1000}),
	}
}

// openRoom creates roomID with the given admin through the coordinator
func (e *testEnv) openRoom(t *testing.T, roomID string, admin room.User) {
	t.Helper()
	ctx := context.Background()
	if err := e.coord.Submit(ctx, "conn-"+admin.UID, &protocol.JoinRoom{RoomID: roomID, User: admin}); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}
	if _, err := e.coord.Room(ctx, roomID); err != nil {
		t.Fatalf("Room %s was not created: %v", roomID, err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestHealthHandler(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(t, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if response := decode(t, w); response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	env := setupTestAPI(t)
	env.openRoom(t, "r1", room.User{UID: "u1", Name: "Ada"})
	if err := env.store.Append(context.Background(), "archived", chat.Message{Text: "hi"}); err != nil {
		t.Fatalf("Failed to seed history: %v", err)
	}

	w := env.do(t, "GET", "/api/stats", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	response := decode(t, w)
	if response["active_rooms"] != float64(1) {
		t.Errorf("Expected 1 active room, got %v", response["active_rooms"])
	}
	if response["active_clients"] != float64(3) {
		t.Errorf("Expected 3 active clients, got %v", response["active_clients"])
	}
	if response["total_messages"] != float64(1) {
		t.Errorf("Expected 1 stored message, got %v", response["total_messages"])
	}
}

func TestListRooms(t *testing.T) {
	env := setupTestAPI(t)
	for _, id := range []string{"b", "a", "c"} {
		env.openRoom(t, id, room.User{UID: "u-" + id, Name: id})
	}

	w := env.do(t, "GET", "/api/rooms", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Rooms []coordinator.RoomInfo `json:"rooms"`
		Total int                    `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Total != 3 || len(response.Rooms) != 3 {
		t.Fatalf("Expected 3 rooms, got %d (total %d)", len(response.Rooms), response.Total)
	}
	if response.Rooms[0].ID != "a" {
		t.Errorf("Expected rooms sorted by id, first is %s", response.Rooms[0].ID)
	}
}

func TestListRoomsPagination(t *testing.T) {
	env := setupTestAPI(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		env.openRoom(t, id, room.User{UID: "u-" + id, Name: id})
	}

	tests := []struct {
		query     string
		wantCount int
	}{
		{"?limit=2", 2},
		{"?limit=2&offset=4", 1},
		{"?offset=10", 0},
		{"?limit=-1", 5},
	}

	for _, tt := range tests {
		w := env.do(t, "GET", "/api/rooms"+tt.query, nil)
		response := decode(t, w)
		if response["count"] != float64(tt.wantCount) {
			t.Errorf("%s: expected %d rooms, got %v", tt.query, tt.wantCount, response["count"])
		}
	}
}

func TestGetRoom(t *testing.T) {
	env := setupTestAPI(t)
	env.openRoom(t, "r1", room.User{UID: "u1", Name: "Ada"})

	w := env.do(t, "GET", "/api/rooms/r1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var info coordinator.RoomInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.Admin.Name != "Ada" || info.MemberCount != 1 {
		t.Errorf("Unexpected room info: %+v", info)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(t, "GET", "/api/rooms/nope", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestSendChatAndReadHistory(t *testing.T) {
	env := setupTestAPI(t)
	env.openRoom(t, "r1", room.User{UID: "u1", Name: "Ada"})

	w := env.do(t, "POST", "/chat/send", SendChatRequest{
		RoomID:  "r1",
		User:    room.User{UID: "u2", Name: "Bot"},
		Message: "deploy finished",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if response := decode(t, w); response["success"] != true {
		t.Errorf("Expected success, got %v", response)
	}

	// persistence runs on the coordinator's worker
	deadline := time.Now().Add(time.Second)
	for {
		w = env.do(t, "GET", "/api/rooms/r1/history", nil)
		if decode(t, w)["count"] == float64(1) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message never reached the history")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendChatValidation(t *testing.T) {
	env := setupTestAPI(t)
	env.openRoom(t, "r1", room.User{UID: "u1", Name: "Ada"})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing message", SendChatRequest{RoomID: "r1", User: room.User{UID: "u2", Name: "Bot"}}, http.StatusBadRequest},
		{"missing user", SendChatRequest{RoomID: "r1", Message: "hi"}, http.StatusBadRequest},
		{"unknown room", SendChatRequest{RoomID: "zz", User: room.User{UID: "u2", Name: "Bot"}, Message: "hi"}, http.StatusNotFound},
		{"invalid json", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/chat/send", tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestHistoryForUnknownRoom(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(t, "GET", "/api/rooms/ghost/history", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStoppedCoordinatorIsUnavailable(t *testing.T) {
	store := chat.NewMemoryStore()
	coord := coordinator.New(zerolog.Nop(), nopTransport{}, store, nil, coordinator.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	cancel()
	<-coord.Done()

	router := New(coord, store, nil, zerolog.Nop()).Router(RouterOptions{})
	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestAPI(t)

	req := httptest.NewRequest("OPTIONS", "/chat/send", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}
