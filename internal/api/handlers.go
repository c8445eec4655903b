package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/coordinator"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxBodyBytes     = 64 * 1024
)

// Rooms is the coordinator surface the HTTP API reads and writes through
type Rooms interface {
	Rooms(ctx context.Context) ([]coordinator.RoomInfo, error)
	Room(ctx context.Context, id string) (coordinator.RoomInfo, error)
	Stats(ctx context.Context) (coordinator.Stats, error)
	PostMessage(ctx context.Context, roomID string, user room.User, text string) error
}

// Sockets reports open WebSocket connections
type Sockets interface {
	ClientCount() int
}

type API struct {
	rooms   Rooms
	store   chat.Store
	sockets Sockets
	log     zerolog.Logger
}

func New(rooms Rooms, store chat.Store, sockets Sockets, log zerolog.Logger) *API {
	return &API{
		rooms:   rooms,
		store:   store,
		sockets: sockets,
		log:     log.With().Str("component", "api").Logger(),
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Error().Err(err).Msg("encode JSON response")
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

// coordinatorError maps a failed coordinator call onto a response
func (a *API) coordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrRoomNotFound):
		a.errorResponse(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, coordinator.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		a.errorResponse(w, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		a.log.Error().Err(err).Msg("coordinator call failed")
		a.errorResponse(w, http.StatusInternalServerError, "Internal error")
	}
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := a.rooms.Stats(r.Context())
	if err != nil {
		a.coordinatorError(w, err)
		return
	}

	stats := map[string]any{
		"active_rooms":       s.Rooms,
		"joined_connections": s.Connections,
		"pending_requests":   s.Pending,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	}
	if a.sockets != nil {
		stats["active_clients"] = a.sockets.ClientCount()
	}
	if counter, ok := a.store.(chat.Counter); ok {
		if total, err := counter.Count(r.Context()); err == nil {
			stats["total_messages"] = total
		} else {
			a.log.Warn().Err(err).Msg("count stored messages")
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	rooms, err := a.rooms.Rooms(r.Context())
	if err != nil {
		a.coordinatorError(w, err)
		return
	}

	total := len(rooms)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := rooms[offset:end]

	a.jsonResponse(w, http.StatusOK, map[string]any{
		"rooms":  page,
		"count":  len(page),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	info, err := a.rooms.Room(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.coordinatorError(w, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, info)
}

func (a *API) RoomHistoryHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if _, err := a.rooms.Room(r.Context(), roomID); err != nil {
		a.coordinatorError(w, err)
		return
	}

	msgs, err := a.store.ReadAll(r.Context(), roomID)
	if err != nil {
		a.log.Error().Err(err).Str("room", roomID).Msg("read chat history")
		a.errorResponse(w, http.StatusBadGateway, "Chat history unavailable")
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	a.jsonResponse(w, http.StatusOK, map[string]any{
		"room_id":  roomID,
		"messages": msgs,
		"count":    len(msgs),
	})
}

type SendChatRequest struct {
	RoomID  string    `json:"roomId"`
	User    room.User `json:"user"`
	Message string    `json:"message"`
}

// SendChatHandler posts a chat message into a live room over REST
func (a *API) SendChatHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req SendChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RoomID == "" || !req.User.Valid() || req.Message == "" {
		a.errorResponse(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	err := a.rooms.PostMessage(r.Context(), req.RoomID, req.User, req.Message)
	switch {
	case err == nil:
		a.jsonResponse(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, protocol.ErrMessageTooLong), errors.Is(err, protocol.ErrMalformed), errors.Is(err, protocol.ErrEmptyMessage):
		a.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		a.coordinatorError(w, err)
	}
}
