package coordinator

import (
	"context"
	"time"

	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

// RoomInfo is a read-only snapshot of a room for the HTTP API
type RoomInfo struct {
	ID           string    `json:"id"`
	Admin        room.User `json:"admin"`
	Members      []string  `json:"members"`
	MemberCount  int       `json:"member_count"`
	PendingCount int       `json:"pending_count"`
	CursorCount  int       `json:"cursor_count"`
	CodeLength   int       `json:"code_length"`
	CreatedAt    time.Time `json:"created_at"`
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
	Pending     int `json:"pending_requests"`
}

func (c *Coordinator) info(r *room.Room) RoomInfo {
	return RoomInfo{
		ID:           r.ID,
		Admin:        r.Admin.User,
		Members:      r.Names(),
		MemberCount:  r.MemberCount(),
		PendingCount: c.pending.CountFor(r.ID),
		CursorCount:  r.CursorCount(),
		CodeLength:   len(r.Code),
		CreatedAt:    r.CreatedAt,
	}
}

// Rooms lists every live room sorted by id
func (c *Coordinator) Rooms(ctx context.Context) ([]RoomInfo, error) {
	return query(ctx, c, func() []RoomInfo {
		all := c.rooms.All()
		out := make([]RoomInfo, 0, len(all))
		for _, r := range all {
			out = append(out, c.info(r))
		}
		return out
	})
}

func (c *Coordinator) Room(ctx context.Context, id string) (RoomInfo, error) {
	info, err := query(ctx, c, func() *RoomInfo {
		r, ok := c.rooms.Get(id)
		if !ok {
			return nil
		}
		info := c.info(r)
		return &info
	})
	if err != nil {
		return RoomInfo{}, err
	}
	if info == nil {
		return RoomInfo{}, ErrRoomNotFound
	}
	return *info, nil
}

func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	return query(ctx, c, func() Stats {
		return Stats{Rooms: c.rooms.Len(), Connections: c.conns.Len(), Pending: c.pending.Len()}
	})
}

// ActiveRoomIDs returns the set of live room ids
func (c *Coordinator) ActiveRoomIDs(ctx context.Context) (map[string]bool, error) {
	return query(ctx, c, func() map[string]bool {
		ids := make(map[string]bool, c.rooms.Len())
		for _, r := range c.rooms.All() {
			ids[r.ID] = true
		}
		return ids
	})
}

// PostMessage injects a chat message into a live room from outside any
// websocket connection. It takes the same persist then broadcast path as
// newMessage.
func (c *Coordinator) PostMessage(ctx context.Context, roomID string, user room.User, text string) error {
	if roomID == "" {
		return protocol.ErrMissingRoomID
	}
	if !user.Valid() {
		return protocol.ErrMissingUser
	}
	if err := protocol.ValidateText(text, c.opts.MaxMessageLength); err != nil {
		return err
	}

	found, err := query(ctx, c, func() bool {
		r, ok := c.rooms.Get(roomID)
		if ok {
			c.postMessage(r, user, text)
		}
		return ok
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

// ClearOrphaned drops the stored history of roomID unless the room is
// live. The clear runs on the persistence worker, so it lands before any
// store call made by a room created later under the same id.
func (c *Coordinator) ClearOrphaned(ctx context.Context, roomID string) (bool, error) {
	result := make(chan error, 1)
	live, err := query(ctx, c, func() bool {
		if _, ok := c.rooms.Get(roomID); ok {
			return true
		}
		c.enqueue(func(jctx context.Context) func() {
			result <- c.store.Clear(jctx, roomID)
			return nil
		})
		return false
	})
	if err != nil {
		return false, err
	}
	if live {
		return false, nil
	}

	select {
	case err := <-result:
		if err != nil {
			return false, err
		}
		return true, nil
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
