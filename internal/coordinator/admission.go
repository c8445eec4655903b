package coordinator

import (
	"context"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

func (c *Coordinator) join(connID, roomID string, user room.User) {
	if current, ok := c.conns.Lookup(connID); ok && current != roomID {
		c.leave(connID, current)
	}
	// a newer join attempt supersedes an unanswered one
	c.pending.Take(connID)

	r, ok := c.rooms.Get(roomID)
	switch {
	case !ok:
		c.createRoom(connID, roomID, user)
	case r.IsAdminUser(user.UID):
		c.readmitAdmin(r, connID, user)
	case r.IsMember(connID):
		c.send(connID, protocol.JoinAccepted(r.ID, user))
		c.send(connID, protocol.UpdateUsers(r.Names()))
		c.catchUp(r, connID)
	default:
		c.pending.Put(room.Pending{RequesterID: connID, RoomID: r.ID, User: user})
		c.send(r.Admin.ConnID, protocol.JoinRequest(connID, user))
		c.log.Debug().Str("room", r.ID).Str("conn", connID).Str("uid", user.UID).Msg("join request queued")
	}
}

func (c *Coordinator) createRoom(connID, roomID string, user room.User) {
	r := room.NewRoom(roomID, room.Admin{ConnID: connID, User: user}, c.now())
	c.rooms.Put(r)
	c.admit(r, connID, user)

	c.send(connID, protocol.AdminStatus(true))
	c.send(connID, protocol.ChatHistory(nil))
	c.broadcast(r, "", protocol.UpdateUsers(r.Names()))

	// history left over from an earlier room with the same id
	c.clearHistory(roomID)

	c.log.Info().Str("room", roomID).Str("admin", user.UID).Msg("room created")
}

// readmitAdmin rebinds the admin record to a new connection of the same uid
func (c *Coordinator) readmitAdmin(r *room.Room, connID string, user room.User) {
	prev := r.Admin.ConnID
	r.Admin = room.Admin{ConnID: connID, User: user}
	c.admit(r, connID, user)

	c.send(connID, protocol.AdminStatus(true))
	if prev != connID && r.IsMember(prev) {
		c.send(prev, protocol.AdminStatus(false))
	}
	c.broadcast(r, "", protocol.UpdateUsers(r.Names()))
	c.catchUp(r, connID)

	roomID := r.ID
	c.enqueue(func(ctx context.Context) func() {
		msgs, err := c.store.ReadAll(ctx, roomID)
		if err != nil {
			c.storeFailed("read", roomID, err)
			msgs = nil
		}
		return func() { c.replayHistory(r, connID, msgs) }
	})

	c.log.Info().Str("room", roomID).Str("conn", connID).Msg("admin rejoined")
}

func (c *Coordinator) replayHistory(r *room.Room, connID string, msgs []chat.Message) {
	current, ok := c.rooms.Get(r.ID)
	if !ok || current != r || !r.IsMember(connID) {
		return
	}
	c.send(connID, protocol.ChatHistory(msgs))
}

func (c *Coordinator) respond(callerID, requesterID string, accepted bool) {
	p, ok := c.pending.Peek(requesterID)
	if !ok {
		c.log.Debug().Str("requester", requesterID).Msg("no pending request")
		return
	}

	r, exists := c.rooms.Get(p.RoomID)
	if c.opts.StrictJoinResponses && (!exists || !r.IsAdminConn(callerID)) {
		c.log.Debug().Str("caller", callerID).Str("room", p.RoomID).Msg("join response from non-admin ignored")
		return
	}
	c.pending.Take(requesterID)

	if !exists {
		c.send(requesterID, protocol.JoinRejected(p.RoomID))
		return
	}
	if !accepted {
		c.send(requesterID, protocol.JoinRejected(r.ID))
		c.log.Debug().Str("room", r.ID).Str("conn", requesterID).Msg("join rejected")
		return
	}

	if current, ok := c.conns.Lookup(requesterID); ok && current != r.ID {
		c.leave(requesterID, current)
	}
	c.admit(r, requesterID, p.User)

	c.send(requesterID, protocol.JoinAccepted(r.ID, p.User))
	c.broadcast(r, "", protocol.UpdateUsers(r.Names()))
	c.broadcast(r, "", protocol.UserJoined(p.User))
	c.catchUp(r, requesterID)

	c.log.Info().Str("room", r.ID).Str("conn", requesterID).Str("uid", p.User.UID).Msg("member joined")
}

func (c *Coordinator) admit(r *room.Room, connID string, user room.User) {
	r.AddMember(connID, user)
	c.conns.Bind(connID, r.ID)
}

// catchUp brings a fresh member up to date with the room's code and cursors
func (c *Coordinator) catchUp(r *room.Room, connID string) {
	if r.Code != "" {
		c.send(connID, protocol.CodeUpdate(r.Code))
	}
	if r.CursorCount() > 0 {
		c.send(connID, protocol.CursorPositions(r.Cursors()))
	}
}
