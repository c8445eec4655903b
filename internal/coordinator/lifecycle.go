package coordinator

import (
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

// leave removes connID from roomID. An admin that leaves keeps the admin
// record and can come back through joinRoom.
func (c *Coordinator) leave(connID, roomID string) {
	r, ok := c.memberRoom(connID, roomID)
	if !ok {
		return
	}
	c.removeMember(r, connID)
}

func (c *Coordinator) removeMember(r *room.Room, connID string) {
	user, ok := r.RemoveMember(connID)
	if !ok {
		return
	}
	c.conns.Unbind(connID)

	dropped := false
	c.cursors.Release(connID, func(roomID, uid string) {
		if roomID == r.ID && r.DropCursor(uid, connID) {
			dropped = true
		}
	})

	c.broadcast(r, "", protocol.UpdateUsers(r.Names()))
	c.broadcast(r, "", protocol.UserLeft(user))
	if dropped {
		c.broadcast(r, "", protocol.CursorPositions(r.Cursors()))
	}

	c.log.Info().Str("room", r.ID).Str("conn", connID).Str("uid", user.UID).Msg("member left")

	if c.opts.CloseEmptyRooms && r.MemberCount() == 0 {
		c.teardown(r, "empty")
		c.clearHistory(r.ID)
	}
}

func (c *Coordinator) closeRoom(connID, roomID string) {
	r, ok := c.rooms.Get(roomID)
	if !ok || !r.IsAdminConn(connID) {
		c.log.Debug().Str("conn", connID).Str("room", roomID).Msg("close from non-admin ignored")
		return
	}
	c.teardown(r, "closed by admin")
	c.clearHistory(roomID)
}

// teardown destroys r. Members are told the room is gone and unbound;
// join requests still waiting on it are rejected.
func (c *Coordinator) teardown(r *room.Room, reason string) {
	c.broadcast(r, "", protocol.RoomClosed())
	for _, m := range r.Members() {
		c.conns.Unbind(m.ConnID)
		c.cursors.Release(m.ConnID, func(string, string) {})
	}
	for _, p := range c.pending.DropRoom(r.ID) {
		c.send(p.RequesterID, protocol.JoinRejected(r.ID))
	}
	c.rooms.Delete(r.ID)

	c.log.Info().Str("room", r.ID).Str("reason", reason).Msg("room destroyed")
}

// disconnect removes every trace of connID: its pending request, its
// cursors, every room it administers and its membership.
func (c *Coordinator) disconnect(connID string) {
	c.pending.Take(connID)

	touched := make(map[string]*room.Room)
	c.cursors.Release(connID, func(roomID, uid string) {
		if r, ok := c.rooms.Get(roomID); ok && r.DropCursor(uid, connID) {
			touched[roomID] = r
		}
	})

	// An admin that left its room may be a member of another one; that
	// binding must survive so the membership below is removed too.
	for _, r := range c.rooms.AdministeredBy(connID) {
		if _, ok := r.RemoveMember(connID); ok {
			c.conns.Unbind(connID)
		}
		c.teardown(r, "admin disconnected")
	}

	if roomID, ok := c.conns.Lookup(connID); ok {
		if r, ok := c.rooms.Get(roomID); ok {
			c.removeMember(r, connID)
		} else {
			c.conns.Unbind(connID)
		}
	}

	for id, r := range touched {
		if current, ok := c.rooms.Get(id); ok && current == r {
			c.broadcast(r, "", protocol.CursorPositions(r.Cursors()))
		}
	}
}
