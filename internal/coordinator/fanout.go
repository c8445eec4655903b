package coordinator

import (
	"context"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

// codeChange replaces the room document. The room comes from the
// sender's binding, so a connection outside any room changes nothing.
func (c *Coordinator) codeChange(connID, code string) {
	roomID, ok := c.conns.Lookup(connID)
	if !ok {
		c.log.Debug().Str("conn", connID).Msg("code change from unjoined connection")
		return
	}
	r, ok := c.rooms.Get(roomID)
	if !ok {
		return
	}
	r.Code = code
	c.broadcast(r, connID, protocol.CodeUpdate(code))
}

func (c *Coordinator) cursorPosition(connID, roomID string, user room.User, pos room.Position) {
	r, ok := c.memberRoom(connID, roomID)
	if !ok {
		c.log.Debug().Str("conn", connID).Str("room", roomID).Msg("cursor from non-member")
		return
	}

	prev := r.SetCursor(connID, user, pos)
	if prev != "" && prev != connID {
		c.cursors.Remove(prev, r.ID, user.UID)
	}
	c.cursors.Add(connID, r.ID, user.UID)

	c.broadcast(r, connID, protocol.CursorPositions(r.Cursors()))
}

func (c *Coordinator) languageChange(connID, roomID, language string) {
	r, ok := c.memberRoom(connID, roomID)
	if !ok {
		c.log.Debug().Str("conn", connID).Str("room", roomID).Msg("language change from non-member")
		return
	}
	c.broadcast(r, connID, protocol.LanguageUpdate(language))
}

func (c *Coordinator) newMessage(connID, roomID string, user room.User, text string) {
	r, ok := c.memberRoom(connID, roomID)
	if !ok {
		c.log.Debug().Str("conn", connID).Str("room", roomID).Msg("chat from non-member")
		return
	}
	c.postMessage(r, user, text)
}

// postMessage stamps and persists a chat message, then broadcasts it to
// the whole room including the author. The broadcast happens even when
// the store call fails.
func (c *Coordinator) postMessage(r *room.Room, user room.User, text string) {
	msg := chat.Message{User: user, Text: text, Timestamp: c.now().UnixMilli()}
	roomID := r.ID

	c.enqueue(func(ctx context.Context) func() {
		if err := c.store.Append(ctx, roomID, msg); err != nil {
			c.storeFailed("append", roomID, err)
		}
		return func() {
			current, ok := c.rooms.Get(roomID)
			if !ok || current != r {
				return
			}
			c.broadcast(r, "", protocol.MessageReceived(msg))
		}
	})
}
