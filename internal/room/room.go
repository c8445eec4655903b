package room

import (
	"sort"
	"time"
)

// A participant as reported by the client at join time
type User struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Valid reports whether both identity fields are present
func (u User) Valid() bool {
	return u.UID != "" && u.Name != ""
}

type Position struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

// Cursor is the latest position reported for a uid. ConnID tags the
// connection that reported it so it can be dropped on disconnect.
type Cursor struct {
	User     User     `json:"user"`
	Position Position `json:"position"`
	ConnID   string   `json:"-"`
}

type Admin struct {
	ConnID string
	User   User
}

type Member struct {
	ConnID string
	User   User
	seq    uint64
}

// A collaborative editing session. Not safe for concurrent use; the
// coordinator loop owns every Room.
type Room struct {
	ID        string
	Admin     Admin
	Code      string
	CreatedAt time.Time

	members map[string]*Member
	cursors map[string]Cursor
	nextSeq uint64
}

// Creates a new room administered by the given connection
func NewRoom(id string, admin Admin, now time.Time) *Room {
	return &Room{
		ID:        id,
		Admin:     admin,
		CreatedAt: now,
		members:   make(map[string]*Member),
		cursors:   make(map[string]Cursor),
	}
}

func (r *Room) IsAdminConn(connID string) bool {
	return r.Admin.ConnID == connID
}

func (r *Room) IsAdminUser(uid string) bool {
	return r.Admin.User.UID == uid
}

// Adds or replaces a member. Returns false if the connection was already a member.
func (r *Room) AddMember(connID string, user User) bool {
	if m, ok := r.members[connID]; ok {
		m.User = user
		return false
	}
	r.nextSeq++
	r.members[connID] = &Member{ConnID: connID, User: user, seq: r.nextSeq}
	return true
}

func (r *Room) RemoveMember(connID string) (User, bool) {
	m, ok := r.members[connID]
	if !ok {
		return User{}, false
	}
	delete(r.members, connID)
	return m.User, true
}

func (r *Room) IsMember(connID string) bool {
	_, ok := r.members[connID]
	return ok
}

func (r *Room) MemberCount() int {
	return len(r.members)
}

// Returns members in join order
func (r *Room) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Display names of all members in join order
func (r *Room) Names() []string {
	members := r.Members()
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.User.Name
	}
	return names
}

// Connection ids of all members except the given one (pass "" to include all)
func (r *Room) ConnIDs(except string) []string {
	members := r.Members()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ConnID != except {
			ids = append(ids, m.ConnID)
		}
	}
	return ids
}

// Upserts the cursor for user.UID. Returns the connection that owned
// the previous entry, if any.
func (r *Room) SetCursor(connID string, user User, pos Position) (prevConn string) {
	if prev, ok := r.cursors[user.UID]; ok {
		prevConn = prev.ConnID
	}
	r.cursors[user.UID] = Cursor{User: user, Position: pos, ConnID: connID}
	return prevConn
}

// Removes the cursor for uid only if it is still owned by connID
func (r *Room) DropCursor(uid, connID string) bool {
	c, ok := r.cursors[uid]
	if !ok || c.ConnID != connID {
		return false
	}
	delete(r.cursors, uid)
	return true
}

// Copy of the full cursor map
func (r *Room) Cursors() map[string]Cursor {
	out := make(map[string]Cursor, len(r.cursors))
	for uid, c := range r.cursors {
		out[uid] = c
	}
	return out
}

func (r *Room) CursorCount() int {
	return len(r.cursors)
}
