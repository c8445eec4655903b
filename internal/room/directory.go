package room

import "sort"

// Directory maps room ids to live rooms
type Directory struct {
	rooms map[string]*Room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

func (d *Directory) Get(id string) (*Room, bool) {
	r, ok := d.rooms[id]
	return r, ok
}

func (d *Directory) Put(r *Room) {
	d.rooms[r.ID] = r
}

func (d *Directory) Delete(id string) {
	delete(d.rooms, id)
}

func (d *Directory) Len() int {
	return len(d.rooms)
}

// Rooms sorted by id
func (d *Directory) All() []*Room {
	out := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AdministeredBy returns the rooms whose admin record points at connID.
// A connection that left its room keeps the admin record, so this can
// be more than one room.
func (d *Directory) AdministeredBy(connID string) []*Room {
	var out []*Room
	for _, r := range d.All() {
		if r.IsAdminConn(connID) {
			out = append(out, r)
		}
	}
	return out
}

// Registry maps a connection to the room it currently belongs to
type Registry struct {
	byConn map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]string)}
}

func (g *Registry) Bind(connID, roomID string) {
	g.byConn[connID] = roomID
}

func (g *Registry) Unbind(connID string) {
	delete(g.byConn, connID)
}

func (g *Registry) Lookup(connID string) (string, bool) {
	id, ok := g.byConn[connID]
	return id, ok
}

func (g *Registry) Len() int {
	return len(g.byConn)
}

// Pending is a join attempt awaiting the admin's decision
type Pending struct {
	RequesterID string
	RoomID      string
	User        User
}

// PendingQueue holds join requests keyed by requester connection id
type PendingQueue struct {
	byConn map[string]Pending
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{byConn: make(map[string]Pending)}
}

// Put records a request, replacing any earlier one from the same connection
func (q *PendingQueue) Put(p Pending) {
	q.byConn[p.RequesterID] = p
}

// Take removes and returns the request. The second Take for the same
// requester reports false.
func (q *PendingQueue) Take(requesterID string) (Pending, bool) {
	p, ok := q.byConn[requesterID]
	if ok {
		delete(q.byConn, requesterID)
	}
	return p, ok
}

func (q *PendingQueue) Peek(requesterID string) (Pending, bool) {
	p, ok := q.byConn[requesterID]
	return p, ok
}

// DropRoom removes every request targeting roomID and returns them
func (q *PendingQueue) DropRoom(roomID string) []Pending {
	var dropped []Pending
	for id, p := range q.byConn {
		if p.RoomID == roomID {
			dropped = append(dropped, p)
			delete(q.byConn, id)
		}
	}
	return dropped
}

func (q *PendingQueue) CountFor(roomID string) int {
	n := 0
	for _, p := range q.byConn {
		if p.RoomID == roomID {
			n++
		}
	}
	return n
}

func (q *PendingQueue) Len() int {
	return len(q.byConn)
}

type cursorKey struct {
	roomID string
	uid    string
}

// CursorIndex tracks which (room, uid) cursor entries each connection
// reported, so disconnect cleanup does not scan every room.
type CursorIndex struct {
	byConn map[string]map[cursorKey]struct{}
}

func NewCursorIndex() *CursorIndex {
	return &CursorIndex{byConn: make(map[string]map[cursorKey]struct{})}
}

func (x *CursorIndex) Add(connID, roomID, uid string) {
	keys, ok := x.byConn[connID]
	if !ok {
		keys = make(map[cursorKey]struct{})
		x.byConn[connID] = keys
	}
	keys[cursorKey{roomID, uid}] = struct{}{}
}

func (x *CursorIndex) Remove(connID, roomID, uid string) {
	keys, ok := x.byConn[connID]
	if !ok {
		return
	}
	delete(keys, cursorKey{roomID, uid})
	if len(keys) == 0 {
		delete(x.byConn, connID)
	}
}

// Len reports how many connections have cursor entries
func (x *CursorIndex) Len() int { return len(x.byConn) }

// Release forgets connID and calls fn for every entry it reported
func (x *CursorIndex) Release(connID string, fn func(roomID, uid string)) {
	for k := range x.byConn[connID] {
		fn(k.roomID, k.uid)
	}
	delete(x.byConn, connID)
}
