package chat

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps history in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]Message)}
}

func (s *MemoryStore) Append(_ context.Context, roomID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = append(s.rooms[roomID], msg)
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context, roomID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[roomID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) Rooms(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Trim(_ context.Context, roomID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.rooms[roomID]
	if keep < 0 || len(msgs) <= keep {
		return nil
	}
	if keep == 0 {
		delete(s.rooms, roomID)
		return nil
	}
	trimmed := make([]Message, keep)
	copy(trimmed, msgs[len(msgs)-keep:])
	s.rooms[roomID] = trimmed
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, msgs := range s.rooms {
		n += len(msgs)
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
