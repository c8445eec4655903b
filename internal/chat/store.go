// Package chat persists per-room chat history behind a small list interface.
package chat

import (
	"context"
	"errors"

	"github.com/manpreetbhatti/collabrooms/internal/room"
)

// Message is one chat line. Timestamp is unix milliseconds.
type Message struct {
	User      room.User `json:"user"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
}

// Store is an append-only per-room message log.
type Store interface {
	Append(ctx context.Context, roomID string, msg Message) error
	ReadAll(ctx context.Context, roomID string) ([]Message, error)
	Clear(ctx context.Context, roomID string) error
	Close() error
}

// Maintainer is implemented by stores that support retention sweeps.
type Maintainer interface {
	// Rooms lists room ids that have stored history
	Rooms(ctx context.Context) ([]string, error)
	// Trim keeps only the newest keep messages of a room
	Trim(ctx context.Context, roomID string, keep int) error
}

// Counter is implemented by stores that can report their total size.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

var ErrUnknownBackend = errors.New("unknown chat backend")

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)
