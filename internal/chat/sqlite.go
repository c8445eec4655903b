package chat

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps chat history in a local sqlite file
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		user_uid TEXT NOT NULL,
		user_name TEXT NOT NULL,
		text TEXT NOT NULL,
		sent_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_room_id ON chat_messages(room_id, id);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, roomID string, msg Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_messages (room_id, user_uid, user_name, text, sent_at) VALUES (?, ?, ?, ?, ?)",
		roomID, msg.User.UID, msg.User.Name, msg.Text, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, roomID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_uid, user_name, text, sent_at FROM chat_messages WHERE room_id = ? ORDER BY id ASC",
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.User.UID, &m.User.Name, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE room_id = ?", roomID); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Rooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT room_id FROM chat_messages ORDER BY room_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Trim deletes old messages, keeping only the most recent ones
func (s *SQLiteStore) Trim(ctx context.Context, roomID string, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE room_id = ? AND id NOT IN (
			SELECT id FROM chat_messages
			WHERE room_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, roomID, roomID, keep)
	return err
}

// Count returns the number of stored messages across all rooms
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages").Scan(&count)
	return count, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
