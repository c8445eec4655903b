package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "room:"
	keySuffix = ":messages"
)

// RedisStore keeps each room's history as a JSON list under room:{id}:messages
type RedisStore struct {
	client *redis.Client
}

// Connects to redis and verifies connectivity
func NewRedisStore(ctx context.Context, opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func messagesKey(roomID string) string {
	return keyPrefix + roomID + keySuffix
}

func (s *RedisStore) Append(ctx context.Context, roomID string, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	if err := s.client.RPush(ctx, messagesKey(roomID), raw).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context, roomID string) ([]Message, error) {
	raws, err := s.client.LRange(ctx, messagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("unmarshal chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Clear(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, messagesKey(roomID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Rooms(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*"+keySuffix, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(k, keyPrefix), keySuffix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

func (s *RedisStore) Trim(ctx context.Context, roomID string, keep int) error {
	if keep < 0 {
		return nil
	}
	if keep == 0 {
		return s.Clear(ctx, roomID)
	}
	if err := s.client.LTrim(ctx, messagesKey(roomID), int64(-keep), -1).Err(); err != nil {
		return fmt.Errorf("redis ltrim: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
