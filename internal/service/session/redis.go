package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/travel-agent/backend/internal/model/travel"
)

// RedisStore keeps sessions as JSON values in Redis, expiring them with the key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. The prefix namespaces the keys.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "travel-agent"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":session:" + id
}

// Get loads a session by identifier.
func (s *RedisStore) Get(ctx context.Context, id string) (travel.Session, error) {
	if id == "" {
		return travel.Session{}, ErrSessionIDRequired
	}

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return travel.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return travel.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var session travel.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return travel.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, nil
}

// GetOrCreate returns the stored session or provisions a new idle one.
func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (travel.Session, error) {
	session, err := s.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return travel.Session{}, err
	}

	now := time.Now().UTC()
	session = travel.Session{
		ID:        id,
		Status:    travel.StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, session); err != nil {
		return travel.Session{}, err
	}
	return session, nil
}

// Save writes the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, session travel.Session) error {
	if session.ID == "" {
		return ErrSessionIDRequired
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := s.client.Set(ctx, s.key(session.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete removes the session key.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
