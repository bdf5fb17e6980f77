package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-agent/backend/internal/logger"
)

// CheckPointStore persists paused graph runs keyed by thread id.
type CheckPointStore interface {
	compose.CheckPointStore
	// Delete drops the checkpoint once its run has finished or been replaced.
	Delete(ctx context.Context, checkPointID string) error
}

// MemoryCheckPointStore keeps checkpoints in process memory and expires them
// after the same idle TTL as the sessions that own them.
type MemoryCheckPointStore struct {
	mu     sync.RWMutex
	points map[string]memoryCheckPoint
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

type memoryCheckPoint struct {
	data      []byte
	updatedAt time.Time
}

// NewMemoryCheckPointStore returns an empty store. A non-positive ttl disables expiry.
func NewMemoryCheckPointStore(ttl time.Duration) *MemoryCheckPointStore {
	return &MemoryCheckPointStore{
		points: make(map[string]memoryCheckPoint),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Component("checkpoint"),
	}
}

func (s *MemoryCheckPointStore) Get(_ context.Context, checkPointID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	point, ok := s.points[checkPointID]
	if !ok || s.expired(point, s.now()) {
		return nil, false, nil
	}
	return append([]byte(nil), point.data...), true, nil
}

func (s *MemoryCheckPointStore) Set(_ context.Context, checkPointID string, checkPoint []byte) error {
	s.mu.Lock()
	s.points[checkPointID] = memoryCheckPoint{
		data:      append([]byte(nil), checkPoint...),
		updatedAt: s.now(),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryCheckPointStore) Delete(_ context.Context, checkPointID string) error {
	s.mu.Lock()
	delete(s.points, checkPointID)
	s.mu.Unlock()
	return nil
}

// Len reports how many checkpoints are held, expired or not.
func (s *MemoryCheckPointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Sweep drops every checkpoint written before now-ttl and returns how many were removed.
func (s *MemoryCheckPointStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, point := range s.points {
		if s.expired(point, now) {
			delete(s.points, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryCheckPointStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				s.log.Debug().Int("removed", removed).Msg("expired checkpoints swept")
			}
		}
	}
}

func (s *MemoryCheckPointStore) expired(point memoryCheckPoint, now time.Time) bool {
	return s.ttl > 0 && now.Sub(point.updatedAt) > s.ttl
}

// RedisCheckPointStore keeps checkpoints in Redis so paused runs survive a
// restart and can be resumed by any replica.
type RedisCheckPointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCheckPointStore wraps client. Checkpoints expire after ttl; zero keeps them.
func NewRedisCheckPointStore(client *redis.Client, prefix string, ttl time.Duration) *RedisCheckPointStore {
	if prefix == "" {
		prefix = "travel-agent"
	}
	return &RedisCheckPointStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisCheckPointStore) key(id string) string {
	return s.prefix + ":checkpoint:" + id
}

func (s *RedisCheckPointStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(checkPointID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get checkpoint: %w", err)
	}
	return data, true, nil
}

func (s *RedisCheckPointStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	if err := s.client.Set(ctx, s.key(checkPointID), checkPoint, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	return nil
}

func (s *RedisCheckPointStore) Delete(ctx context.Context, checkPointID string) error {
	if err := s.client.Del(ctx, s.key(checkPointID)).Err(); err != nil {
		return fmt.Errorf("redis delete checkpoint: %w", err)
	}
	return nil
}
