package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-agent/backend/internal/logger"
	"github.com/zhouzirui/travel-agent/backend/internal/model/travel"
)

// MemoryStore keeps sessions in process memory and expires them after an idle TTL.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]travel.Session
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewMemoryStore bootstraps the in-memory store. A non-positive ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]travel.Session),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("session"),
	}
}

// Get retrieves a live session by identifier.
func (s *MemoryStore) Get(_ context.Context, id string) (travel.Session, error) {
	if id == "" {
		return travel.Session{}, ErrSessionIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || s.expired(session, s.now()) {
		return travel.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// GetOrCreate returns the session for id, creating an idle one on first access.
func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (travel.Session, error) {
	if id == "" {
		return travel.Session{}, ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if session, ok := s.sessions[id]; ok && !s.expired(session, now) {
		return session, nil
	}

	session := travel.Session{
		ID:        id,
		Status:    travel.StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[id] = session
	return session, nil
}

// Save stores the session and refreshes its idle timer.
func (s *MemoryStore) Save(_ context.Context, session travel.Session) error {
	if session.ID == "" {
		return ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	s.sessions[session.ID] = session
	return nil
}

// Delete forgets a session. Deleting an unknown id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Sweep drops every session idle since before now-ttl and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
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
				s.log.Debug().Int("removed", removed).Msg("expired sessions swept")
			}
		}
	}
}

func (s *MemoryStore) expired(session travel.Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(session.UpdatedAt) > s.ttl
}
