package session

import (
	"context"
	"errors"

	"github.com/zhouzirui/travel-agent/backend/internal/model/travel"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
)

// Store persists browser sessions keyed by their opaque cookie value.
type Store interface {
	// Get returns ErrSessionNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (travel.Session, error)
	// GetOrCreate returns the existing session or provisions an idle one.
	GetOrCreate(ctx context.Context, id string) (travel.Session, error)
	Save(ctx context.Context, session travel.Session) error
	Delete(ctx context.Context, id string) error
}
