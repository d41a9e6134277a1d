// Package store persists sessions between turns.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nathoo/rivecore/config"
	"github.com/nathoo/rivecore/types"
)

// ErrNotFound is returned by Load when no session is stored for a user.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	// Load retrieves a user's session. Returns ErrNotFound if absent.
	Load(ctx context.Context, userID string) (*types.Session, error)
	// Save stores a session, overwriting any previous one.
	Save(ctx context.Context, s *types.Session) error
	// Delete removes a user's session.
	Delete(ctx context.Context, userID string) error
	// Users lists the stored user ids, sorted.
	Users(ctx context.Context) ([]string, error)
	// Close releases resources.
	Close() error
}

// Open creates the store selected by the config.
func Open(cfg config.Store) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "bolt":
		return NewBolt(cfg.Path)
	case "sqlite":
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
