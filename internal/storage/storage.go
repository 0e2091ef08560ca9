// Package storage defines how game states and ending unlocks are persisted.
// Callers hand the store a whole state; saves replace the stored record.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tatianab/castle-adventure/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// StateStore persists game states. At most one incomplete state exists per
// owner.
type StateStore interface {
	// ActiveState returns the owner's incomplete state or ErrNotFound.
	ActiveState(ctx context.Context, owner models.Identity) (*models.GameState, error)
	// LastCompleted returns the owner's most recently completed state or
	// ErrNotFound.
	LastCompleted(ctx context.Context, owner models.Identity) (*models.GameState, error)
	// CreateState inserts a new state. It fails with ErrAlreadyExists when the
	// owner already has an active state.
	CreateState(ctx context.Context, state *models.GameState) error
	// SaveState replaces a stored state.
	SaveState(ctx context.Context, state *models.GameState) error
	DeleteState(ctx context.Context, id string) error
	// ReplaceState deletes the active state oldID and inserts next in one
	// step. On failure the old state is still stored.
	ReplaceState(ctx context.Context, oldID string, next *models.GameState) error
}

// UnlockLedger records which endings an owner has reached.
type UnlockLedger interface {
	// RecordUnlock inserts the unlock once; it reports whether a new record
	// was created.
	RecordUnlock(ctx context.Context, owner models.Identity, endingID string, at time.Time) (bool, error)
	UnlockedEndings(ctx context.Context, owner models.Identity) ([]models.EndingUnlock, error)
}

// Store is a backend providing both.
type Store interface {
	StateStore
	UnlockLedger
	Close() error
}
