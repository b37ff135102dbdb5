// Package storage provides the envelope store backing the catalogue: a
// generic get/list/put/delete keyed by resource kind and id, with filtered
// listing by status and published state.
package storage

import (
	"context"
	"errors"

	"github.com/piwi3910/catweave/internal/models"
)

// Common sentinel errors for storage operations.
var (
	// ErrNotFound is returned when an envelope does not exist. Callers
	// treat it as a signal, not a failure: the reference validator falls
	// through to the next candidate kind and the sweeps record it as
	// expected missing state.
	ErrNotFound = errors.New("envelope not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate envelope.
	ErrAlreadyExists = errors.New("envelope already exists")

	// ErrInvalidID is returned when an envelope ID is empty or invalid.
	ErrInvalidID = errors.New("invalid envelope ID")

	// ErrStorageUnavailable is returned when the storage backend is unavailable.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
)

// Store defines the interface for envelope storage operations, keyed by
// resource kind and id. Implementations must be safe for concurrent use.
// No store-level locking protects concurrent transitions on the same
// envelope; last write wins.
//
// Example usage:
//
//	store := NewRedisStore(cfg)
//	defer store.Close()
//
//	env, err := store.Get(ctx, models.KindService, "svc-123")
//	if errors.Is(err, storage.ErrNotFound) {
//	    // expected for unresolved references
//	}
type Store interface {
	// Create stores a new envelope.
	// Returns ErrAlreadyExists if an envelope with the same kind and ID exists.
	// Returns ErrInvalidID if the envelope ID is empty.
	Create(ctx context.Context, env *models.Envelope) error

	// Get retrieves an envelope by kind and ID.
	// Returns ErrNotFound if the envelope does not exist.
	Get(ctx context.Context, kind models.Kind, id string) (*models.Envelope, error)

	// Update replaces an existing envelope and maintains the status and
	// published indexes.
	// Returns ErrNotFound if the envelope does not exist.
	Update(ctx context.Context, env *models.Envelope) error

	// Delete removes an envelope by kind and ID.
	// Returns ErrNotFound if the envelope does not exist.
	Delete(ctx context.Context, kind models.Kind, id string) error

	// List retrieves all envelopes of a kind.
	// Returns an empty slice if none exist.
	List(ctx context.Context, kind models.Kind) ([]*models.Envelope, error)

	// ListByStatus retrieves envelopes of a kind filtered by status.
	// Returns an empty slice if none match.
	ListByStatus(ctx context.Context, kind models.Kind, status string) ([]*models.Envelope, error)

	// ListPublished retrieves the published public mirrors of a kind.
	// Returns an empty slice if none exist.
	ListPublished(ctx context.Context, kind models.Kind) ([]*models.Envelope, error)

	// FindPublished looks up a published public instance of a canonical
	// identifier in any catalogue (mirrors are stored under
	// "<catalogueID>.<canonicalID>"). A reference value that is already a
	// public identifier is matched directly.
	// Returns ErrNotFound if no published instance exists.
	FindPublished(ctx context.Context, kind models.Kind, canonicalID string) (*models.Envelope, error)

	// Close closes the storage connection and releases resources.
	Close() error

	// Ping checks if the storage backend is available.
	// Returns ErrStorageUnavailable if the backend cannot be reached.
	Ping(ctx context.Context) error
}
