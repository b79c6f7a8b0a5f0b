// Package state defines the shared per-entity state store and its backends.
//
// Every backend guarantees that at most one mutator runs at a time for a given entity,
// that a mutator's result is committed all-or-nothing, and that readers never block on writers.
package state

import (
	"context"
	"errors"

	"Trendline/backend/go/internal/models"
)

var (
	// ErrNotFound is returned by Read for an entity that was never written.
	ErrNotFound = errors.New("entity not found")
	// ErrNoChange is returned by a Mutator to abort the update without writing.
	ErrNoChange = errors.New("no change")
	// ErrLockTimeout is returned when the per-entity lock could not be taken before ctx expired.
	ErrLockTimeout = errors.New("entity lock not acquired")
	// ErrConflict is returned when optimistic retries are exhausted.
	ErrConflict = errors.New("concurrent modification")
)

// Mutator receives a private copy of the current state and returns the state to commit.
// Returning ErrNoChange leaves the stored value untouched; any other error aborts the update.
type Mutator func(current *models.EntityState) (*models.EntityState, error)

// Initializer builds the starting state for an entity that does not exist yet.
type Initializer func(ref models.EntityRef) *models.EntityState

// Store is the shared state store.
type Store interface {
	// Read returns the latest committed state. It may be older than an in-flight Update.
	Read(ctx context.Context, ref models.EntityRef) (*models.EntityState, error)
	// Update applies fn under the entity's serialization boundary and persists the result.
	// A missing entity starts from the store's Initializer and is registered for ListEntities.
	Update(ctx context.Context, ref models.EntityRef, fn Mutator) (*models.EntityState, error)
	// ListEntities returns the ids of all known entities of a kind, sorted.
	ListEntities(ctx context.Context, kind models.EntityKind) ([]string, error)
}

// DefaultInitializer returns an empty state.
func DefaultInitializer(ref models.EntityRef) *models.EntityState {
	return models.NewEntityState(ref)
}

// apply runs fn against a copy of current and stamps the result.
// It returns (next, true, nil) when there is something to write, (current, false, nil) on ErrNoChange.
func apply(ref models.EntityRef, current *models.EntityState, fn Mutator) (*models.EntityState, bool, error) {
	next, err := fn(current.Clone())
	if errors.Is(err, ErrNoChange) {
		return current, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		return current, false, nil
	}
	next = next.Clone()
	next.Ref = ref
	next.Version = current.Version + 1
	if next.Summary.ContributingIDs == nil {
		next.Summary.ContributingIDs = []string{}
	}
	return next, true, nil
}

// Reader is the read-only half of Store.
type Reader interface {
	Read(ctx context.Context, ref models.EntityRef) (*models.EntityState, error)
}
