package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"Trendline/backend/go/internal/models"
)

// MemoryStore keeps state in process memory. Reads return deep copies.
type MemoryStore struct {
	init  Initializer
	locks *KeyedMutex

	mu       sync.RWMutex
	entities map[string]*models.EntityState
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryInitializer sets the starting state for new entities.
func WithMemoryInitializer(init Initializer) MemoryOption {
	return func(s *MemoryStore) { s.init = init }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		init:     DefaultInitializer,
		locks:    NewKeyedMutex(),
		entities: make(map[string]*models.EntityState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Read(_ context.Context, ref models.EntityRef) (*models.EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.entities[ref.Key()]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", ref, ErrNotFound)
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, ref models.EntityRef, fn Mutator) (*models.EntityState, error) {
	unlock, err := s.locks.Lock(ctx, ref.Key())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w: %w", ref, ErrLockTimeout, err)
	}
	defer unlock()

	s.mu.RLock()
	current, ok := s.entities[ref.Key()]
	s.mu.RUnlock()
	if !ok {
		current = s.init(ref)
	}

	next, changed, err := apply(ref, current, fn)
	if err != nil {
		return nil, err
	}
	if !changed {
		return next.Clone(), nil
	}

	s.mu.Lock()
	s.entities[ref.Key()] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) ListEntities(_ context.Context, kind models.EntityKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for _, st := range s.entities {
		if st.Ref.Kind == kind {
			ids = append(ids, st.Ref.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
