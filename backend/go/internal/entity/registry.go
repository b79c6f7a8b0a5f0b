// Package entity declares the entity kinds and dispatches the closed set of operations on them.
package entity

import (
	"errors"
	"fmt"
	"sync"

	"Trendline/backend/go/internal/merger"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
)

var (
	ErrUnknownKind = errors.New("unknown entity kind")
	ErrUnknownOp   = errors.New("unknown operation")
	ErrBadParams   = errors.New("invalid init params")
)

// Definition describes one entity kind.
type Definition struct {
	Kind models.EntityKind
	// Init builds the initial state. params may be nil.
	Init            func(ref models.EntityRef, params map[string]string) (*models.EntityState, error)
	Prompt          merger.Prompt
	RollupThreshold int
	// ActivityPrompt sends activity rollups to a separate activity summary.
	ActivityPrompt *merger.Prompt
	MaxSentences   int
}

// Registry maps kinds to definitions.
type Registry struct {
	mu    sync.RWMutex
	defs  map[models.EntityKind]Definition
	order []models.EntityKind
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[models.EntityKind]Definition)}
}

// Register adds def. Registering a kind twice is an error.
func (r *Registry) Register(def Definition) error {
	if def.Kind == "" {
		return fmt.Errorf("register: empty kind")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.Kind]; dup {
		return fmt.Errorf("register %s: already registered", def.Kind)
	}
	if def.Init == nil {
		def.Init = func(ref models.EntityRef, _ map[string]string) (*models.EntityState, error) {
			return models.NewEntityState(ref), nil
		}
	}
	r.defs[def.Kind] = def
	r.order = append(r.order, def.Kind)
	return nil
}

func (r *Registry) Lookup(kind models.EntityKind) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// Kinds returns registered kinds in registration order.
func (r *Registry) Kinds() []models.EntityKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.EntityKind(nil), r.order...)
}

// Initializer seeds entities created implicitly by a store update.
func (r *Registry) Initializer() state.Initializer {
	return func(ref models.EntityRef) *models.EntityState {
		def, ok := r.Lookup(ref.Kind)
		if !ok {
			return models.NewEntityState(ref)
		}
		st, err := def.Init(ref, nil)
		if err != nil || st == nil {
			return models.NewEntityState(ref)
		}
		return st
	}
}

// Policies returns the merge policy of every registered kind.
func (r *Registry) Policies() map[models.EntityKind]merger.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.EntityKind]merger.Policy, len(r.defs))
	for kind, def := range r.defs {
		out[kind] = merger.Policy{
			Prompt:          def.Prompt,
			RollupThreshold: def.RollupThreshold,
			ActivityPrompt:  def.ActivityPrompt,
			MaxSentences:    def.MaxSentences,
		}
	}
	return out
}
