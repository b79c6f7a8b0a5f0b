package entity

import (
	"context"
	"fmt"
	"slices"

	"Trendline/backend/go/internal/ledger"
	"Trendline/backend/go/internal/merger"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/pkg/logger"
)

// Op is one of the operations every entity kind supports.
type Op string

const (
	OpInit  Op = "init"
	OpRead  Op = "read"
	OpMerge Op = "merge"
)

// Request is the input of Dispatch. Params is used by OpInit. OpMerge uses Activity or
// Recommendation when set, Evidence otherwise.
type Request struct {
	Op             Op
	Ref            models.EntityRef
	Params         map[string]string
	Evidence       []models.EvidenceItem
	Activity       *models.ActivityEvent
	Recommendation *models.RecommendationRecord
}

// MaxRememberedItems caps the items kept per recommendation query.
const MaxRememberedItems = 10

// Response carries the entity state after the operation.
type Response struct {
	State   *models.EntityState
	Created bool
}

// Service runs operations against the store.
type Service struct {
	registry *Registry
	store    state.Store
	ledger   *ledger.Ledger
	merger   *merger.Merger
	logger   *logger.Logger
}

func NewService(reg *Registry, store state.Store, m *merger.Merger, log *logger.Logger) *Service {
	return &Service{
		registry: reg,
		store:    store,
		ledger:   ledger.New(store),
		merger:   m,
		logger:   log.WithField("component", "entity"),
	}
}

// Registry exposes the kinds the service dispatches on.
func (s *Service) Registry() *Registry { return s.registry }

// Dispatch runs req.Op on req.Ref.
func (s *Service) Dispatch(ctx context.Context, req Request) (*Response, error) {
	def, ok := s.registry.Lookup(req.Ref.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Ref.Kind)
	}
	if req.Ref.ID == "" {
		return nil, fmt.Errorf("%s: empty entity id", req.Op)
	}

	switch req.Op {
	case OpInit:
		return s.init(ctx, def, req)
	case OpRead:
		st, err := s.store.Read(ctx, req.Ref)
		if err != nil {
			return nil, err
		}
		return &Response{State: st}, nil
	case OpMerge:
		return s.merge(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}
}

// init creates the entity with params. An existing entity is returned unchanged.
func (s *Service) init(ctx context.Context, def Definition, req Request) (*Response, error) {
	seed, err := def.Init(req.Ref, req.Params)
	if err != nil {
		return nil, err
	}
	created := false
	st, err := s.store.Update(ctx, req.Ref, func(cur *models.EntityState) (*models.EntityState, error) {
		created = false
		if cur.Version > 0 {
			return nil, state.ErrNoChange
		}
		created = true
		return seed.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.WithPayload(map[string]interface{}{
			"entity":  req.Ref.Key(),
			"profile": st.Profile,
		}).Info("entity created")
	}
	return &Response{State: st, Created: created}, nil
}

func (s *Service) merge(ctx context.Context, req Request) (*Response, error) {
	if req.Recommendation != nil {
		return s.remember(ctx, req.Ref, *req.Recommendation)
	}
	if req.Activity != nil {
		st, err := s.merger.MergeActivity(ctx, req.Ref, *req.Activity)
		if err != nil {
			return nil, err
		}
		return &Response{State: st}, nil
	}

	fresh, err := s.ledger.FilterNew(ctx, req.Ref, req.Evidence)
	if err != nil {
		return nil, err
	}
	if _, err := s.merger.Merge(ctx, req.Ref, fresh); err != nil {
		return nil, err
	}
	st, err := s.store.Read(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	return &Response{State: st}, nil
}

// remember adds rec's items to the ones already suggested for the same query.
func (s *Service) remember(ctx context.Context, ref models.EntityRef, rec models.RecommendationRecord) (*Response, error) {
	key := models.RecommendationKey(rec.Query)
	if key == "" {
		return nil, fmt.Errorf("%w: empty recommendation query", ErrBadParams)
	}
	st, err := s.store.Update(ctx, ref, func(cur *models.EntityState) (*models.EntityState, error) {
		prev := cur.Recommendations[key]
		next := models.RememberItems(prev, rec.Items, MaxRememberedItems)
		if slices.Equal(prev, next) {
			return nil, state.ErrNoChange
		}
		if cur.Recommendations == nil {
			cur.Recommendations = make(map[string][]string)
		}
		cur.Recommendations[key] = next
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{State: st}, nil
}
