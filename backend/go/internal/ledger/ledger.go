// Package ledger filters evidence that has already been merged into an entity's summary.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
)

// Filter returns the items whose id is not in contributed, keeping their order.
// Duplicate ids inside items collapse to the first occurrence. Items without an id are dropped.
func Filter(contributed []string, items []models.EvidenceItem) []models.EvidenceItem {
	seen := make(map[string]struct{}, len(contributed)+len(items))
	for _, id := range contributed {
		seen[id] = struct{}{}
	}
	out := make([]models.EvidenceItem, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Ledger reads an entity's contributed ids from the store.
type Ledger struct {
	store state.Reader
}

// New creates a Ledger.
func New(store state.Reader) *Ledger {
	return &Ledger{store: store}
}

// FilterNew returns the subset of items not yet contributed to ref.
// An entity that does not exist yet has contributed nothing.
func (l *Ledger) FilterNew(ctx context.Context, ref models.EntityRef, items []models.EvidenceItem) ([]models.EvidenceItem, error) {
	st, err := l.store.Read(ctx, ref)
	if errors.Is(err, state.ErrNotFound) {
		return Filter(nil, items), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger read %s: %w", ref, err)
	}
	return Filter(st.Summary.ContributingIDs, items), nil
}
