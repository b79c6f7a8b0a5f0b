package service

import (
	"context"
	"time"

	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/internal/tracker"
)

// ChangeEntry is one row of the "what changed" view.
type ChangeEntry struct {
	Entity            string    `json:"entity"`
	LastChangedAt     time.Time `json:"last_changed_at"`
	UpdatedSecondsAgo int64     `json:"updated_seconds_ago"`
	Summary           string    `json:"summary"`
	Diff              string    `json:"diff"`
}

// EntityView is an entity with its activity newest first.
type EntityView struct {
	*models.EntityState
	Activity []models.ActivityEvent `json:"activity"`
}

// Dashboard answers read queries from the tracker and the store.
type Dashboard struct {
	tracker *tracker.Tracker
	store   state.Store
	now     func() time.Time
}

func NewDashboard(t *tracker.Tracker, store state.Store) *Dashboard {
	return &Dashboard{tracker: t, store: store, now: time.Now}
}

// Changes lists tracked entities, most recently changed first.
func (d *Dashboard) Changes() []ChangeEntry {
	now := d.now()
	keys := d.tracker.RankedEntities()
	out := make([]ChangeEntry, 0, len(keys))
	for _, key := range keys {
		rec, ok := d.tracker.Record(key)
		if !ok {
			continue
		}
		age, _ := d.tracker.Since(key, now)
		entry := ChangeEntry{
			Entity:            key,
			LastChangedAt:     rec.LastChangedAt,
			UpdatedSecondsAgo: int64(age / time.Second),
			Diff:              rec.Diff.String(),
		}
		if rec.LastSnapshot.State != nil {
			entry.Summary = rec.LastSnapshot.State.Summary.Text
		}
		out = append(out, entry)
	}
	return out
}

// Change returns the poll record of one entity.
func (d *Dashboard) Change(ref models.EntityRef) (models.PollRecord, bool) {
	return d.tracker.Record(ref.Key())
}

// Entity reads the current state of ref.
func (d *Dashboard) Entity(ctx context.Context, ref models.EntityRef) (*EntityView, error) {
	st, err := d.store.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &EntityView{EntityState: st, Activity: models.SortActivityDesc(st.Activity)}, nil
}

// List returns entity ids of kind.
func (d *Dashboard) List(ctx context.Context, kind models.EntityKind) ([]string, error) {
	return d.store.ListEntities(ctx, kind)
}
