// Package tracker keeps the last seen snapshot of every entity and reports what changed between polls.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"Trendline/backend/go/internal/metrics"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/pkg/logger"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Source is the part of state.Store the tracker polls.
type Source interface {
	state.Reader
	ListEntities(ctx context.Context, kind models.EntityKind) ([]string, error)
}

// Tracker owns the PollRecord table. It is safe for concurrent use; ticks are serialized.
type Tracker struct {
	src    Source
	kinds  []models.EntityKind
	logger *logger.Logger
	now    func() time.Time

	tickMu  sync.Mutex
	mu      sync.RWMutex
	records map[string]*models.PollRecord
	last    time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker polling the given kinds.
func New(src Source, kinds []models.EntityKind, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		src:     src,
		kinds:   kinds,
		logger:  log.WithField("component", "tracker"),
		now:     time.Now,
		records: make(map[string]*models.PollRecord),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var snapshotEqual = cmp.Options{cmpopts.EquateEmpty()}

// Tick polls every known entity once and returns the keys that changed, first sightings included.
func (t *Tracker) Tick(ctx context.Context) ([]string, error) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	var changed []string
	for _, kind := range t.kinds {
		ids, err := t.src.ListEntities(ctx, kind)
		if err != nil {
			return changed, fmt.Errorf("list %s entities: %w", kind, err)
		}
		for _, id := range ids {
			ref := models.EntityRef{Kind: kind, ID: id}
			st, err := t.src.Read(ctx, ref)
			if err != nil {
				if ctx.Err() != nil {
					return changed, ctx.Err()
				}
				if !errors.Is(err, state.ErrNotFound) {
					t.logger.WithErr("read_error", err).WithField("entity", ref.Key()).Warn("poll read failed, skipping")
				}
				continue
			}
			if t.observe(ref.Key(), st) {
				changed = append(changed, ref.Key())
			}
		}
	}

	if len(changed) > 0 {
		metrics.PollChanges.Add(float64(len(changed)))
		t.logger.WithField("changed", changed).Debug("poll observed changes")
	}
	return changed, nil
}

func (t *Tracker) clock() time.Time {
	now := t.now()
	if now.Before(t.last) {
		now = t.last
	}
	t.last = now
	return now
}

func (t *Tracker) observe(key string, st *models.EntityState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()

	rec, ok := t.records[key]
	if !ok {
		t.records[key] = &models.PollRecord{
			EntityKey:     key,
			LastPollAt:    now,
			LastChangedAt: now,
			LastSnapshot:  models.NewSnapshot(st, now),
			Diff:          models.Diff{NoBaseline: true},
		}
		return true
	}

	rec.LastPollAt = now
	if cmp.Equal(rec.LastSnapshot.State, st, snapshotEqual) {
		return false
	}
	rec.Diff = LineDiff(rec.LastSnapshot.State.Summary.Text, st.Summary.Text)
	rec.LastSnapshot = models.NewSnapshot(st, now)
	rec.LastChangedAt = now
	return true
}

// RankedEntities returns tracked keys, most recently changed first. Ties sort by key.
func (t *Tracker) RankedEntities() []string {
	t.mu.RLock()
	recs := make([]*models.PollRecord, 0, len(t.records))
	for _, r := range t.records {
		recs = append(recs, r)
	}
	t.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastChangedAt.Equal(recs[j].LastChangedAt) {
			return recs[i].LastChangedAt.After(recs[j].LastChangedAt)
		}
		return recs[i].EntityKey < recs[j].EntityKey
	})
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.EntityKey
	}
	return out
}

// Record returns a copy of the poll record for key.
func (t *Tracker) Record(key string) (models.PollRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[key]
	if !ok {
		return models.PollRecord{}, false
	}
	out := *rec
	out.LastSnapshot = models.NewSnapshot(rec.LastSnapshot.State, rec.LastSnapshot.TakenAt)
	out.Diff.Lines = append([]models.DiffLine(nil), rec.Diff.Lines...)
	return out, true
}

// Diff returns the most recent diff recorded for key.
func (t *Tracker) Diff(key string) (models.Diff, bool) {
	rec, ok := t.Record(key)
	return rec.Diff, ok
}

// Since reports how long ago key last changed, as of now.
func (t *Tracker) Since(key string, now time.Time) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[key]
	if !ok {
		return 0, false
	}
	if d := now.Sub(rec.LastChangedAt); d > 0 {
		return d, true
	}
	return 0, true
}
