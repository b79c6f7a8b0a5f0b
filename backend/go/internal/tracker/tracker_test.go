package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setSummary(t *testing.T, store state.Store, ref models.EntityRef, text string) {
	t.Helper()
	_, err := store.Update(context.Background(), ref, func(cur *models.EntityState) (*models.EntityState, error) {
		cur.Summary.Text = text
		return cur, nil
	})
	require.NoError(t, err)
}

func newTracker(store state.Store, clk *fakeClock) *Tracker {
	return New(store, []models.EntityKind{models.KindGlobal, models.KindUser}, logger.Discard(), WithClock(clk.now))
}

var (
	global = models.EntityRef{Kind: models.KindGlobal, ID: "fashion"}
	alice  = models.EntityRef{Kind: models.KindUser, ID: "alice"}
	bob    = models.EntityRef{Kind: models.KindUser, ID: "bob"}
)

func TestLineDiff(t *testing.T) {
	d := LineDiff("A\nB", "A\nC")
	assert.Equal(t, []models.DiffLine{
		{Op: models.DiffEqual, Text: "A"},
		{Op: models.DiffDelete, Text: "B"},
		{Op: models.DiffInsert, Text: "C"},
	}, d.Lines)
	assert.Equal(t, "  A\n- B\n+ C", d.String())
	assert.True(t, d.Changed())
}

func TestLineDiffIdentical(t *testing.T) {
	d := LineDiff("A\nB", "A\nB")
	assert.Empty(t, d.Lines)
	assert.False(t, d.Changed())
	assert.Equal(t, "", d.String())
}

func TestLineDiffAppendedLine(t *testing.T) {
	d := LineDiff("A\nB", "A\nB\nC")
	assert.Equal(t, []models.DiffLine{
		{Op: models.DiffEqual, Text: "A"},
		{Op: models.DiffEqual, Text: "B"},
		{Op: models.DiffInsert, Text: "C"},
	}, d.Lines)
}

func TestLineDiffFromEmpty(t *testing.T) {
	d := LineDiff("", "hello")
	assert.Equal(t, []models.DiffLine{{Op: models.DiffInsert, Text: "hello"}}, d.Lines)
	assert.Equal(t, "+ hello", d.String())
}

func TestLineDiffToEmpty(t *testing.T) {
	d := LineDiff("hello\nworld", "")
	assert.Equal(t, []models.DiffLine{
		{Op: models.DiffDelete, Text: "hello"},
		{Op: models.DiffDelete, Text: "world"},
	}, d.Lines)
}

func TestLineDiffTrailingNewlineOnly(t *testing.T) {
	d := LineDiff("A", "A\n")
	assert.False(t, d.Changed())
}

func TestFirstPollIsChanged(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, global, "first")
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)

	changed, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{global.Key()}, changed)

	rec, ok := tr.Record(global.Key())
	require.True(t, ok)
	assert.True(t, rec.Diff.NoBaseline)
	assert.Equal(t, "No previous summary stored.", rec.Diff.String())
	assert.Equal(t, clk.t, rec.LastChangedAt)
	assert.Equal(t, "first", rec.LastSnapshot.State.Summary.Text)
}

func TestUnchangedPollKeepsChangedAt(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, global, "A")
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)

	_, err := tr.Tick(ctx)
	require.NoError(t, err)
	clk.advance(5 * time.Second)
	changed, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)

	rec, _ := tr.Record(global.Key())
	assert.Equal(t, time.Unix(1000, 0), rec.LastChangedAt)
	assert.Equal(t, time.Unix(1005, 0), rec.LastPollAt)
	assert.True(t, rec.Diff.NoBaseline)
}

func TestChangedPollRecordsDiff(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, global, "A\nB")
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)
	_, err := tr.Tick(ctx)
	require.NoError(t, err)

	setSummary(t, store, global, "A\nC")
	clk.advance(3 * time.Second)
	changed, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{global.Key()}, changed)

	d, ok := tr.Diff(global.Key())
	require.True(t, ok)
	assert.False(t, d.NoBaseline)
	assert.Equal(t, "  A\n- B\n+ C", d.String())

	rec, _ := tr.Record(global.Key())
	assert.Equal(t, time.Unix(1003, 0), rec.LastChangedAt)
	assert.Equal(t, "A\nC", rec.LastSnapshot.State.Summary.Text)
}

func TestFirstSummaryAfterEmptyBaseline(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, alice, "")
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)
	_, err := tr.Tick(ctx)
	require.NoError(t, err)

	setSummary(t, store, alice, "Prefers linen.")
	clk.advance(time.Second)
	_, err = tr.Tick(ctx)
	require.NoError(t, err)

	d, ok := tr.Diff(alice.Key())
	require.True(t, ok)
	assert.Equal(t, "+ Prefers linen.", d.String())
}

func TestActivityOnlyChangeHasEmptyDiff(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, global, "same")
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)
	_, err := tr.Tick(ctx)
	require.NoError(t, err)

	_, err = store.Update(ctx, global, func(cur *models.EntityState) (*models.EntityState, error) {
		cur.Activity = append(cur.Activity, models.ActivityEvent{ID: "e1", Description: "liked boots"})
		return cur, nil
	})
	require.NoError(t, err)
	clk.advance(time.Second)

	changed, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{global.Key()}, changed)
	d, _ := tr.Diff(global.Key())
	assert.Empty(t, d.Lines)
}

func TestRankedEntities(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)

	setSummary(t, store, global, "g")
	setSummary(t, store, alice, "a")
	_, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"global/fashion", "user/alice"}, tr.RankedEntities())

	clk.advance(time.Second)
	setSummary(t, store, bob, "b")
	_, err = tr.Tick(ctx)
	require.NoError(t, err)

	clk.advance(time.Second)
	setSummary(t, store, alice, "a2")
	_, err = tr.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"user/alice", "user/bob", "global/fashion"}, tr.RankedEntities())

	age, ok := tr.Since(bob.Key(), clk.t.Add(10*time.Second))
	require.True(t, ok)
	assert.Equal(t, 11*time.Second, age)
	_, ok = tr.Since("user/nobody", clk.t)
	assert.False(t, ok)
}

func TestChangedAtIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, global, "one")
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTracker(store, clk)
	_, err := tr.Tick(ctx)
	require.NoError(t, err)

	clk.t = time.Unix(900, 0)
	setSummary(t, store, global, "two")
	changed, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, changed, 1)

	rec, _ := tr.Record(global.Key())
	assert.Equal(t, time.Unix(1000, 0), rec.LastChangedAt)
}

func TestRecordIsACopy(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, global, "A")
	tr := newTracker(store, &fakeClock{t: time.Unix(1000, 0)})
	_, err := tr.Tick(ctx)
	require.NoError(t, err)

	rec, _ := tr.Record(global.Key())
	rec.LastSnapshot.State.Summary.Text = "mutated"
	again, _ := tr.Record(global.Key())
	assert.Equal(t, "A", again.LastSnapshot.State.Summary.Text)
}

type flakySource struct {
	state.Store
	listErr error
	readErr map[string]error
}

func (f *flakySource) ListEntities(ctx context.Context, kind models.EntityKind) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListEntities(ctx, kind)
}

func (f *flakySource) Read(ctx context.Context, ref models.EntityRef) (*models.EntityState, error) {
	if err := f.readErr[ref.Key()]; err != nil {
		return nil, err
	}
	return f.Store.Read(ctx, ref)
}

func TestReadErrorSkipsEntity(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	setSummary(t, store, alice, "a")
	setSummary(t, store, bob, "b")
	src := &flakySource{Store: store, readErr: map[string]error{alice.Key(): errors.New("timeout")}}
	tr := New(src, []models.EntityKind{models.KindUser}, logger.Discard())

	changed, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.Key()}, changed)
	_, ok := tr.Record(alice.Key())
	assert.False(t, ok)
}

func TestListErrorFailsTick(t *testing.T) {
	src := &flakySource{Store: state.NewMemoryStore(), listErr: errors.New("redis down")}
	tr := New(src, []models.EntityKind{models.KindUser}, logger.Discard())

	_, err := tr.Tick(context.Background())
	assert.ErrorContains(t, err, "redis down")
}
