package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var errUpstream = errors.New("upstream down")

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New(2, 1, 10*time.Second).WithClock(clock.Now)
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, Closed, b.State())
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New(1, 2, 10*time.Second).WithClock(clock.Now)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, Open, b.State())

	clock.Advance(11 * time.Second)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New(1, 1, time.Second).WithClock(clock.Now)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	clock.Advance(2 * time.Second)
	require.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, Open, b.State())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b := New(1, 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())
}
