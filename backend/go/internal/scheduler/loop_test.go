package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"Trendline/backend/go/pkg/logger"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type counter struct{ n atomic.Int32 }

func (c *counter) action(err error) Action {
	return func(context.Context) error {
		c.n.Add(1)
		return err
	}
}

func TestStepColdStartRunsBoth(t *testing.T) {
	var fast, slow counter
	now := time.Unix(0, 0)
	l := New(fast.action(nil), slow.action(nil), 3*time.Second, 600*time.Second, time.Second, logger.Discard())
	l.Clock = func() time.Time { return now }

	ranFast, ranSlow := l.Step(context.Background())
	assert.True(t, ranFast)
	assert.True(t, ranSlow)
	assert.EqualValues(t, 1, fast.n.Load())
	assert.EqualValues(t, 1, slow.n.Load())
}

func TestStepIntervals(t *testing.T) {
	var fast, slow counter
	now := time.Unix(0, 0)
	l := New(fast.action(nil), slow.action(nil), 3*time.Second, 10*time.Second, time.Second, logger.Discard())
	l.Clock = func() time.Time { return now }
	ctx := context.Background()

	l.Step(ctx)
	for i := 0; i < 12; i++ {
		now = now.Add(time.Second)
		l.Step(ctx)
	}
	// t=0,3,6,9,12 for fast; t=0,10 for slow
	assert.EqualValues(t, 5, fast.n.Load())
	assert.EqualValues(t, 2, slow.n.Load())
}

func TestStepErrorsDoNotStopLoop(t *testing.T) {
	var fast, slow counter
	now := time.Unix(0, 0)
	l := New(fast.action(errors.New("poll failed")), slow.action(errors.New("search failed")), time.Second, time.Second, time.Second, logger.Discard())
	l.Clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		l.Step(context.Background())
		now = now.Add(time.Second)
	}
	assert.EqualValues(t, 3, fast.n.Load())
	assert.EqualValues(t, 3, slow.n.Load())
}

func TestStepNilActions(t *testing.T) {
	l := New(nil, nil, time.Second, time.Second, time.Second, logger.Discard())
	ranFast, ranSlow := l.Step(context.Background())
	assert.False(t, ranFast)
	assert.False(t, ranSlow)
}

func TestRunStopsOnCancel(t *testing.T) {
	var fast, slow counter
	l := New(fast.action(nil), slow.action(nil), time.Millisecond, time.Hour, 5*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool { return fast.n.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.EqualValues(t, 1, slow.n.Load())
}

func TestRunWithCancelledContext(t *testing.T) {
	var fast counter
	l := New(fast.action(nil), nil, time.Second, time.Second, time.Second, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Zero(t, fast.n.Load())
}
