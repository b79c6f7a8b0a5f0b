// Package scheduler drives the fast poll and slow ingestion actions from one loop.
package scheduler

import (
	"context"
	"time"

	"Trendline/backend/go/pkg/logger"
)

// Action is one periodic unit of work. An error is logged and the loop carries on.
type Action func(ctx context.Context) error

// Loop runs Fast every FastInterval and Slow every SlowInterval. Both run on the first Step.
type Loop struct {
	Fast         Action
	Slow         Action
	FastInterval time.Duration
	SlowInterval time.Duration
	// Sleep is the pause between iterations of Run.
	Sleep time.Duration
	Clock func() time.Time

	logger   *logger.Logger
	started  bool
	lastFast time.Time
	lastSlow time.Time
}

// New creates a Loop with the given intervals.
func New(fast, slow Action, fastInterval, slowInterval, sleep time.Duration, log *logger.Logger) *Loop {
	return &Loop{
		Fast:         fast,
		Slow:         slow,
		FastInterval: fastInterval,
		SlowInterval: slowInterval,
		Sleep:        sleep,
		Clock:        time.Now,
		logger:       log.WithField("component", "scheduler"),
	}
}

func (l *Loop) now() time.Time {
	if l.Clock == nil {
		return time.Now()
	}
	return l.Clock()
}

// Step runs one iteration and reports which actions ran. It is not safe to call concurrently.
func (l *Loop) Step(ctx context.Context) (ranFast, ranSlow bool) {
	now := l.now()
	first := !l.started
	l.started = true

	if l.Fast != nil && (first || now.Sub(l.lastFast) >= l.FastInterval) {
		l.lastFast = now
		l.run(ctx, "fast", l.Fast)
		ranFast = true
	}
	if l.Slow != nil && (first || now.Sub(l.lastSlow) >= l.SlowInterval) {
		l.lastSlow = now
		l.run(ctx, "slow", l.Slow)
		ranSlow = true
	}
	return ranFast, ranSlow
}

func (l *Loop) run(ctx context.Context, name string, act Action) {
	start := time.Now()
	if err := act(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.WithErr("action_error", err).WithField("action", name).Error("scheduled action failed")
		return
	}
	l.logger.WithPayload(map[string]interface{}{
		"action":      name,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("scheduled action finished")
}

// Run calls Step until ctx is cancelled, pausing Sleep between iterations. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	sleep := l.Sleep
	if sleep <= 0 {
		sleep = time.Second
	}
	ticker := time.NewTicker(sleep)
	defer ticker.Stop()

	l.logger.WithPayload(map[string]interface{}{
		"fast_interval": l.FastInterval.String(),
		"slow_interval": l.SlowInterval.String(),
	}).Info("scheduling loop started")
	for {
		if ctx.Err() != nil {
			break
		}
		l.Step(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	l.logger.Info("scheduling loop stopped")
	return ctx.Err()
}
