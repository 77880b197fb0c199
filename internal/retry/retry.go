package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"time"
)

var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Policy controls Do. Zero Min/Max use the 5-10s default range.
type Policy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration

	// Sleep and Int63n are injectable for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Int63n func(n int64) int64
	Log    *slog.Logger
}

const (
	DefaultMinDelay = 5 * time.Second
	DefaultMaxDelay = 10 * time.Second
)

// Do invokes op up to p.Attempts times. A result with ok=false is a miss and is retried after a
// random pause in [Min, Max]; a non-nil error is returned immediately without retrying.
// After the last miss Do returns the zero value with ok=false. There is no pause after the last attempt.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	if op == nil || p.Attempts <= 0 {
		return zero, false, ErrInvalidPolicy
	}
	p = p.withDefaults()
	if p.Max < p.Min {
		return zero, false, ErrInvalidPolicy
	}

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		v, ok, err := op(ctx)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return v, true, nil
		}
		if attempt == p.Attempts {
			break
		}
		p.Log.Warn("attempt failed, retrying", "attempt", attempt, "attempts", p.Attempts)
		if err := p.Sleep(ctx, Jitter(p.Min, p.Max, p.Int63n)); err != nil {
			return zero, false, err
		}
	}
	return zero, false, nil
}

func (p Policy) withDefaults() Policy {
	if p.Min == 0 && p.Max == 0 {
		p.Min, p.Max = DefaultMinDelay, DefaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = SleepCtx
	}
	if p.Int63n == nil {
		p.Int63n = rand.Int63n
	}
	if p.Log == nil {
		p.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Jitter returns a duration in [min, max] at whole-second granularity when the bounds allow it.
func Jitter(min, max time.Duration, int63n func(int64) int64) time.Duration {
	if max <= min {
		return min
	}
	if int63n == nil {
		int63n = rand.Int63n
	}
	span := max - min
	if span >= time.Second && min%time.Second == 0 && max%time.Second == 0 {
		return min + time.Duration(int63n(int64(span/time.Second)+1))*time.Second
	}
	return min + time.Duration(int63n(int64(span)+1))
}

// Pause sleeps for a random duration in [min, max], honoring ctx.
func Pause(ctx context.Context, min, max time.Duration, sleep func(context.Context, time.Duration) error, int63n func(int64) int64) error {
	if sleep == nil {
		sleep = SleepCtx
	}
	return sleep(ctx, Jitter(min, max, int63n))
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
