package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/stargate-bridger/bridger/internal/logging"
	"github.com/stargate-bridger/bridger/internal/networks"
	"github.com/stargate-bridger/bridger/internal/retry"
	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Route struct {
	Source      networks.Network
	Destination networks.Network
}

func (r Route) String() string { return r.Source.Name + " -> " + r.Destination.Name }

// BridgeFunc runs one bridge pass over every wallet and reports whether any succeeded.
type BridgeFunc func(ctx context.Context, route Route, percent int, mode stargateabi.Mode) bool

type Config struct {
	Routes []Route
	Count  int
	// MinDelay and MaxDelay bound the pause between iterations.
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MinPercent int
	MaxPercent int
	Modes      []stargateabi.Mode

	Bridge BridgeFunc

	Sleep  func(ctx context.Context, d time.Duration) error
	Int63n func(n int64) int64
	Log    *slog.Logger
}

// Iteration is what one Step chose and how it went.
type Iteration struct {
	Route   Route
	Percent int
	Mode    stargateabi.Mode
	Success bool
}

type Scheduler struct {
	cfg Config
}

func New(cfg Config) (*Scheduler, error) {
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("%w: no routes", ErrInvalidConfig)
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("%w: nil bridge func", ErrInvalidConfig)
	}
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidConfig, cfg.Count)
	}
	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("%w: delay %s-%s", ErrInvalidConfig, cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.MinPercent < 1 || cfg.MaxPercent > 100 || cfg.MaxPercent < cfg.MinPercent {
		return nil, fmt.Errorf("%w: percent %d-%d", ErrInvalidConfig, cfg.MinPercent, cfg.MaxPercent)
	}
	if len(cfg.Modes) == 0 {
		cfg.Modes = stargateabi.Modes
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepCtx
	}
	if cfg.Int63n == nil {
		cfg.Int63n = rand.Int63n
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	return &Scheduler{cfg: cfg}, nil
}

// Step picks a random route, percent and mode and runs one bridge pass.
func (s *Scheduler) Step(ctx context.Context) Iteration {
	it := Iteration{
		Route:   s.cfg.Routes[s.cfg.Int63n(int64(len(s.cfg.Routes)))],
		Percent: s.cfg.MinPercent + int(s.cfg.Int63n(int64(s.cfg.MaxPercent-s.cfg.MinPercent+1))),
		Mode:    s.cfg.Modes[s.cfg.Int63n(int64(len(s.cfg.Modes)))],
	}
	s.cfg.Log.Info("auto bridge", "route", it.Route.String(), "mode", it.Mode, "percent", it.Percent)
	it.Success = s.cfg.Bridge(ctx, it.Route, it.Percent, it.Mode)
	return it
}

// Run performs Count iterations with a random pause between them and reports whether any
// succeeded. Only context cancellation is returned as an error.
func (s *Scheduler) Run(ctx context.Context) (bool, error) {
	succeeded := 0
	for i := 0; i < s.cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return succeeded > 0, err
		}
		s.cfg.Log.Info("auto bridge iteration", "iteration", i+1, "count", s.cfg.Count)
		if s.Step(ctx).Success {
			succeeded++
		}
		if i == s.cfg.Count-1 {
			break
		}
		delay := retry.Jitter(s.cfg.MinDelay, s.cfg.MaxDelay, s.cfg.Int63n)
		s.cfg.Log.Info("waiting before next bridge", "delay", delay)
		if err := s.cfg.Sleep(ctx, delay); err != nil {
			return succeeded > 0, err
		}
	}
	s.cfg.Log.Info("auto bridge complete", "succeeded", succeeded, "count", s.cfg.Count)
	return succeeded > 0, nil
}
