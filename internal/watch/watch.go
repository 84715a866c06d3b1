// Package watch repeats scanner rounds on a fixed interval until cancelled.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"quotescanner/internal/report"
)

// State of a Loop.
type State int32

const (
	Idle State = iota
	Running
	Sleeping
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Runner executes one round.
type Runner interface {
	RunRound(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// RunRound implements Runner.
func (f RunnerFunc) RunRound(ctx context.Context) error {
	return f(ctx)
}

// Loop runs a round immediately, then again every Interval measured from the
// end of the previous round, until its context is cancelled.
type Loop struct {
	runner   Runner
	interval time.Duration

	state  atomic.Int32
	rounds atomic.Int64
}

// New creates a Loop. interval must be positive.
func New(runner Runner, interval time.Duration) (*Loop, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	return &Loop{runner: runner, interval: interval}, nil
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Rounds returns the number of rounds started so far.
func (l *Loop) Rounds() int64 {
	return l.rounds.Load()
}

// Run blocks until ctx is cancelled and then returns nil.
//
// Cancellation is observed before each round and while sleeping. A round that
// is already running is not interrupted: it runs on a context detached from
// ctx's cancellation and the loop stops once it returns. Round errors are
// logged and the loop carries on, except report.ErrConfigConflict, which no
// later round could fix and is returned.
func (l *Loop) Run(ctx context.Context) error {
	defer l.state.Store(int32(Cancelled))

	roundCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.state.Store(int32(Running))
		n := l.rounds.Add(1)
		slog.Debug("watch round starting", "round", n)

		if err := l.runner.RunRound(roundCtx); err != nil {
			if errors.Is(err, report.ErrConfigConflict) {
				return err
			}
			slog.Error("watch round failed", "round", n, "error", err)
		}

		if ctx.Err() != nil {
			return nil
		}

		l.state.Store(int32(Sleeping))
		slog.Debug("watch sleeping", "interval", l.interval, "next_round", time.Now().Add(l.interval).Format(time.TimeOnly))

		if !l.sleep(ctx) {
			return nil
		}
	}
}

// sleep waits one interval and reports false if ctx was cancelled first.
func (l *Loop) sleep(ctx context.Context) bool {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
