package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// FailureBackoff is the extra wait appended per consecutive failed
	// tick. Zero disables backoff.
	FailureBackoff time.Duration
}

// maxPenaltySteps caps the linear failure backoff.
const maxPenaltySteps = 5

// Scheduler drives aligned execution of evaluation ticks.
type Scheduler struct {
	opts     Options
	logger   zerolog.Logger
	failures int
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each aligned interval until
// ctx is cancelled. A failing tick is logged and the loop continues; the
// next tick retries independently.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		at := s.tickStart(next)
		s.logger.Info().Time("tick", at).Msg("executing scheduled tick")

		if err := tick(ctx, at); err != nil {
			s.failures++
			s.logger.Error().Err(err).Time("tick", at).
				Int("consecutive_failures", s.failures).Msg("tick execution failed")
			if penalty := s.failurePenalty(); penalty > 0 {
				s.logger.Warn().Dur("penalty", penalty).Msg("backing off after repeated tick failures")
				next = next.Add(penalty)
			}
		} else {
			s.failures = 0
		}

		next = next.Add(s.opts.Interval)
	}
}

// failurePenalty 返回连续失败后追加的等待时间，按失败次数线性增长并封顶。
func (s *Scheduler) failurePenalty() time.Duration {
	if s.opts.FailureBackoff <= 0 || s.failures == 0 {
		return 0
	}
	steps := s.failures
	if steps > maxPenaltySteps {
		steps = maxPenaltySteps
	}
	return time.Duration(steps) * s.opts.FailureBackoff
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	tick := now.Truncate(s.opts.Interval)
	if !tick.After(now) {
		tick = tick.Add(s.opts.Interval)
	}
	return tick
}

func (s *Scheduler) tickStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
