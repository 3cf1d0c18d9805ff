package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner runs one pipeline invocation.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler re-invokes a Runner on a fixed interval. Invocations never
// overlap; a tick that arrives during a run is coalesced.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. interval must be positive.
func NewScheduler(runner Runner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, clock: clock, logger: logger}
}

// Start runs immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	res, err := s.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("scheduled run failed", "invocation_id", res.InvocationID, "error", err)
		return
	}
	s.logger.Info("scheduled run published", "invocation_id", res.InvocationID, "artifact", res.Artifact.Name)
}
