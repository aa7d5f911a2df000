package rotation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Runner runs one rotation pass.
type Runner interface {
	RotateAll(ctx context.Context) Summary
}

// Scheduler runs a rotation pass once a day at a fixed local time.
type Scheduler struct {
	runner     Runner
	hour       int
	minute     int
	loc        *time.Location
	runOnStart bool
	clock      func() time.Time
}

// NewScheduler creates a scheduler. timeOfDay has the form "15:04".
func NewScheduler(runner Runner, timeOfDay string, loc *time.Location, runOnStart bool) (*Scheduler, error) {
	at, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid time of day %q", timeOfDay)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:     runner,
		hour:       at.Hour(),
		minute:     at.Minute(),
		loc:        loc,
		runOnStart: runOnStart,
		clock:      time.Now,
	}, nil
}

// NextRun returns the first scheduled time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Start runs the schedule in the background and returns its stop function.
func (s *Scheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if s.runOnStart {
			s.runOnce(ctx)
		}

		for {
			now := s.clock()
			next := s.NextRun(now)
			zlog.Info().Msgf("next rotation scheduled: at=%s", next.Format(time.RFC3339))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	summary := s.runner.RotateAll(ctx)
	if !summary.OK() {
		zlog.Warn().Msgf("scheduled rotation had failures: failed=%d", summary.Count(OutcomeFailed))
	}
}
