// Package schedule decides which scouts are due and runs them in one
// dispatch pass.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/scout"
)

var specs = map[domain.Frequency]string{
	domain.FrequencyDaily:    "@daily",
	domain.FrequencyWeekly:   "@weekly",
	domain.FrequencyBiweekly: "@every 336h",
	domain.FrequencyMonthly:  "@monthly",
}

// Schedule returns the cron schedule for freq.
func Schedule(freq domain.Frequency) (cron.Schedule, error) {
	spec, ok := specs[freq]
	if !ok {
		return nil, fmt.Errorf("unknown frequency %q", freq)
	}
	return cron.ParseStandard(spec)
}

// Due reports whether a scout last run at lastRun should run at now. Scouts
// that never ran are always due.
func Due(freq domain.Frequency, lastRun *time.Time, now time.Time) (bool, error) {
	if lastRun == nil {
		return true, nil
	}
	sched, err := Schedule(freq)
	if err != nil {
		return false, err
	}
	return !sched.Next(lastRun.UTC()).After(now.UTC()), nil
}

// ScoutLister loads every active scout.
type ScoutLister interface {
	ListActive(ctx context.Context) ([]domain.Scout, error)
}

// Runner executes the pipeline for one scout.
type Runner interface {
	Execute(ctx context.Context, scoutID, userID string, opts scout.Options) (*scout.Result, error)
}

// Sweeper resolves timed out verifications.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Summary counts the outcome of a dispatch pass.
type Summary struct {
	Active    int
	Due       int
	Completed int
	Failed    int
	Skipped   int
	Resolved  int64
}

// Dispatcher runs due scouts sequentially.
type Dispatcher struct {
	scouts  ScoutLister
	runner  Runner
	sweeper Sweeper
	log     logger.Logger
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher. sweeper may be nil.
func NewDispatcher(scouts ScoutLister, runner Runner, sweeper Sweeper, log logger.Logger) *Dispatcher {
	return &Dispatcher{scouts: scouts, runner: runner, sweeper: sweeper, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run executes every due scout once and finishes with a timeout sweep. A
// failing scout is logged and does not stop the pass.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	scouts, err := d.scouts.ListActive(ctx)
	if err != nil {
		return sum, fmt.Errorf("list active scouts: %w", err)
	}
	sum.Active = len(scouts)
	now := d.now()

	for i := range scouts {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		s := &scouts[i]
		log := d.log.With(logger.String("scout_id", s.ID), logger.String("frequency", string(s.Frequency)))

		due, dueErr := Due(s.Frequency, s.LastRunAt, now)
		if dueErr != nil {
			log.Warn("Skipping scout with invalid frequency", logger.Error(dueErr))
			continue
		}
		if !due {
			continue
		}
		sum.Due++

		res, runErr := d.runner.Execute(ctx, s.ID, s.UserID, scout.Options{ExtractUnits: true})
		switch {
		case errors.Is(runErr, domain.ErrExecutionRunning):
			sum.Skipped++
			log.Info("Scout already running")
		case runErr != nil:
			sum.Failed++
			log.Error("Scout run failed", logger.Error(runErr))
		case res.Status == domain.ExecutionFailed:
			sum.Failed++
			log.Warn("Scout run completed with failure", logger.String("error", res.Error))
		default:
			sum.Completed++
		}
	}

	if d.sweeper != nil {
		n, sweepErr := d.sweeper.Sweep(ctx)
		if sweepErr != nil {
			d.log.Warn("Timeout sweep failed", logger.Error(sweepErr))
		}
		sum.Resolved = n
	}

	d.log.Info("Dispatch finished",
		logger.Int("active", sum.Active),
		logger.Int("due", sum.Due),
		logger.Int("completed", sum.Completed),
		logger.Int("failed", sum.Failed),
		logger.Int("skipped", sum.Skipped),
		logger.Int64("verifications_resolved", sum.Resolved),
	)
	return sum, nil
}
