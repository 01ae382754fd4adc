package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"DocketWatch/internal/ports"
)

// SchedulerDrivers holds one driver per recurring job. Nil drivers are skipped.
type SchedulerDrivers struct {
	Cycle ports.Scheduler
	Drain ports.Scheduler
	Reset ports.Scheduler
}

// Scheduler wires the time drivers with the pipeline use cases.
type Scheduler struct {
	drivers  SchedulerDrivers
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(drivers SchedulerDrivers, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{drivers: drivers, pipeline: pipeline, logger: logger}
}

// Start registers the cycle, drain and reset jobs with their drivers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.pipeline == nil {
		return nil
	}

	jobs := []struct {
		name   string
		driver ports.Scheduler
		run    func(time.Time) error
	}{
		{"cycle", s.drivers.Cycle, func(t time.Time) error {
			_, err := s.pipeline.RunCycle(ctx, t)
			return err
		}},
		{"drain", s.drivers.Drain, func(time.Time) error {
			_, err := s.pipeline.Drain(ctx)
			return err
		}},
		{"reset", s.drivers.Reset, func(t time.Time) error {
			_, err := s.pipeline.DailyReset(ctx, t)
			return err
		}},
	}

	for _, job := range jobs {
		if job.driver == nil {
			continue
		}
		name, run := job.name, job.run
		err := job.driver.Start(ctx, func(trigger time.Time) {
			if err := run(trigger); err != nil {
				s.logger.Error("scheduled job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			return errors.Join(err, s.Stop(ctx))
		}
	}
	return nil
}

// Stop gracefully tears down every driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	for _, driver := range []ports.Scheduler{s.drivers.Cycle, s.drivers.Drain, s.drivers.Reset} {
		if driver == nil {
			continue
		}
		if err := driver.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
