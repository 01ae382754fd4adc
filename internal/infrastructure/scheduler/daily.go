package scheduler

import (
	"context"
	"sync"
	"time"

	"DocketWatch/internal/ports"
)

// DailyScheduler fires once a day at a wall-clock time in a fixed location.
type DailyScheduler struct {
	hour   int
	minute int
	loc    *time.Location
	now    func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler fires at hour:minute in loc; a nil loc means UTC.
func NewDailyScheduler(hour, minute int, loc *time.Location) *DailyScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyScheduler{hour: hour, minute: minute, loc: loc, now: time.Now}
}

// Start waits for each boundary in turn. It does not fire immediately.
func (s *DailyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		for {
			timer := time.NewTimer(NextRun(s.now(), s.hour, s.minute, s.loc).Sub(s.now()))
			select {
			case t := <-timer.C:
				job(t)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the timer goroutine.
func (s *DailyScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	return halt(ctx, stop, done)
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
