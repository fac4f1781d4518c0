package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DailyJob is what the scheduler fires once per day.
type DailyJob interface {
	RunNow(ctx context.Context, trigger string) (RunReport, error)
}

// DailyScheduler fires the daily job at a fixed wall-clock time in a location.
// Runs are sequential; a failed run waits for the next day.
type DailyScheduler struct {
	job      DailyJob
	hour     int
	minute   int
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
	after    func(d time.Duration) <-chan time.Time
}

func NewDailyScheduler(
	job DailyJob,
	hour int,
	minute int,
	location *time.Location,
	logger *zap.Logger,
) (*DailyScheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("daily job is required")
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("invalid send hour %d", hour)
	}
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid send minute %d", minute)
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DailyScheduler{
		job:      job,
		hour:     hour,
		minute:   minute,
		location: location,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// NextRun returns the first firing instant strictly after now.
func (s *DailyScheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.location)
	y, m, d := local.Date()

	next := time.Date(y, m, d, s.hour, s.minute, 0, 0, s.location)
	if !next.After(local) {
		next = time.Date(y, m, d+1, s.hour, s.minute, 0, 0, s.location)
	}
	return next
}

func (s *DailyScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var last time.Time
	for {
		from := s.now()
		// A timer that fires a little early must not schedule the same slot twice.
		if from.Before(last) {
			from = last
		}
		next := s.NextRun(from)
		s.logger.Info("next daily run scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
		}
		last = next

		if _, err := s.job.RunNow(ctx, TriggerScheduled); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduled daily run failed", zap.Error(err))
		}
	}
}
