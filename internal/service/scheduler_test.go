package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeDailyJob struct {
	runNowFn func(ctx context.Context, trigger string) (RunReport, error)
}

func (f *fakeDailyJob) RunNow(ctx context.Context, trigger string) (RunReport, error) {
	if f.runNowFn != nil {
		return f.runNowFn(ctx, trigger)
	}
	return RunReport{}, nil
}

func TestNewDailySchedulerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDailyScheduler(nil, 7, 0, time.UTC, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
	if _, err := NewDailyScheduler(&fakeDailyJob{}, 24, 0, time.UTC, nil); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := NewDailyScheduler(&fakeDailyJob{}, 7, 60, time.UTC, nil); err == nil {
		t.Fatal("expected error for minute 60")
	}

	s, err := NewDailyScheduler(&fakeDailyJob{}, 7, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewDailyScheduler() error = %v", err)
	}
	if s.location != time.UTC {
		t.Fatalf("location = %s, want UTC", s.location)
	}
}

func TestDailySchedulerNextRun(t *testing.T) {
	t.Parallel()

	istanbul := time.FixedZone("TRT", 3*60*60)
	s, err := NewDailyScheduler(&fakeDailyJob{}, 7, 0, istanbul, nil)
	if err != nil {
		t.Fatalf("NewDailyScheduler() error = %v", err)
	}

	testCases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before send time",
			now:  time.Date(2026, 5, 1, 6, 59, 0, 0, istanbul),
			want: time.Date(2026, 5, 1, 7, 0, 0, 0, istanbul),
		},
		{
			name: "exactly at send time goes to next day",
			now:  time.Date(2026, 5, 1, 7, 0, 0, 0, istanbul),
			want: time.Date(2026, 5, 2, 7, 0, 0, 0, istanbul),
		},
		{
			name: "after send time",
			now:  time.Date(2026, 5, 1, 12, 0, 0, 0, istanbul),
			want: time.Date(2026, 5, 2, 7, 0, 0, 0, istanbul),
		},
		{
			name: "utc input is converted to location",
			now:  time.Date(2026, 5, 1, 3, 30, 0, 0, time.UTC),
			want: time.Date(2026, 5, 1, 7, 0, 0, 0, istanbul),
		},
		{
			name: "month rollover",
			now:  time.Date(2026, 5, 31, 8, 0, 0, 0, istanbul),
			want: time.Date(2026, 6, 1, 7, 0, 0, 0, istanbul),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := s.NextRun(tc.now); !got.Equal(tc.want) {
				t.Fatalf("NextRun(%s) = %s, want %s", tc.now, got, tc.want)
			}
		})
	}
}

func TestDailySchedulerStartRunsJobAndContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	job := &fakeDailyJob{
		runNowFn: func(ctx context.Context, trigger string) (RunReport, error) {
			calls++
			if trigger != TriggerScheduled {
				t.Errorf("trigger = %q, want %q", trigger, TriggerScheduled)
			}
			if calls == 2 {
				cancel()
			}
			return RunReport{}, errors.New("users unreachable")
		},
	}

	core, logs := observer.New(zap.ErrorLevel)
	s, err := NewDailyScheduler(job, 7, 0, time.UTC, zap.New(core))
	if err != nil {
		t.Fatalf("NewDailyScheduler() error = %v", err)
	}

	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var waits []time.Duration
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- now
		return ch
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if calls != 2 {
		t.Fatalf("job calls = %d, want 2", calls)
	}
	if logs.FilterMessage("scheduled daily run failed").Len() != 1 {
		t.Fatal("expected exactly one logged failure")
	}
	if len(waits) < 2 || waits[0] != time.Hour || waits[1] != 25*time.Hour {
		t.Fatalf("waits = %v, want [1h 25h]", waits)
	}
}

func TestDailySchedulerStartReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewDailyScheduler(&fakeDailyJob{
		runNowFn: func(ctx context.Context, trigger string) (RunReport, error) {
			t.Error("job must not run after cancel")
			return RunReport{}, nil
		},
	}, 7, 0, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewDailyScheduler() error = %v", err)
	}
	s.after = func(d time.Duration) <-chan time.Time { return make(chan time.Time) }

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
