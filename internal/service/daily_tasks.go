package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/kursadbilgin/dailydose/internal/observability"
	"go.uber.org/zap"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// DailyRunner runs the daily email job for one date.
type DailyRunner interface {
	Run(ctx context.Context, today time.Time) (domain.RunSummary, error)
}

// RunReport describes one completed or aborted run.
type RunReport struct {
	RunID       string                   `json:"runId"`
	Trigger     string                   `json:"trigger"`
	Date        string                   `json:"date"`
	Summary     domain.RunSummary        `json:"summary"`
	Affirmation *domain.AffirmationOfDay `json:"affirmation,omitempty"`
	StartedAt   time.Time                `json:"startedAt"`
	FinishedAt  time.Time                `json:"finishedAt"`
}

type AffirmationStatus struct {
	Available   bool                     `json:"available"`
	Affirmation *domain.AffirmationOfDay `json:"affirmation,omitempty"`
}

// DailyTasks is the entry point shared by the scheduler and the HTTP API.
type DailyTasks struct {
	runner   DailyRunner
	selector *DailyAffirmationSelector
	location *time.Location
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newRunID func() string
}

func NewDailyTasks(
	runner DailyRunner,
	selector *DailyAffirmationSelector,
	location *time.Location,
	logger *zap.Logger,
) (*DailyTasks, error) {
	if runner == nil {
		return nil, fmt.Errorf("daily runner is required")
	}
	if selector == nil {
		return nil, fmt.Errorf("affirmation selector is required")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DailyTasks{
		runner:   runner,
		selector: selector,
		location: location,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

func (t *DailyTasks) SetMetrics(metrics *observability.Metrics) {
	if t == nil {
		return
	}
	t.metrics = metrics
}

// RunNow runs the daily job for today's date in the configured location.
func (t *DailyTasks) RunNow(ctx context.Context, trigger string) (RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runID := t.newRunID()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithContextLogger(t.logger, ctx).With(zap.String("trigger", trigger))

	started := t.now().In(t.location)
	report := RunReport{
		RunID:     runID,
		Trigger:   trigger,
		Date:      domain.DateOf(started).Format(time.DateOnly),
		StartedAt: started,
	}

	logger.Info("daily run started", zap.String("date", report.Date))

	summary, err := t.runner.Run(ctx, started)
	report.Summary = summary
	report.FinishedAt = t.now().In(t.location)
	if current := t.selector.Current(); current.IsFor(started) {
		report.Affirmation = current
	}

	duration := report.FinishedAt.Sub(report.StartedAt)
	t.metrics.ObserveRun(trigger, err, duration, report.FinishedAt)

	if err != nil {
		logger.Error("daily run failed",
			zap.Any("summary", summary),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return report, err
	}

	logger.Info("daily run finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("sent", summary.Sent),
		zap.Int("skippedAlreadySent", summary.SkippedAlreadySent),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", duration),
	)
	return report, nil
}

// Status reports today's affirmation. A value selected on an earlier date is
// not available.
func (t *DailyTasks) Status() AffirmationStatus {
	current := t.selector.Current()
	if !current.IsFor(t.now().In(t.location)) {
		return AffirmationStatus{}
	}
	return AffirmationStatus{
		Available:   current != nil,
		Affirmation: current,
	}
}

func (t *DailyTasks) Reset() {
	t.selector.Reset()
	t.logger.Info("affirmation of the day reset")
}
