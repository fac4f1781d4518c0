package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/kursadbilgin/dailydose/internal/observability"
	"github.com/kursadbilgin/dailydose/internal/provider"
	"github.com/kursadbilgin/dailydose/internal/ratelimit"
	"github.com/kursadbilgin/dailydose/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout     = 10 * time.Second
	minDispatchConcurrency = 1
	mailRateLimitKey       = "email"
	duplicateDeliveryMsg   = "duplicate delivery: already delivered by a concurrent run"
)

type DispatcherOptions struct {
	SendTimeout time.Duration
	Concurrency int
}

// DailyMailDispatcher sends today's affirmation to every opted-in user that
// has not yet received it successfully.
type DailyMailDispatcher struct {
	selector    AffirmationSelector
	users       repository.UserRepository
	deliveries  repository.DeliveryRepository
	mailer      provider.Mailer
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	sendTimeout time.Duration
	concurrency int
	now         func() time.Time
	newID       func() string
}

func NewDailyMailDispatcher(
	selector AffirmationSelector,
	users repository.UserRepository,
	deliveries repository.DeliveryRepository,
	mailer provider.Mailer,
	rateLimiter ratelimit.RateLimiter,
	opts DispatcherOptions,
	logger *zap.Logger,
) (*DailyMailDispatcher, error) {
	if selector == nil {
		return nil, fmt.Errorf("affirmation selector is required")
	}
	if users == nil || deliveries == nil {
		return nil, fmt.Errorf("user and delivery repositories are required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Concurrency < minDispatchConcurrency {
		opts.Concurrency = minDispatchConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DailyMailDispatcher{
		selector:    selector,
		users:       users,
		deliveries:  deliveries,
		mailer:      mailer,
		rateLimiter: rateLimiter,
		logger:      logger,
		sendTimeout: opts.SendTimeout,
		concurrency: opts.Concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

func (d *DailyMailDispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Run processes every opted-in user for today's date. Per-user failures are
// counted, never returned. Cancellation stops the loop between users and
// returns the partial summary with ctx.Err().
func (d *DailyMailDispatcher) Run(ctx context.Context, today time.Time) (domain.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(d.logger, ctx)

	affirmation, err := d.selector.GetOrSelect(ctx, today)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if affirmation == nil {
		logger.Info("no affirmation available, skipping daily emails")
		return domain.RunSummary{}, nil
	}

	users, err := d.users.ListEmailOptedIn(ctx)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("failed to list opted-in users: %w", err)
	}

	date := domain.DateOf(today)
	logger.Info("dispatching daily emails",
		zap.Int("users", len(users)),
		zap.Int64("affirmationId", affirmation.ID),
		zap.Time("date", date),
	)

	var (
		mu      sync.Mutex
		summary domain.RunSummary
	)
	record := func(outcome domain.RunSummary) {
		mu.Lock()
		summary.Add(outcome)
		mu.Unlock()
	}

	if d.concurrency == 1 {
		for _, user := range users {
			if ctx.Err() != nil {
				break
			}
			record(d.deliverTo(ctx, user, *affirmation, date))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for _, user := range users {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				record(d.deliverTo(ctx, user, *affirmation, date))
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("daily dispatch interrupted",
			zap.Int("attempted", summary.Attempted),
			zap.Int("remaining", len(users)-summary.Attempted),
			zap.Error(err),
		)
		return summary, err
	}

	return summary, nil
}

func (d *DailyMailDispatcher) deliverTo(
	ctx context.Context,
	user domain.User,
	affirmation domain.AffirmationOfDay,
	date time.Time,
) domain.RunSummary {
	outcome := domain.RunSummary{Attempted: 1}
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.Int64("userId", user.ID))

	delivered, err := d.deliveries.HasSuccessfulDelivery(ctx, user.ID, date)
	if err != nil {
		logger.Error("failed to check delivery history", zap.Error(err))
		d.metrics.IncEmailFailed("persistence")
		outcome.Failed = 1
		return outcome
	}
	if delivered {
		logger.Debug("daily email already delivered")
		d.metrics.IncEmailSkipped()
		outcome.SkippedAlreadySent = 1
		return outcome
	}

	rec := &domain.DeliveryRecord{
		ID:            d.newID(),
		UserID:        user.ID,
		AffirmationID: affirmation.ID,
		SentOn:        date,
		SentAt:        d.now().UTC(),
	}
	if err := d.deliveries.Create(ctx, rec); err != nil {
		logger.Error("failed to record delivery attempt", zap.Error(err))
		d.metrics.IncEmailFailed("persistence")
		outcome.Failed = 1
		return outcome
	}
	logger = logger.With(zap.String("deliveryId", rec.ID))

	email := domain.NewDailyEmail(user, affirmation)
	email.IdempotencyKey = rec.ID
	resp, sendErr := d.send(ctx, email)

	// The send already happened; its outcome is recorded even if the run is cancelled.
	persistCtx := context.WithoutCancel(ctx)

	if sendErr != nil {
		if err := d.deliveries.MarkFailed(persistCtx, rec.ID, sendErr.Error()); err != nil {
			logger.Error("failed to record send failure", zap.Error(err))
		}
		reason := provider.FailureReason(sendErr)
		d.metrics.IncEmailFailed(reason)
		logger.Warn("daily email send failed",
			zap.String("reason", reason),
			zap.Error(sendErr),
		)
		outcome.Failed = 1
		return outcome
	}

	if err := d.deliveries.MarkDelivered(persistCtx, rec.ID); err != nil {
		if errors.Is(err, repository.ErrDuplicateDelivery) {
			if markErr := d.deliveries.MarkFailed(persistCtx, rec.ID, duplicateDeliveryMsg); markErr != nil {
				logger.Error("failed to record duplicate delivery", zap.Error(markErr))
			}
			d.metrics.IncEmailSkipped()
			logger.Warn("daily email delivered by a concurrent run")
			outcome.SkippedAlreadySent = 1
			return outcome
		}

		logger.Error("failed to record successful delivery", zap.Error(err))
		d.metrics.IncEmailFailed("persistence")
		outcome.Failed = 1
		return outcome
	}

	fields := []zap.Field{}
	if resp != nil && resp.MessageID != "" {
		fields = append(fields, zap.String("messageId", resp.MessageID))
	}
	logger.Info("daily email sent", fields...)
	d.metrics.IncEmailSent()
	outcome.Sent = 1
	return outcome
}

// send guards only the transport call: limiter wait, timeout and mailer errors
// all surface as a send failure.
func (d *DailyMailDispatcher) send(ctx context.Context, email domain.Email) (*provider.SendResponse, error) {
	if d.rateLimiter != nil {
		if err := d.rateLimiter.Wait(ctx, mailRateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := d.now()
	resp, err := d.mailer.Send(sendCtx, email)
	d.metrics.ObserveEmailSendDuration(d.now().Sub(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
