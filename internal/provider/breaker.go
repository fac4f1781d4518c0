package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without contacting the transport while the breaker is open.
var ErrCircuitOpen = errors.New("mail circuit breaker is open")

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// BreakerMailer stops hammering a failing transport. Only transient failures
// count towards tripping; a rejected recipient says nothing about transport health.
type BreakerMailer struct {
	next    Mailer
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerMailer(next Mailer, settings BreakerSettings, logger *zap.Logger) (*BreakerMailer, error) {
	if next == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Name == "" {
		settings.Name = "mail"
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}

	threshold := settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakerMailer{next: next, breaker: cb}, nil
}

func (b *BreakerMailer) Send(ctx context.Context, email domain.Email) (*SendResponse, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, email)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ProviderError{
			Message:   "transport temporarily disabled",
			Transient: true,
			Cause:     fmt.Errorf("%w: %w", ErrCircuitOpen, err),
		}
	}
	if err != nil {
		return nil, err
	}

	resp, _ := result.(*SendResponse)
	return resp, nil
}

// State exposes the breaker state for readiness reporting.
func (b *BreakerMailer) State() string {
	return b.breaker.State().String()
}
