package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/kursadbilgin/dailydose/internal/observability"
	"github.com/kursadbilgin/dailydose/internal/repository"
	"go.uber.org/zap"
)

// AffirmationSelector yields the affirmation shared by all users for a date.
type AffirmationSelector interface {
	GetOrSelect(ctx context.Context, today time.Time) (*domain.AffirmationOfDay, error)
}

var _ AffirmationSelector = (*DailyAffirmationSelector)(nil)

// DailyAffirmationSelector caches one affirmation per calendar date. The
// mutex is held across the store lookup so concurrent callers on a new day
// never pick two different affirmations.
type DailyAffirmationSelector struct {
	affirmations repository.AffirmationRepository
	logger       *zap.Logger
	metrics      *observability.Metrics

	mu      sync.Mutex
	current *domain.AffirmationOfDay
}

func NewDailyAffirmationSelector(
	affirmations repository.AffirmationRepository,
	logger *zap.Logger,
) (*DailyAffirmationSelector, error) {
	if affirmations == nil {
		return nil, fmt.Errorf("affirmation repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DailyAffirmationSelector{
		affirmations: affirmations,
		logger:       logger,
	}, nil
}

func (s *DailyAffirmationSelector) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// GetOrSelect returns nil without error when the store has no affirmations.
func (s *DailyAffirmationSelector) GetOrSelect(ctx context.Context, today time.Time) (*domain.AffirmationOfDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.IsFor(today) {
		return s.current, nil
	}

	affirmation, err := s.affirmations.Random(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select affirmation of the day: %w", err)
	}
	if affirmation == nil {
		s.logger.Warn("no affirmations available", zap.Time("date", domain.DateOf(today)))
		return nil, nil
	}

	selected := &domain.AffirmationOfDay{
		ID:            affirmation.ID,
		Text:          affirmation.Text,
		CategoryName:  s.categoryName(ctx, affirmation.ID),
		EffectiveDate: domain.DateOf(today),
	}
	s.current = selected
	s.metrics.IncAffirmationSelected()

	s.logger.Info("affirmation of the day selected",
		zap.Int64("affirmationId", selected.ID),
		zap.String("category", selected.CategoryName),
		zap.Time("date", selected.EffectiveDate),
	)

	return selected, nil
}

// Reset drops the cached value so the next call selects again.
func (s *DailyAffirmationSelector) Reset() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *DailyAffirmationSelector) Current() *domain.AffirmationOfDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *DailyAffirmationSelector) categoryName(ctx context.Context, affirmationID int64) string {
	name, err := s.affirmations.FirstCategoryName(ctx, affirmationID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("category lookup failed, using default",
				zap.Int64("affirmationId", affirmationID),
				zap.Error(err),
			)
		}
		return domain.DefaultCategoryName
	}
	if name = strings.TrimSpace(name); name == "" {
		return domain.DefaultCategoryName
	}
	return name
}
