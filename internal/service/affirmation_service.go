package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/kursadbilgin/dailydose/internal/repository"
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

type AffirmationService struct {
	affirmations repository.AffirmationRepository
	deliveries   repository.DeliveryRepository
}

func NewAffirmationService(
	affirmations repository.AffirmationRepository,
	deliveries repository.DeliveryRepository,
) *AffirmationService {
	return &AffirmationService{
		affirmations: affirmations,
		deliveries:   deliveries,
	}
}

// Random picks any affirmation, optionally restricted to one category id.
func (s *AffirmationService) Random(ctx context.Context, category string) (*domain.Affirmation, error) {
	category = strings.ToLower(strings.TrimSpace(category))

	var (
		affirmation *domain.Affirmation
		err         error
	)
	if category == "" || category == CategoryAll {
		affirmation, err = s.affirmations.Random(ctx)
	} else {
		categoryID, parseErr := strconv.ParseInt(category, 10, 64)
		if parseErr != nil || categoryID <= 0 {
			return nil, fmt.Errorf("%w: category must be %q or a positive id", domain.ErrValidation, CategoryAll)
		}
		affirmation, err = s.affirmations.RandomInCategory(ctx, categoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load random affirmation: %w", err)
	}
	if affirmation == nil {
		return nil, fmt.Errorf("%w: no affirmation available", domain.ErrNotFound)
	}

	return affirmation, nil
}

func (s *AffirmationService) ListDeliveries(
	ctx context.Context,
	params repository.DeliveryListParams,
) ([]domain.DeliveryRecord, int64, error) {
	if params.UserID != nil && *params.UserID <= 0 {
		return nil, 0, fmt.Errorf("%w: userId must be positive", domain.ErrValidation)
	}
	return s.deliveries.List(ctx, params)
}
