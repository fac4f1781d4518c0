package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"gorm.io/gorm"
)

type AffirmationRepository interface {
	Random(ctx context.Context) (*domain.Affirmation, error)
	RandomInCategory(ctx context.Context, categoryID int64) (*domain.Affirmation, error)
	FirstCategoryName(ctx context.Context, affirmationID int64) (string, error)
}

type GormAffirmationRepo struct {
	db *gorm.DB
}

func NewGormAffirmationRepo(db *gorm.DB) *GormAffirmationRepo {
	return &GormAffirmationRepo{db: db}
}

// Random returns nil without error when no affirmation exists.
func (r *GormAffirmationRepo) Random(ctx context.Context) (*domain.Affirmation, error) {
	var model AffirmationModel
	err := r.db.WithContext(ctx).
		Preload("Categories", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("categories.category_id ASC")
		}).
		Order("RANDOM()").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return affirmationModelToDomain(&model), nil
}

// RandomInCategory returns nil without error when the category has no affirmations.
func (r *GormAffirmationRepo) RandomInCategory(ctx context.Context, categoryID int64) (*domain.Affirmation, error) {
	var model AffirmationModel
	err := r.db.WithContext(ctx).
		Preload("Categories", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("categories.category_id ASC")
		}).
		Joins("JOIN affirmations_categories ac ON ac.affirmation_id = affirmations.affirmation_id").
		Where("ac.category_id = ?", categoryID).
		Order("RANDOM()").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return affirmationModelToDomain(&model), nil
}

// FirstCategoryName returns domain.ErrNotFound when the affirmation has no category.
func (r *GormAffirmationRepo) FirstCategoryName(ctx context.Context, affirmationID int64) (string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("affirmations_categories AS ac").
		Select("c.name").
		Joins("JOIN categories c ON c.category_id = ac.category_id").
		Where("ac.affirmation_id = ?", affirmationID).
		Order("ac.created_at ASC, c.category_id ASC").
		Limit(1).
		Pluck("c.name", &names).Error
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", domain.ErrNotFound
	}
	return names[0], nil
}
