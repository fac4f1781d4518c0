package repository

import (
	"context"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"gorm.io/gorm"
)

type UserRepository interface {
	ListEmailOptedIn(ctx context.Context) ([]domain.User, error)
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) ListEmailOptedIn(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	err := r.db.WithContext(ctx).
		Where("is_email_opt_in = ?", true).
		Order("user_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(models))
	for i := range models {
		users = append(users, *userModelToDomain(&models[i]))
	}

	return users, nil
}
