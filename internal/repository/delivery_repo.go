package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"gorm.io/gorm"
)

// ErrDuplicateDelivery reports that a successful delivery for the same user and
// date was committed by another run first.
var ErrDuplicateDelivery = errors.New("successful delivery already recorded for user and date")

type DeliveryListParams struct {
	UserID   *int64
	SentOn   *time.Time
	Success  *bool
	Page     int
	PageSize int
}

type DeliveryRepository interface {
	HasSuccessfulDelivery(ctx context.Context, userID int64, sentOn time.Time) (bool, error)
	Create(ctx context.Context, r *domain.DeliveryRecord) error
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	List(ctx context.Context, params DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) HasSuccessfulDelivery(ctx context.Context, userID int64, sentOn time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("user_id = ? AND sent_on = ? AND success", userID, dateOnly(sentOn)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormDeliveryRepo) Create(ctx context.Context, rec *domain.DeliveryRecord) error {
	model := deliveryModelFromDomain(rec)
	if model == nil {
		return errors.New("delivery record is required")
	}
	model.SentOn = dateOnly(model.SentOn)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*rec = *deliveryModelToDomain(model)
	return nil
}

// MarkDelivered flips a placeholder to success. The partial unique index on
// (user_id, sent_on) WHERE success rejects a second successful row.
func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("daily_mail_history_id = ?", id).
		Updates(map[string]any{
			"success":       true,
			"error_message": nil,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateDelivery
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("daily_mail_history_id = ? AND NOT success", id).
		Update("error_message", errorMessage)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, params DeliveryListParams) ([]domain.DeliveryRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryRecordModel{})

	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.SentOn != nil {
		query = query.Where("sent_on = ?", dateOnly(*params.SentOn))
	}
	if params.Success != nil {
		query = query.Where("success = ?", *params.Success)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryRecordModel
	err := query.
		Order("sent_email_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}

	return records, total, nil
}

// dateOnly drops the clock and zone so a calendar date compares equal to a
// postgres DATE column regardless of the session time zone.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
