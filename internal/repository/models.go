package repository

import (
	"time"

	"github.com/kursadbilgin/dailydose/internal/domain"
)

// UserModel is the persistence model for the users table.
type UserModel struct {
	ID           int64  `gorm:"column:user_id;primaryKey;autoIncrement"`
	Name         string `gorm:"type:varchar(255);not null"`
	Username     string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Email        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	IsEmailOptIn bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// CategoryModel is the persistence model for the categories table.
type CategoryModel struct {
	ID          int64  `gorm:"column:category_id;primaryKey;autoIncrement"`
	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CategoryModel) TableName() string {
	return "categories"
}

// AffirmationModel is the persistence model for the affirmations table.
type AffirmationModel struct {
	ID         int64           `gorm:"column:affirmation_id;primaryKey;autoIncrement"`
	Text       string          `gorm:"column:affirmation_text;type:text;not null"`
	UserID     int64           `gorm:"not null;index"`
	IsAdminSet bool            `gorm:"not null;default:false"`
	Categories []CategoryModel `gorm:"many2many:affirmations_categories;joinForeignKey:AffirmationID;joinReferences:CategoryID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (AffirmationModel) TableName() string {
	return "affirmations"
}

// AffirmationCategoryModel is the join row between affirmations and categories.
type AffirmationCategoryModel struct {
	AffirmationID int64 `gorm:"primaryKey"`
	CategoryID    int64 `gorm:"primaryKey"`
	CreatedAt     time.Time
}

func (AffirmationCategoryModel) TableName() string {
	return "affirmations_categories"
}

// DeliveryRecordModel is the persistence model for daily_mail_history.
type DeliveryRecordModel struct {
	ID            string    `gorm:"column:daily_mail_history_id;type:uuid;primaryKey"`
	UserID        int64     `gorm:"not null"`
	AffirmationID int64     `gorm:"not null"`
	SentOn        time.Time `gorm:"type:date;not null"`
	SentAt        time.Time `gorm:"column:sent_email_at;type:timestamptz;not null"`
	Success       bool      `gorm:"not null;default:false"`
	ErrorMessage  *string   `gorm:"type:text"`
}

func (DeliveryRecordModel) TableName() string {
	return "daily_mail_history"
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:         m.ID,
		Name:       m.Name,
		Username:   m.Username,
		Email:      m.Email,
		EmailOptIn: m.IsEmailOptIn,
	}
}

func affirmationModelToDomain(m *AffirmationModel) *domain.Affirmation {
	if m == nil {
		return nil
	}

	categories := make([]domain.Category, 0, len(m.Categories))
	for _, c := range m.Categories {
		categories = append(categories, domain.Category{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
		})
	}

	return &domain.Affirmation{
		ID:         m.ID,
		Text:       m.Text,
		UserID:     m.UserID,
		IsAdminSet: m.IsAdminSet,
		Categories: categories,
		CreatedAt:  m.CreatedAt,
	}
}

func deliveryModelFromDomain(r *domain.DeliveryRecord) *DeliveryRecordModel {
	if r == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:            r.ID,
		UserID:        r.UserID,
		AffirmationID: r.AffirmationID,
		SentOn:        r.SentOn,
		SentAt:        r.SentAt,
		Success:       r.Success,
		ErrorMessage:  r.ErrorMessage,
	}
}

func deliveryModelToDomain(m *DeliveryRecordModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:            m.ID,
		UserID:        m.UserID,
		AffirmationID: m.AffirmationID,
		SentOn:        m.SentOn,
		SentAt:        m.SentAt,
		Success:       m.Success,
		ErrorMessage:  m.ErrorMessage,
	}
}
