package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/dailydose/internal/repository"
	"gorm.io/gorm"
)

func createAffirmationTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_affirmations",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.CategoryModel{},
				&repository.AffirmationModel{},
				&repository.AffirmationCategoryModel{},
			); err != nil {
				return err
			}
			return execAll(tx, []string{
				`ALTER TABLE affirmations DROP CONSTRAINT IF EXISTS fk_affirmations_user`,
				`ALTER TABLE affirmations ADD CONSTRAINT fk_affirmations_user FOREIGN KEY (user_id) REFERENCES users (user_id) ON DELETE CASCADE`,
				`CREATE INDEX IF NOT EXISTS idx_affirmations_categories_category ON affirmations_categories (category_id)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.AffirmationCategoryModel{},
				&repository.AffirmationModel{},
				&repository.CategoryModel{},
			)
		},
	}
}
