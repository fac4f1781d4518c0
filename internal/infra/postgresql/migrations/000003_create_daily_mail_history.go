package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/dailydose/internal/repository"
	"gorm.io/gorm"
)

func createDailyMailHistoryTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_daily_mail_history",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryRecordModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`ALTER TABLE daily_mail_history ADD CONSTRAINT fk_daily_mail_history_user FOREIGN KEY (user_id) REFERENCES users (user_id) ON DELETE CASCADE`,
				`ALTER TABLE daily_mail_history ADD CONSTRAINT fk_daily_mail_history_affirmation FOREIGN KEY (affirmation_id) REFERENCES affirmations (affirmation_id) ON DELETE CASCADE`,
				// At most one successful delivery per user per day.
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_daily_mail_history_user_day_success ON daily_mail_history (user_id, sent_on) WHERE success`,
				`CREATE INDEX IF NOT EXISTS idx_daily_mail_history_sent_on ON daily_mail_history (sent_on, success)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryRecordModel{})
		},
	}
}
