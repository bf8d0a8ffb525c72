package db

import (
	"alphafeed/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.TelegramMessage{},
		&models.Signal{},
		&models.TelegramChannel{},
		&models.SyncState{},
		&models.SystemSetting{},
	)
}
