package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is a feature switch or operator setting. Sensitive keys hold
// a sealed envelope instead of the plain JSON value.
type SystemSetting struct {
	ID    uint64         `gorm:"primaryKey;autoIncrement"`
	Key   string         `gorm:"type:varchar(120);not null;uniqueIndex"`
	Value datatypes.JSON `gorm:"type:jsonb;not null"`

	Description string `gorm:"type:text"`
	// Subject of the bearer token that last wrote the row, empty when auth is off.
	UpdatedBy string    `gorm:"type:varchar(120)"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
