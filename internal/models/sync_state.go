package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is one row per poller. For the Telegram poller Scope is
// "telegram.get_updates" and Cursor the next getUpdates offset.
type SyncState struct {
	Scope  string  `gorm:"primaryKey;type:varchar(64)"`
	Cursor *string `gorm:"type:varchar(32)"`

	LastSuccessAt *time.Time `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time `gorm:"type:timestamptz"`
	LastError     *string    `gorm:"type:text"`
	// Last run's counters (updates, signals).
	StatsJSON datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
