package models

import (
	"time"

	"gorm.io/datatypes"
)

// TelegramMessage is the canonical inbound chat message. (source_id, message_id)
// identifies one logical message; edits overwrite Text on the same row.
type TelegramMessage struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SourceID  string `gorm:"type:varchar(64);not null;uniqueIndex:uq_telegram_message,priority:1"`
	MessageID int64  `gorm:"not null;uniqueIndex:uq_telegram_message,priority:2"`

	Text           string    `gorm:"type:text;not null;default:''"`
	Timestamp      time.Time `gorm:"type:timestamptz;not null;index"`
	IsBot          bool      `gorm:"default:false"`
	SourceName     string    `gorm:"type:varchar(255)"`
	ChatType       string    `gorm:"type:varchar(20)"`
	SenderID       *int64    `gorm:"index"`
	SenderUsername *string   `gorm:"type:varchar(100)"`

	Edited    bool           `gorm:"default:false"`
	Processed bool           `gorm:"default:false;index"`
	RawUpdate datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TelegramMessage) TableName() string {
	return "telegram_messages"
}
