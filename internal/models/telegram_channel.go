package models

import "time"

// TelegramChannel tracks every chat the ingestor has seen a message from.
type TelegramChannel struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	SourceID     string     `gorm:"type:varchar(64);uniqueIndex;not null"`
	Name         string     `gorm:"type:varchar(255)"`
	ChatType     string     `gorm:"type:varchar(20)"`
	IsBot        bool       `gorm:"default:false"`
	Enabled      bool       `gorm:"default:true"`
	MessageCount int64      `gorm:"not null;default:0"`
	SignalCount  int64      `gorm:"not null;default:0"`
	LastSeenAt   *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TelegramChannel) TableName() string {
	return "telegram_channels"
}
