package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SignalSourceTelegram = "telegram"
	SignalSourceMarket   = "market"
)

// Signal is a scored trading signal. Chat-derived rows are keyed by
// (telegram, chat id, message id); market-derived rows by (market, symbol, hour bucket).
type Signal struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Source    string `gorm:"type:varchar(20);not null;uniqueIndex:uq_signal_key,priority:1"`
	SourceID  string `gorm:"type:varchar(64);not null;uniqueIndex:uq_signal_key,priority:2"`
	MessageID int64  `gorm:"not null;uniqueIndex:uq_signal_key,priority:3"`

	SourceName string `gorm:"type:varchar(255)"`
	IsBot      bool   `gorm:"default:false"`

	Token     *string             `gorm:"type:varchar(20);index"`
	Action    string              `gorm:"type:varchar(10);index"`
	Price     decimal.NullDecimal `gorm:"type:numeric(38,18)"`
	Target    decimal.NullDecimal `gorm:"type:numeric(38,18)"`
	StopLoss  decimal.NullDecimal `gorm:"type:numeric(38,18)"`
	RiskLevel *string             `gorm:"type:varchar(10)"`

	Confidence           int      `gorm:"not null;index"`
	ConfidenceHint       *float64 `gorm:""`
	Performance          float64  `gorm:"not null;default:0"`
	PerformanceSynthetic bool     `gorm:"default:false"`
	RiskReward           string   `gorm:"type:varchar(20)"`

	Tags     datatypes.JSON `gorm:"type:jsonb"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	Processed bool      `gorm:"default:false;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Signal) TableName() string {
	return "signals"
}

type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionHold  Action = "hold"
	ActionAlert Action = "alert"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)
