package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"alphafeed/internal/market"
	"alphafeed/internal/models"
)

type Strength string

const (
	StrengthCritical Strength = "critical"
	StrengthHigh     Strength = "high"
	StrengthMedium   Strength = "medium"
	StrengthLow      Strength = "low"
)

const (
	OriginMarket   = "market"
	OriginTelegram = "telegram"
)

type PriceMovement struct {
	Current *float64 `json:"current,omitempty"`
	Target  *float64 `json:"target,omitempty"`
}

type Entry struct {
	ID                   string           `json:"id"`
	Origin               string           `json:"origin"`
	Symbol               string           `json:"symbol"`
	Action               models.Action    `json:"action"`
	Confidence           int              `json:"confidence"`
	Strength             Strength         `json:"strength"`
	RiskLevel            models.RiskLevel `json:"risk_level,omitempty"`
	Performance          float64          `json:"performance"`
	PerformanceSynthetic bool             `json:"performance_synthetic"`
	PriceMovement        PriceMovement    `json:"price_movement"`
	RiskReward           string           `json:"risk_reward,omitempty"`
	Tags                 []string         `json:"tags"`
	Source               string           `json:"source"`
	Timestamp            time.Time        `json:"timestamp"`
	Metadata             map[string]any   `json:"metadata,omitempty"`

	signalID uint64
}

// MarketStrength and TelegramStrength are deliberately different ladders;
// the same confidence can bucket differently by origin.
func MarketStrength(confidence int) Strength {
	switch {
	case confidence >= 90:
		return StrengthCritical
	case confidence >= 85:
		return StrengthHigh
	case confidence >= 80:
		return StrengthMedium
	default:
		return StrengthLow
	}
}

func TelegramStrength(confidence int) Strength {
	switch {
	case confidence >= 90:
		return StrengthCritical
	case confidence >= 80:
		return StrengthHigh
	case confidence >= 70:
		return StrengthMedium
	default:
		return StrengthLow
	}
}

func fromMarket(s market.Signal, provider string) Entry {
	action := models.ActionBuy
	if s.PerformanceValue < 0 {
		action = models.ActionSell
	}
	cur, tgt := s.PriceMovement.Current, s.PriceMovement.Target
	return Entry{
		ID:            uuid.NewString(),
		Origin:        OriginMarket,
		Symbol:        s.Symbol,
		Action:        action,
		Confidence:    s.Confidence,
		Strength:      MarketStrength(s.Confidence),
		RiskLevel:     s.RiskLevel,
		Performance:   s.PerformanceValue,
		PriceMovement: PriceMovement{Current: &cur, Target: &tgt},
		Tags:          append([]string(nil), s.Tags...),
		Source:        provider,
		Timestamp:     s.GeneratedAt,
		Metadata: map[string]any{
			"name":       s.Name,
			"volume_24h": s.Volume24h,
			"market_cap": s.MarketCap,
		},
	}
}

func fromSignal(sig models.Signal) Entry {
	e := Entry{
		ID:                   "tg-" + strconv.FormatUint(sig.ID, 10),
		Origin:               OriginTelegram,
		Action:               models.Action(sig.Action),
		Confidence:           sig.Confidence,
		Strength:             TelegramStrength(sig.Confidence),
		Performance:          sig.Performance,
		PerformanceSynthetic: sig.PerformanceSynthetic,
		RiskReward:           sig.RiskReward,
		Source:               sig.SourceName,
		Timestamp:            sig.CreatedAt,
		signalID:             sig.ID,
	}
	if e.Action == "" {
		e.Action = models.ActionAlert
	}
	if sig.Token != nil {
		e.Symbol = *sig.Token
	}
	if sig.RiskLevel != nil {
		e.RiskLevel = models.RiskLevel(*sig.RiskLevel)
	}
	if sig.Price.Valid {
		v := sig.Price.Decimal.InexactFloat64()
		e.PriceMovement.Current = &v
	}
	if sig.Target.Valid {
		v := sig.Target.Decimal.InexactFloat64()
		e.PriceMovement.Target = &v
	}
	if e.Source == "" {
		e.Source = sig.SourceID
	}
	if len(sig.Tags) > 0 {
		_ = json.Unmarshal(sig.Tags, &e.Tags)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	meta := map[string]any{}
	if len(sig.Metadata) > 0 {
		_ = json.Unmarshal(sig.Metadata, &meta)
	}
	meta["source_id"] = sig.SourceID
	meta["message_id"] = sig.MessageID
	if sig.StopLoss.Valid {
		meta["stop_loss"] = sig.StopLoss.Decimal.String()
	}
	if sig.ConfidenceHint != nil {
		meta["confidence_hint"] = *sig.ConfidenceHint
	}
	e.Metadata = meta
	return e
}

// hourBucket keys a market signal so regenerating it within the same hour is
// a duplicate.
func hourBucket(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).Unix()
}

func marketSourceID(provider, symbol string) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(provider), strings.ToUpper(symbol))
}
