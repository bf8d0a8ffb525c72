package ingest

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"alphafeed/internal/extractor"
	"alphafeed/internal/models"
	"alphafeed/internal/scorer"
)

const snippetLen = 280

// BuildSignal assembles the persisted row for a chat-derived signal.
func BuildSignal(msg models.TelegramMessage, r *extractor.Result, s scorer.Scored) models.Signal {
	sig := models.Signal{
		Source:               models.SignalSourceTelegram,
		SourceID:             msg.SourceID,
		MessageID:            msg.MessageID,
		SourceName:           msg.SourceName,
		IsBot:                msg.IsBot,
		Token:                r.Token,
		Action:               string(r.ActionOrAlert()),
		Price:                nullDecimal(r.Price),
		Target:               nullDecimal(r.Target),
		StopLoss:             nullDecimal(r.StopLoss),
		Confidence:           s.Confidence,
		ConfidenceHint:       r.Confidence,
		Performance:          s.Performance,
		PerformanceSynthetic: s.PerformanceSynthetic,
		RiskReward:           s.RiskReward,
		CreatedAt:            msg.Timestamp,
	}
	if r.RiskLevel != nil {
		risk := string(*r.RiskLevel)
		sig.RiskLevel = &risk
	}
	tags := []string{models.SignalSourceTelegram}
	if msg.ChatType != "" {
		tags = append(tags, msg.ChatType)
	}
	if msg.IsBot {
		tags = append(tags, "bot")
	}
	sig.Tags = mustJSON(tags)

	meta := map[string]any{
		"text":      snippet(msg.Text),
		"chat_type": msg.ChatType,
		"edited":    msg.Edited,
	}
	if msg.SenderUsername != nil {
		meta["sender_username"] = *msg.SenderUsername
	}
	sig.Metadata = mustJSON(meta)
	return sig
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	return string([]rune(s)[:snippetLen]) + "…"
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
