// Package extractor turns free-form chat text into a structured trading signal.
//
// Each field is extracted by its own pure function so the families can be
// tested in isolation; Extract combines them. Within a family the first match
// in scan order wins and no family looks at what another one matched.
package extractor

import (
	"strings"

	"github.com/shopspring/decimal"

	"alphafeed/internal/models"
)

type Result struct {
	Token     *string           `json:"token,omitempty"`
	Action    *models.Action    `json:"action,omitempty"`
	Price     *decimal.Decimal  `json:"price,omitempty"`
	Target    *decimal.Decimal  `json:"target,omitempty"`
	StopLoss  *decimal.Decimal  `json:"stop_loss,omitempty"`
	RiskLevel *models.RiskLevel `json:"risk_level,omitempty"`
	// Confidence is the number the author wrote, a hint only.
	Confidence *float64 `json:"confidence,omitempty"`
}

// ActionOrAlert returns the extracted action, alert when none was found.
func (r *Result) ActionOrAlert() models.Action {
	if r == nil || r.Action == nil {
		return models.ActionAlert
	}
	return *r.Action
}

// Extract returns nil unless at least one of token, action or price resolved.
func Extract(text string) *Result {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	r := &Result{
		Token:      ExtractToken(text),
		Action:     ExtractAction(text),
		Price:      ExtractPrice(text),
		Target:     ExtractTarget(text),
		StopLoss:   ExtractStopLoss(text),
		RiskLevel:  ExtractRiskLevel(text),
		Confidence: ExtractConfidence(text),
	}
	if r.Token == nil && r.Action == nil && r.Price == nil {
		return nil
	}
	return r
}
