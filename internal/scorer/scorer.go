// Package scorer turns an extracted chat signal into a scored one.
package scorer

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"alphafeed/internal/extractor"
	"alphafeed/internal/models"
)

const (
	MinConfidence  = 60
	MaxConfidence  = 95
	baseConfidence = 60

	// Synthetic performance is drawn from [-syntheticSpan, syntheticSpan].
	syntheticSpan = 25.0

	DefaultRiskReward = "1:2.0"
)

type Scored struct {
	Confidence           int     `json:"confidence"`
	Performance          float64 `json:"performance"`
	PerformanceSynthetic bool    `json:"performance_synthetic"`
	RiskReward           string  `json:"risk_reward"`
}

// Confidence adds a fixed weight per populated field and clamps to
// [MinConfidence, MaxConfidence]. A textual confidence hint never feeds in.
func Confidence(r *extractor.Result, isBot bool) int {
	if r == nil {
		return MinConfidence
	}
	score := baseConfidence
	if r.Price != nil {
		score += 10
	}
	if r.Target != nil {
		score += 10
	}
	if r.StopLoss != nil {
		score += 5
	}
	if r.Action != nil && *r.Action != models.ActionAlert {
		score += 10
	}
	if r.RiskLevel != nil {
		score += 5
	}
	if isBot {
		score += 5
	}
	return clamp(score, MinConfidence, MaxConfidence)
}

// Performance returns the projected move to target in percent. Without a
// usable price/target pair it falls back to a draw from rng and reports the
// value as synthetic.
func Performance(r *extractor.Result, rng *rand.Rand) (float64, bool) {
	if r != nil && r.Price != nil && r.Target != nil && r.Price.IsPositive() {
		pct := r.Target.Sub(*r.Price).Div(*r.Price).Mul(decimal.NewFromInt(100))
		return pct.Round(4).InexactFloat64(), false
	}
	if rng == nil {
		return 0, true
	}
	return rng.Float64()*2*syntheticSpan - syntheticSpan, true
}

// RiskReward renders reward over risk as "1:R" with one decimal.
func RiskReward(r *extractor.Result) string {
	if r == nil || r.Price == nil || r.Target == nil || r.StopLoss == nil {
		return DefaultRiskReward
	}
	risk := r.Price.Sub(*r.StopLoss).Abs()
	if risk.IsZero() {
		return DefaultRiskReward
	}
	reward := r.Target.Sub(*r.Price).Abs()
	return fmt.Sprintf("1:%s", reward.Div(risk).StringFixed(1))
}

func Score(r *extractor.Result, isBot bool, rng *rand.Rand) Scored {
	perf, synthetic := Performance(r, rng)
	return Scored{
		Confidence:           Confidence(r, isBot),
		Performance:          perf,
		PerformanceSynthetic: synthetic,
		RiskReward:           RiskReward(r),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
