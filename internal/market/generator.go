package market

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"alphafeed/internal/models"
)

const (
	minConfidence = 60
	maxConfidence = 95

	moveThreshold   = 5.0
	volumeThreshold = 1_000_000.0

	highVolatility = 15.0
	highVolume     = 100_000_000.0

	TagHighVolatility  = "HIGH_VOLATILITY"
	TagTrending        = "TRENDING"
	TagHighVolume      = "HIGH_VOLUME"
	TagEmerging        = "EMERGING"
	TagBullishMomentum = "BULLISH_MOMENTUM"
	TagBearishSignal   = "BEARISH_SIGNAL"
)

type PriceMovement struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

type Signal struct {
	Symbol           string           `json:"symbol"`
	Name             string           `json:"name"`
	Confidence       int              `json:"confidence"`
	PerformanceValue float64          `json:"performance_value"`
	PriceMovement    PriceMovement    `json:"price_movement"`
	RiskLevel        models.RiskLevel `json:"risk_level"`
	Tags             []string         `json:"tags"`
	Volume24h        float64          `json:"volume_24h"`
	MarketCap        float64          `json:"market_cap"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// Generator scores snapshots. The rand source only jitters price targets;
// seed it to make targets reproducible. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng, now: time.Now}
}

// Generate keeps only snapshots that moved more than 5% or traded more than
// 1M in 24h and returns one signal per kept snapshot, in input order.
func (g *Generator) Generate(snapshots []Snapshot) []Signal {
	out := make([]Signal, 0, len(snapshots))
	now := g.now().UTC()
	for _, s := range snapshots {
		if !Interesting(s) {
			continue
		}
		vol := math.Abs(s.Change24h)
		out = append(out, Signal{
			Symbol:           strings.ToUpper(s.Symbol),
			Name:             s.Name,
			Confidence:       Confidence(vol, s.Volume24h),
			PerformanceValue: s.Change24h,
			PriceMovement: PriceMovement{
				Current: s.Price,
				Target:  s.Price * TargetMultiplier(s.Change24h, g.draw()),
			},
			RiskLevel:   Risk(vol),
			Tags:        Tags(s),
			Volume24h:   s.Volume24h,
			MarketCap:   s.MarketCap,
			GeneratedAt: now,
		})
	}
	return out
}

func (g *Generator) draw() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func Interesting(s Snapshot) bool {
	return math.Abs(s.Change24h) > moveThreshold || s.Volume24h > volumeThreshold
}

// Confidence is clamp(60, 95, 50 + vol*2 + log10(volume)*3), rounded.
func Confidence(volatility, volume float64) int {
	score := 50 + volatility*2
	if volume > 0 {
		score += math.Log10(volume) * 3
	}
	score = math.Round(score)
	if score < minConfidence {
		return minConfidence
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return int(score)
}

func Risk(volatility float64) models.RiskLevel {
	switch {
	case volatility > 20:
		return models.RiskHigh
	case volatility > 10:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// TargetMultiplier extrapolates the 24h move. Downside targets are damped
// relative to upside ones; r in [0,1) adds jitter.
func TargetMultiplier(change, r float64) float64 {
	vol := math.Abs(change)
	if change > 0 {
		return 1 + vol/100*(1+r*0.5)
	}
	return 1 - vol/100*(0.5+r*0.3)
}

func Tags(s Snapshot) []string {
	tags := make([]string, 0, 3)
	if math.Abs(s.Change24h) > highVolatility {
		tags = append(tags, TagHighVolatility)
	} else {
		tags = append(tags, TagTrending)
	}
	if s.Volume24h > highVolume {
		tags = append(tags, TagHighVolume)
	} else {
		tags = append(tags, TagEmerging)
	}
	if s.Change24h > 0 {
		tags = append(tags, TagBullishMomentum)
	} else {
		tags = append(tags, TagBearishSignal)
	}
	return tags
}
