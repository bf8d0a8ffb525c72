// Package feed merges market-derived and chat-derived signals into one ranked
// feed with summary statistics.
package feed

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/shopspring/decimal"

	"alphafeed/internal/market"
	"alphafeed/internal/metrics"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
	"alphafeed/internal/service"
)

const (
	SortSource     = "source"
	SortConfidence = "confidence"
	SortTime       = "time"

	highConfidence = 85
)

type FlagReader interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

// Service holds only collaborators; every Fetch is independent.
type Service struct {
	Provider      market.Provider
	Generator     *market.Generator
	Repo          repository.Repository
	Flags         FlagReader
	Logger        *zap.Logger
	Symbols       []string
	SignalWindow  time.Duration
	PersistMarket bool
	FetchTimeout  time.Duration
	DefaultLimit  int
}

type FetchOptions struct {
	Limit         int
	Sort          string
	MarkProcessed bool
}

type SourceStatus struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

type Stats struct {
	Total            int            `json:"total"`
	HighConfidence   int            `json:"high_confidence"`
	Critical         int            `json:"critical"`
	AvgConfidence    int            `json:"avg_confidence"`
	Categories       map[string]int `json:"categories"`
	RiskDistribution map[string]int `json:"risk_distribution"`
	AvgPerformance   float64        `json:"avg_performance"`
}

type Response struct {
	Entries     []Entry                 `json:"entries"`
	Stats       Stats                   `json:"stats"`
	IsRealData  bool                    `json:"is_real_data"`
	Degraded    bool                    `json:"degraded"`
	Sources     map[string]SourceStatus `json:"sources"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Fetch never fails. Each branch that errors contributes nothing and is
// reported in Sources; with both branches empty the response carries no
// entries, zero stats and IsRealData=false.
func (s *Service) Fetch(ctx context.Context, opts FetchOptions) Response {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if limit <= 0 {
		limit = 50
	}
	fetchCtx := ctx
	if s.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.FetchTimeout)
		defer cancel()
	}

	var (
		marketSignals []market.Signal
		chatSignals   []models.Signal
		marketStatus  SourceStatus
		chatStatus    SourceStatus
	)
	var g errgroup.Group
	g.Go(func() error {
		marketSignals, marketStatus = s.fetchMarket(fetchCtx, limit)
		return nil
	})
	g.Go(func() error {
		chatSignals, chatStatus = s.fetchChat(fetchCtx, limit)
		return nil
	})
	_ = g.Wait()

	provider := s.providerName()
	entries := make([]Entry, 0, len(marketSignals)+len(chatSignals))
	for _, m := range marketSignals {
		entries = append(entries, fromMarket(m, provider))
	}
	for _, c := range chatSignals {
		entries = append(entries, fromSignal(c))
	}
	sortEntries(entries, opts.Sort)

	resp := Response{
		Entries:     entries,
		Stats:       ComputeStats(entries),
		IsRealData:  len(marketSignals) > 0 || len(chatSignals) > 0,
		Degraded:    (!marketStatus.OK && !marketStatus.Skipped) || !chatStatus.OK,
		Sources:     map[string]SourceStatus{OriginMarket: marketStatus, OriginTelegram: chatStatus},
		GeneratedAt: time.Now().UTC(),
	}

	if s.PersistMarket && s.Repo != nil && len(marketSignals) > 0 {
		s.persistMarket(ctx, provider, marketSignals)
	}
	if opts.MarkProcessed && s.Repo != nil {
		s.markProcessed(ctx, entries)
	}

	quality := "live"
	switch {
	case !resp.IsRealData:
		quality = "empty"
	case resp.Degraded:
		quality = "degraded"
	}
	metrics.FeedFetches.WithLabelValues(quality).Inc()
	return resp
}

func (s *Service) fetchMarket(ctx context.Context, limit int) ([]market.Signal, SourceStatus) {
	if s.Provider == nil || s.Generator == nil {
		return nil, SourceStatus{Skipped: true}
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, service.FeatureMarketSignals, true) {
		return nil, SourceStatus{Skipped: true}
	}
	snaps, err := s.Provider.Snapshots(ctx, s.Symbols)
	if err != nil {
		s.logger().Warn("market snapshots failed", zap.String("provider", s.Provider.Name()), zap.Error(err))
		return nil, SourceStatus{Error: err.Error()}
	}
	out := s.Generator.Generate(snaps)
	if len(out) > limit {
		out = out[:limit]
	}
	metrics.SignalsExtracted.WithLabelValues(models.SignalSourceMarket).Add(float64(len(out)))
	return out, SourceStatus{OK: true, Count: len(out)}
}

func (s *Service) fetchChat(ctx context.Context, limit int) ([]models.Signal, SourceStatus) {
	if s.Repo == nil {
		return nil, SourceStatus{Error: "repository not configured"}
	}
	source := models.SignalSourceTelegram
	params := repository.ListSignalsParams{Source: &source, Limit: limit, OrderBy: "created_at"}
	if s.SignalWindow > 0 {
		since := time.Now().UTC().Add(-s.SignalWindow)
		params.Since = &since
	}
	items, err := s.Repo.ListSignals(ctx, params)
	if err != nil {
		s.logger().Warn("chat signals query failed", zap.Error(err))
		return nil, SourceStatus{Error: err.Error()}
	}
	return items, SourceStatus{OK: true, Count: len(items)}
}

// persistMarket stores generated market signals, one row per symbol per hour.
// Failures are logged and counted only.
func (s *Service) persistMarket(ctx context.Context, provider string, signals []market.Signal) {
	for _, m := range signals {
		row := marketRow(provider, m)
		if _, err := s.Repo.InsertSignal(ctx, &row); err != nil {
			metrics.PersistErrors.WithLabelValues("market_signal").Inc()
			s.logger().Warn("market signal persist failed", zap.String("symbol", m.Symbol), zap.Error(err))
		}
	}
}

func (s *Service) markProcessed(ctx context.Context, entries []Entry) {
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.Origin == OriginTelegram && e.signalID > 0 {
			ids = append(ids, e.signalID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if _, err := s.Repo.MarkSignalsProcessed(ctx, ids); err != nil {
		s.logger().Warn("mark signals processed failed", zap.Error(err))
	}
}

func marketRow(provider string, m market.Signal) models.Signal {
	sym := m.Symbol
	risk := string(m.RiskLevel)
	action := models.ActionBuy
	if m.PerformanceValue < 0 {
		action = models.ActionSell
	}
	tags, _ := json.Marshal(m.Tags)
	meta, _ := json.Marshal(map[string]any{
		"name":       m.Name,
		"volume_24h": m.Volume24h,
		"market_cap": m.MarketCap,
		"provider":   provider,
	})
	return models.Signal{
		Source:      models.SignalSourceMarket,
		SourceID:    marketSourceID(provider, m.Symbol),
		MessageID:   hourBucket(m.GeneratedAt),
		SourceName:  provider,
		Token:       &sym,
		Action:      string(action),
		Price:       decimal.NewNullDecimal(decimal.NewFromFloat(m.PriceMovement.Current)),
		Target:      decimal.NewNullDecimal(decimal.NewFromFloat(m.PriceMovement.Target)),
		RiskLevel:   &risk,
		Confidence:  m.Confidence,
		Performance: m.PerformanceValue,
		Tags:        datatypes.JSON(tags),
		Metadata:    datatypes.JSON(meta),
		CreatedAt:   m.GeneratedAt,
	}
}

// sortEntries keeps source order (market, then chat) unless asked otherwise.
func sortEntries(entries []Entry, mode string) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case SortConfidence:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Confidence > entries[j].Confidence })
	case SortTime:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	}
}

func ComputeStats(entries []Entry) Stats {
	st := Stats{
		Categories: map[string]int{},
		RiskDistribution: map[string]int{
			string(models.RiskLow):    0,
			string(models.RiskMedium): 0,
			string(models.RiskHigh):   0,
		},
	}
	if len(entries) == 0 {
		return st
	}
	var confSum int
	var perfSum float64
	for _, e := range entries {
		st.Total++
		confSum += e.Confidence
		perfSum += math.Abs(e.Performance)
		if e.Confidence >= highConfidence {
			st.HighConfidence++
		}
		if e.Strength == StrengthCritical {
			st.Critical++
		}
		if e.RiskLevel != "" {
			st.RiskDistribution[string(e.RiskLevel)]++
		}
		if e.Origin == OriginMarket {
			for _, tag := range e.Tags {
				st.Categories[tag]++
			}
		} else if e.Source != "" {
			st.Categories[e.Source]++
		}
	}
	st.AvgConfidence = int(math.Round(float64(confSum) / float64(st.Total)))
	st.AvgPerformance = math.Round(perfSum/float64(st.Total)*100) / 100
	return st
}

func (s *Service) providerName() string {
	if s.Provider == nil {
		return ""
	}
	return s.Provider.Name()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
