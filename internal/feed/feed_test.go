package feed

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alphafeed/internal/market"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
	memrepository "alphafeed/internal/repository/memory"
	"alphafeed/internal/service"
)

type stubProvider struct {
	snaps []market.Snapshot
	err   error
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Snapshots(context.Context, []string) ([]market.Snapshot, error) {
	p.calls++
	return p.snaps, p.err
}

type stubFlags map[string]bool

func (f stubFlags) IsEnabled(_ context.Context, key string, fallback bool) bool {
	if v, ok := f[key]; ok {
		return v
	}
	return fallback
}

func chatSignal(t *testing.T, repo *memrepository.Store, msgID int64, token string, confidence int) {
	t.Helper()
	risk := string(models.RiskHigh)
	sig := &models.Signal{
		Source:      models.SignalSourceTelegram,
		SourceID:    "-100",
		MessageID:   msgID,
		SourceName:  "Alpha Calls",
		Token:       &token,
		Action:      string(models.ActionBuy),
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Target:      decimal.NewNullDecimal(decimal.NewFromInt(120)),
		RiskLevel:   &risk,
		Confidence:  confidence,
		Performance: 20,
		RiskReward:  "1:2.0",
	}
	if _, err := repo.InsertSignal(context.Background(), sig); err != nil {
		t.Fatalf("seed signal: %v", err)
	}
}

func newService(p market.Provider, repo *memrepository.Store) *Service {
	return &Service{
		Provider:      p,
		Generator:     market.NewGenerator(rand.New(rand.NewSource(1))),
		Repo:          repo,
		SignalWindow:  time.Hour,
		PersistMarket: true,
		FetchTimeout:  time.Second,
	}
}

func TestMarketStrength(t *testing.T) {
	cases := []struct {
		conf int
		want Strength
	}{
		{95, StrengthCritical},
		{90, StrengthCritical},
		{89, StrengthHigh},
		{85, StrengthHigh},
		{82, StrengthMedium},
		{80, StrengthMedium},
		{79, StrengthLow},
		{70, StrengthLow},
	}
	for _, tc := range cases {
		if got := MarketStrength(tc.conf); got != tc.want {
			t.Fatalf("MarketStrength(%d)=%s want %s", tc.conf, got, tc.want)
		}
	}
}

func TestTelegramStrength(t *testing.T) {
	cases := []struct {
		conf int
		want Strength
	}{
		{90, StrengthCritical},
		{89, StrengthHigh},
		{85, StrengthHigh},
		{82, StrengthHigh},
		{80, StrengthHigh},
		{79, StrengthMedium},
		{70, StrengthMedium},
		{69, StrengthLow},
	}
	for _, tc := range cases {
		if got := TelegramStrength(tc.conf); got != tc.want {
			t.Fatalf("TelegramStrength(%d)=%s want %s", tc.conf, got, tc.want)
		}
	}
}

func TestFetch_MarketDownChatUp(t *testing.T) {
	repo := memrepository.New()
	chatSignal(t, repo, 1, "SOL", 95)
	chatSignal(t, repo, 2, "ETH", 75)
	svc := newService(&stubProvider{err: errors.New("upstream 503")}, repo)

	resp := svc.Fetch(context.Background(), FetchOptions{})
	if !resp.IsRealData {
		t.Fatalf("expected real data from chat branch")
	}
	if !resp.Degraded {
		t.Fatalf("expected degraded")
	}
	if len(resp.Entries) != 2 || resp.Stats.Total != 2 {
		t.Fatalf("entries=%d total=%d", len(resp.Entries), resp.Stats.Total)
	}
	if resp.Sources[OriginMarket].Error == "" || !resp.Sources[OriginTelegram].OK {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}
	// Newest chat signal first.
	if resp.Entries[0].Symbol != "ETH" || resp.Entries[0].Strength != StrengthMedium {
		t.Fatalf("unexpected first entry: %+v", resp.Entries[0])
	}
	if resp.Stats.Critical != 1 || resp.Stats.HighConfidence != 1 || resp.Stats.AvgConfidence != 85 {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
	if resp.Stats.RiskDistribution["high"] != 2 || resp.Stats.Categories["Alpha Calls"] != 2 {
		t.Fatalf("unexpected distributions: %+v", resp.Stats)
	}
}

func TestFetch_TotalFailure(t *testing.T) {
	repo := memrepository.New()
	repo.ListErr = errors.New("db down")
	svc := newService(&stubProvider{err: errors.New("timeout")}, repo)

	resp := svc.Fetch(context.Background(), FetchOptions{})
	if resp.IsRealData {
		t.Fatalf("expected fallback response")
	}
	if len(resp.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(resp.Entries))
	}
	st := resp.Stats
	if st.Total != 0 || st.AvgConfidence != 0 || st.AvgPerformance != 0 || st.Critical != 0 {
		t.Fatalf("expected zero stats, got %+v", st)
	}
}

func TestFetch_MarketFilterAndOrder(t *testing.T) {
	repo := memrepository.New()
	chatSignal(t, repo, 1, "PEPE", 70)
	p := &stubProvider{snaps: []market.Snapshot{
		{Symbol: "BTC", Name: "Bitcoin", Price: 60000, Change24h: 1, Volume24h: 500_000},
		{Symbol: "SOL", Name: "Solana", Price: 150, Change24h: 12, Volume24h: 2_000_000_000},
		{Symbol: "DOGE", Name: "Dogecoin", Price: 0.1, Change24h: -7, Volume24h: 300_000},
	}}
	svc := newService(p, repo)

	resp := svc.Fetch(context.Background(), FetchOptions{})
	if len(resp.Entries) != 3 {
		t.Fatalf("expected 2 market + 1 chat entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Origin != OriginMarket || resp.Entries[1].Origin != OriginMarket || resp.Entries[2].Origin != OriginTelegram {
		t.Fatalf("expected market entries first")
	}
	for _, e := range resp.Entries[:2] {
		if e.Symbol == "BTC" {
			t.Fatalf("BTC should be filtered out")
		}
		if e.Symbol == "DOGE" && e.Action != models.ActionSell {
			t.Fatalf("falling market signal should be a sell, got %s", e.Action)
		}
	}
	if resp.Degraded || !resp.IsRealData {
		t.Fatalf("unexpected flags: degraded=%v real=%v", resp.Degraded, resp.IsRealData)
	}

	// Market signals are persisted once per symbol per hour.
	svc.Fetch(context.Background(), FetchOptions{})
	n, err := repo.CountSignals(context.Background(), listBySource(models.SignalSourceMarket))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 persisted market signals, got %d", n)
	}
}

func TestFetch_SortByConfidence(t *testing.T) {
	repo := memrepository.New()
	chatSignal(t, repo, 1, "AAA", 95)
	chatSignal(t, repo, 2, "BBB", 60)
	p := &stubProvider{snaps: []market.Snapshot{
		{Symbol: "SOL", Price: 150, Change24h: 6, Volume24h: 2_000_000},
	}}
	resp := newService(p, repo).Fetch(context.Background(), FetchOptions{Sort: SortConfidence})
	for i := 1; i < len(resp.Entries); i++ {
		if resp.Entries[i-1].Confidence < resp.Entries[i].Confidence {
			t.Fatalf("entries not sorted by confidence: %+v", resp.Entries)
		}
	}
}

func TestFetch_PersistFailureSwallowed(t *testing.T) {
	repo := memrepository.New()
	repo.SignalErr = errors.New("write failed")
	p := &stubProvider{snaps: []market.Snapshot{
		{Symbol: "SOL", Price: 150, Change24h: 12, Volume24h: 2_000_000},
	}}
	resp := newService(p, repo).Fetch(context.Background(), FetchOptions{})
	if len(resp.Entries) != 1 || resp.Degraded {
		t.Fatalf("persistence failure leaked into response: %+v", resp)
	}
}

func TestFetch_MarketSwitchOff(t *testing.T) {
	repo := memrepository.New()
	p := &stubProvider{snaps: []market.Snapshot{{Symbol: "SOL", Price: 150, Change24h: 12, Volume24h: 2_000_000}}}
	svc := newService(p, repo)
	svc.Flags = stubFlags{service.FeatureMarketSignals: false}

	resp := svc.Fetch(context.Background(), FetchOptions{})
	if p.calls != 0 {
		t.Fatalf("provider should not be called when switched off")
	}
	if !resp.Sources[OriginMarket].Skipped || resp.Degraded {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}
}

func TestFetch_MarkProcessed(t *testing.T) {
	repo := memrepository.New()
	chatSignal(t, repo, 1, "SOL", 80)
	svc := newService(nil, repo)

	svc.Fetch(context.Background(), FetchOptions{MarkProcessed: true})
	processed := false
	params := listBySource(models.SignalSourceTelegram)
	params.Processed = &processed
	n, _ := repo.CountSignals(context.Background(), params)
	if n != 0 {
		t.Fatalf("expected all chat signals processed, %d left", n)
	}
}

func TestComputeStats_AbsolutePerformance(t *testing.T) {
	st := ComputeStats([]Entry{
		{Origin: OriginMarket, Confidence: 91, Strength: StrengthCritical, Performance: -10, RiskLevel: models.RiskHigh, Tags: []string{"TRENDING"}},
		{Origin: OriginTelegram, Confidence: 70, Strength: StrengthMedium, Performance: 5, Source: "chat"},
	})
	if st.AvgPerformance != 7.5 {
		t.Fatalf("expected mean absolute performance 7.5, got %v", st.AvgPerformance)
	}
	if st.AvgConfidence != 81 || st.HighConfidence != 1 || st.Critical != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.Categories["TRENDING"] != 1 || st.Categories["chat"] != 1 {
		t.Fatalf("unexpected categories: %+v", st.Categories)
	}
}

func listBySource(source string) repository.ListSignalsParams {
	return repository.ListSignalsParams{Source: &source}
}
