package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"alphafeed/internal/cache"
	"alphafeed/internal/config"
)

func TestCoinGecko_SnapshotsAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/coins/markets" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "sol,eth" {
			t.Errorf("symbols=%q", got)
		}
		if got := r.Header.Get("x-cg-demo-api-key"); got != "k" {
			t.Errorf("api key header=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol":"sol","name":"Solana","current_price":180.5,"price_change_percentage_24h":7.2,"total_volume":2500000000,"market_cap":80000000000},
			{"symbol":"eth","name":"Ethereum","current_price":3100,"price_change_percentage_24h":null,"total_volume":1,"market_cap":1},
			{"symbol":"dead","name":"No Price","current_price":null}
		]`))
	}))
	defer srv.Close()

	cg := &CoinGecko{BaseURL: srv.URL, APIKey: "k", Cache: cache.NewMemoryStore()}
	got, err := cg.Snapshots(context.Background(), []string{"$sol", "ETH", "sol"})
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got[0].Symbol != "SOL" || got[0].Price != 180.5 || got[0].Change24h != 7.2 {
		t.Fatalf("unexpected %+v", got[0])
	}
	if got[1].Change24h != 0 {
		t.Fatalf("null change should read as zero, got %v", got[1].Change24h)
	}

	if _, err := cg.Snapshots(context.Background(), []string{"SOL", "ETH"}); err != nil {
		t.Fatalf("cached snapshots: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("upstream calls=%d want 1", n)
	}
	if h := cg.Health(); h.Status != "ok" || h.LastPollAt == nil {
		t.Fatalf("health=%+v", h)
	}
}

func TestCoinGecko_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cg := &CoinGecko{BaseURL: srv.URL}
	if _, err := cg.Snapshots(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
	h := cg.Health()
	if h.Status != "down" || h.LastError == nil {
		t.Fatalf("health=%+v", h)
	}
}

func TestDexscreener_PicksMostLiquidPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/search" {
			t.Errorf("path=%s", r.URL.Path)
		}
		switch r.URL.Query().Get("q") {
		case "WIF":
			_, _ = w.Write([]byte(`{"pairs":[
				{"chainId":"solana","baseToken":{"symbol":"WIF","name":"dogwifhat"},"priceUsd":"2.10","priceChange":{"h24":12.5},"volume":{"h24":900000},"liquidity":{"usd":1000},"fdv":2000000000},
				{"chainId":"solana","baseToken":{"symbol":"WIF","name":"dogwifhat"},"priceUsd":"2.15","priceChange":{"h24":11},"volume":{"h24":50000000},"liquidity":{"usd":9000000},"marketCap":2100000000},
				{"chainId":"solana","baseToken":{"symbol":"USDC","name":"USD Coin"},"priceUsd":"1","liquidity":{"usd":99999999}}
			]}`))
		case "NOPE":
			_, _ = w.Write([]byte(`{"pairs":[]}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	d := &Dexscreener{BaseURL: srv.URL}
	got, err := d.Snapshots(context.Background(), []string{"wif", "nope", "err"})
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len=%d want 1", len(got))
	}
	if got[0].Symbol != "WIF" || got[0].Price != 2.15 || got[0].Volume24h != 50000000 || got[0].MarketCap != 2100000000 {
		t.Fatalf("unexpected %+v", got[0])
	}

	if _, err := d.Snapshots(context.Background(), []string{"err"}); err == nil {
		t.Fatalf("expected error when every symbol fails")
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.MarketConfig{Provider: "dexscreener"}, nil, nil)
	if err != nil || p.Name() != "dexscreener" {
		t.Fatalf("p=%v err=%v", p, err)
	}
	p, err = NewProvider(config.MarketConfig{}, nil, nil)
	if err != nil || p.Name() != "coingecko" {
		t.Fatalf("p=%v err=%v", p, err)
	}
	if _, err := NewProvider(config.MarketConfig{Provider: "binance"}, nil, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
