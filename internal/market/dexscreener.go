package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphafeed/internal/cache"
	"alphafeed/internal/metrics"
)

// DefaultDexSymbols is searched when no symbols are configured.
var DefaultDexSymbols = []string{"SOL", "ETH", "BTC", "BNB", "PEPE", "WIF", "BONK"}

// Dexscreener runs one /latest/dex/search per symbol and keeps the most
// liquid pair whose base token matches.
type Dexscreener struct {
	BaseURL string
	HTTP    *http.Client
	Cache   cache.Store
	TTL     time.Duration
	Logger  *zap.Logger

	health
}

type dexSearchResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"baseToken"`
	PriceUSD    string             `json:"priceUsd"`
	PriceChange map[string]float64 `json:"priceChange"`
	Volume      map[string]float64 `json:"volume"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
}

func (d *Dexscreener) Name() string { return "dexscreener" }

// Snapshots fails only when every symbol failed; partial results are kept.
func (d *Dexscreener) Snapshots(ctx context.Context, symbols []string) ([]Snapshot, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		symbols = DefaultDexSymbols
	}
	out := make([]Snapshot, 0, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		snap, ok, err := d.search(ctx, sym)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		if ok {
			out = append(out, snap)
		}
	}
	var err error
	if len(out) == 0 && len(errs) > 0 {
		err = errors.Join(errs...)
	} else if len(errs) > 0 && d.Logger != nil {
		d.Logger.Warn("dexscreener partial failure", zap.Int("failed", len(errs)), zap.Error(errors.Join(errs...)))
	}
	d.record(err)
	metrics.Upstream(d.Name(), err)
	return out, err
}

func (d *Dexscreener) search(ctx context.Context, symbol string) (Snapshot, bool, error) {
	query := map[string]string{"q": symbol}
	key := cacheKey(d.Name(), "search", query)

	var resp dexSearchResponse
	found, _ := cache.GetJSON(ctx, d.Cache, key, &resp)
	if !found {
		u, err := buildURL(d.BaseURL, "https://api.dexscreener.com", "/latest/dex/search", query)
		if err != nil {
			return Snapshot{}, false, err
		}
		if err := getJSON(ctx, d.HTTP, u, nil, &resp); err != nil {
			return Snapshot{}, false, err
		}
		ttl := d.TTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		_ = cache.SetJSON(ctx, d.Cache, key, resp, ttl)
	}

	best, ok := bestPair(resp.Pairs, symbol)
	if !ok {
		return Snapshot{}, false, nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(best.PriceUSD))
	if err != nil {
		return Snapshot{}, false, nil
	}
	mcap := best.MarketCap
	if mcap == 0 {
		mcap = best.FDV
	}
	return Snapshot{
		Symbol:    symbol,
		Name:      best.BaseToken.Name,
		Price:     price.InexactFloat64(),
		Change24h: best.PriceChange["h24"],
		Volume24h: best.Volume["h24"],
		MarketCap: mcap,
	}, true, nil
}

func bestPair(pairs []dexPair, symbol string) (dexPair, bool) {
	var best dexPair
	ok := false
	for _, p := range pairs {
		if !strings.EqualFold(strings.TrimSpace(p.BaseToken.Symbol), symbol) {
			continue
		}
		if !ok || p.Liquidity.USD > best.Liquidity.USD {
			best = p
			ok = true
		}
	}
	return best, ok
}
