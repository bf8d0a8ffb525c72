package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"alphafeed/internal/cache"
	"alphafeed/internal/metrics"
)

// CoinGecko reads /coins/markets. With no symbols it returns the top PerPage
// coins by market cap.
type CoinGecko struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	PerPage    int
	HTTP       *http.Client
	Cache      cache.Store
	TTL        time.Duration
	Logger     *zap.Logger

	health
}

type coinGeckoMarket struct {
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	TotalVolume              *float64 `json:"total_volume"`
	MarketCap                *float64 `json:"market_cap"`
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Snapshots(ctx context.Context, symbols []string) ([]Snapshot, error) {
	out, err := c.snapshots(ctx, normalizeSymbols(symbols))
	c.record(err)
	metrics.Upstream(c.Name(), err)
	return out, err
}

func (c *CoinGecko) snapshots(ctx context.Context, symbols []string) ([]Snapshot, error) {
	vs := strings.ToLower(strings.TrimSpace(c.VsCurrency))
	if vs == "" {
		vs = "usd"
	}
	perPage := c.PerPage
	if perPage <= 0 || perPage > 250 {
		perPage = 100
	}
	query := map[string]string{
		"vs_currency":             vs,
		"order":                   "market_cap_desc",
		"per_page":                strconv.Itoa(perPage),
		"page":                    "1",
		"price_change_percentage": "24h",
	}
	if len(symbols) > 0 {
		query["symbols"] = strings.ToLower(strings.Join(symbols, ","))
	}
	key := cacheKey(c.Name(), "markets", query)

	var rows []coinGeckoMarket
	if found, err := cache.GetJSON(ctx, c.Cache, key, &rows); err != nil && c.Logger != nil {
		c.Logger.Debug("coingecko cache read failed", zap.Error(err))
	} else if found {
		return toCoinGeckoSnapshots(rows), nil
	}

	u, err := buildURL(c.BaseURL, "https://api.coingecko.com/api/v3", "/coins/markets", query)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if k := strings.TrimSpace(c.APIKey); k != "" {
		header.Set("x-cg-demo-api-key", k)
	}
	if err := getJSON(ctx, c.HTTP, u, header, &rows); err != nil {
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if err := cache.SetJSON(ctx, c.Cache, key, rows, ttl); err != nil && c.Logger != nil {
		c.Logger.Debug("coingecko cache write failed", zap.Error(err))
	}
	return toCoinGeckoSnapshots(rows), nil
}

// Rows without a price are skipped; other missing numbers read as zero.
func toCoinGeckoSnapshots(rows []coinGeckoMarket) []Snapshot {
	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		if r.CurrentPrice == nil || strings.TrimSpace(r.Symbol) == "" {
			continue
		}
		out = append(out, Snapshot{
			Symbol:    strings.ToUpper(r.Symbol),
			Name:      r.Name,
			Price:     *r.CurrentPrice,
			Change24h: deref(r.PriceChangePercentage24h),
			Volume24h: deref(r.TotalVolume),
			MarketCap: deref(r.MarketCap),
		})
	}
	return out
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
