package market

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"alphafeed/internal/cache"
	"alphafeed/internal/config"
)

type HealthReporter interface {
	Health() HealthStatus
}

func NewProvider(cfg config.MarketConfig, store cache.Store, logger *zap.Logger) (Provider, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "", "coingecko":
		return &CoinGecko{
			BaseURL:    cfg.CoinGeckoURL,
			APIKey:     cfg.CoinGeckoKey,
			VsCurrency: cfg.VsCurrency,
			PerPage:    cfg.PerPage,
			HTTP:       client,
			Cache:      store,
			TTL:        cfg.CacheTTL,
			Logger:     logger,
		}, nil
	case "dexscreener":
		return &Dexscreener{
			BaseURL: cfg.DexscreenerURL,
			HTTP:    client,
			Cache:   store,
			TTL:     cfg.CacheTTL,
			Logger:  logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown market provider %q", cfg.Provider)
	}
}
