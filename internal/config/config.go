package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Market   MarketConfig   `mapstructure:"market"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Settings SettingsConfig `mapstructure:"settings"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TelegramPoll string `mapstructure:"telegram_poll"`
	Reprocess    string `mapstructure:"reprocess"`
	MarketWarmup string `mapstructure:"market_warmup"`
}

// TelegramConfig covers both ingest modes. In "webhook" mode updates arrive on
// POST /api/v1/telegram/webhook; in "poll" mode the cron runner calls getUpdates.
type TelegramConfig struct {
	BotToken           string        `mapstructure:"bot_token"`
	APIBase            string        `mapstructure:"api_base"`
	Mode               string        `mapstructure:"mode"`
	WebhookURL         string        `mapstructure:"webhook_url"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"`
	PollLimit          int           `mapstructure:"poll_limit"`
	Timeout            time.Duration `mapstructure:"timeout"`
	AlertChatID        string        `mapstructure:"alert_chat_id"`
	AlertMinConfidence int           `mapstructure:"alert_min_confidence"`
	WebhookQueueSize   int           `mapstructure:"webhook_queue_size"`
	WebhookWorkers     int           `mapstructure:"webhook_workers"`
}

type MarketConfig struct {
	Provider       string        `mapstructure:"provider"`
	CoinGeckoURL   string        `mapstructure:"coingecko_url"`
	CoinGeckoKey   string        `mapstructure:"coingecko_key"`
	DexscreenerURL string        `mapstructure:"dexscreener_url"`
	VsCurrency     string        `mapstructure:"vs_currency"`
	Symbols        []string      `mapstructure:"symbols"`
	PerPage        int           `mapstructure:"per_page"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	// Seed pins the jitter source; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type FeedConfig struct {
	DefaultLimit         int           `mapstructure:"default_limit"`
	SignalWindow         time.Duration `mapstructure:"signal_window"`
	PersistMarketSignals bool          `mapstructure:"persist_market_signals"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
}

// SettingsConfig holds the keys sealing sensitive runtime settings. The
// previous key is only used to open values written before a rotation.
type SettingsConfig struct {
	EncryptionKey     string `mapstructure:"encryption_key"`
	PrevEncryptionKey string `mapstructure:"prev_encryption_key"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.telegram_poll", "@every 5s")
	v.SetDefault("cron.reprocess", "@every 2m")
	v.SetDefault("cron.market_warmup", "@every 1m")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.mode", "webhook")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.poll_timeout", "0s")
	v.SetDefault("telegram.poll_limit", 100)
	v.SetDefault("telegram.timeout", "10s")
	v.SetDefault("telegram.alert_chat_id", "")
	v.SetDefault("telegram.alert_min_confidence", 90)
	v.SetDefault("telegram.webhook_queue_size", 256)
	v.SetDefault("telegram.webhook_workers", 4)

	v.SetDefault("market.provider", "coingecko")
	v.SetDefault("market.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.coingecko_key", "")
	v.SetDefault("market.dexscreener_url", "https://api.dexscreener.com")
	v.SetDefault("market.vs_currency", "usd")
	v.SetDefault("market.symbols", []string{})
	v.SetDefault("market.per_page", 100)
	v.SetDefault("market.timeout", "8s")
	v.SetDefault("market.cache_ttl", "60s")
	v.SetDefault("market.seed", 0)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "alphafeed")

	v.SetDefault("feed.default_limit", 50)
	v.SetDefault("feed.signal_window", "24h")
	v.SetDefault("feed.persist_market_signals", true)
	v.SetDefault("feed.fetch_timeout", "12s")

	v.SetDefault("settings.encryption_key", "")
	v.SetDefault("settings.prev_encryption_key", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Telegram.Mode = strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode))
	cfg.Market.Provider = strings.ToLower(strings.TrimSpace(cfg.Market.Provider))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	return cfg, nil
}
