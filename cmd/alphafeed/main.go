package main

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"alphafeed/internal/cache"
	"alphafeed/internal/client/telegram"
	"alphafeed/internal/config"
	cronrunner "alphafeed/internal/cron"
	"alphafeed/internal/db"
	"alphafeed/internal/feed"
	"alphafeed/internal/handler"
	"alphafeed/internal/ingest"
	"alphafeed/internal/logger"
	"alphafeed/internal/market"
	"alphafeed/internal/metrics"
	"alphafeed/internal/middleware"
	"alphafeed/internal/repository"
	gormrepository "alphafeed/internal/repository/gorm"
	memrepository "alphafeed/internal/repository/memory"
	"alphafeed/internal/service"

	_ "alphafeed/docs"
)

func main() {
	cfgPath := os.Getenv("AF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repository.Repository
	if db.Configured(cfg.DB) {
		dbConn, err := db.Open(cfg.DB, cfg.Log.Development)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Warn("db.dsn empty, using in-memory repository; data is lost on restart")
		store = memrepository.New()
	}

	sealer, err := service.NewSettingsSealer(cfg.Settings.EncryptionKey, cfg.Settings.PrevEncryptionKey)
	if err != nil {
		logger.Fatal("settings encryption key", zap.Error(err))
	}
	settingsSvc := &service.SystemSettingsService{Repo: store, Sealer: sealer}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}
	loadSecret(ctx, settingsSvc, service.SettingCoinGeckoAPIKey, &cfg.Market.CoinGeckoKey, logger)
	loadSecret(ctx, settingsSvc, service.SettingBotToken, &cfg.Telegram.BotToken, logger)

	cacheStore, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		logger.Warn("cache backend unavailable, falling back to memory", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
		cacheStore = cache.NewMemoryStore()
	}
	if c, ok := cacheStore.(io.Closer); ok {
		defer c.Close()
	}

	provider, err := market.NewProvider(cfg.Market, cacheStore, logger.Named("market"))
	if err != nil {
		logger.Fatal("market provider", zap.Error(err))
	}
	seed := cfg.Market.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	tgHTTP := &http.Client{Timeout: cfg.Telegram.Timeout + cfg.Telegram.PollTimeout}
	tgClient := telegram.NewClient(tgHTTP, cfg.Telegram.APIBase, cfg.Telegram.BotToken)

	ingestor := ingest.New(store, rand.New(rand.NewSource(seed+1)), logger.Named("ingest"))
	notifier := &service.AlertNotifier{
		Sender:        tgClient,
		ChatID:        cfg.Telegram.AlertChatID,
		MinConfidence: cfg.Telegram.AlertMinConfidence,
		Flags:         settingsSvc,
		Logger:        logger,
	}
	if tgClient.Configured() && cfg.Telegram.AlertChatID != "" {
		ingestor.Notifier = notifier
	}

	webhookQueue := ingest.NewQueue(ingestor, ingest.QueueOptions{
		Size:    cfg.Telegram.WebhookQueueSize,
		Workers: cfg.Telegram.WebhookWorkers,
	}, logger.Named("webhook_queue"))

	feedSvc := &feed.Service{
		Provider:      provider,
		Generator:     market.NewGenerator(rand.New(rand.NewSource(seed))),
		Repo:          store,
		Flags:         settingsSvc,
		Logger:        logger.Named("feed"),
		Symbols:       cfg.Market.Symbols,
		SignalWindow:  cfg.Feed.SignalWindow,
		PersistMarket: cfg.Feed.PersistMarketSignals,
		FetchTimeout:  cfg.Feed.FetchTimeout,
		DefaultLimit:  cfg.Feed.DefaultLimit,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(logger.Named("http")))
	engine.Use(metrics.Middleware())
	if cfg.Auth.Enabled {
		if cfg.Auth.JWTSecret == "" {
			logger.Fatal("auth.enabled requires auth.jwt_secret")
		}
		engine.Use(middleware.RequireBearer(middleware.JWT{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		}))
	}

	(&handler.HealthHandler{Store: store}).Register(engine)
	handler.RegisterDocs(engine)
	metrics.Register(engine)
	(&handler.FeedHandler{Feed: feedSvc}).Register(engine)
	(&handler.SignalHandler{Repo: store}).Register(engine)
	(&handler.ExtractHandler{Extractor: ingestor}).Register(engine)
	(&handler.TelegramHandler{
		Ingestor: webhookQueue,
		Repo:     store,
		Secret:   cfg.Telegram.WebhookSecret,
		Logger:   logger.Named("webhook"),
	}).Register(engine)
	(&handler.SettingsHandler{Repo: store, Settings: settingsSvc, Sealer: sealer}).Register(engine)
	pipeline := &handler.PipelineHandler{Repo: store, PollScope: service.TelegramPollScope}
	if hr, ok := provider.(market.HealthReporter); ok {
		pipeline.Market = hr
	}
	pipeline.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if tgClient.Configured() {
		deliveryCtx, cancel := context.WithTimeout(ctx, cfg.Telegram.Timeout)
		if err := service.ConfigureDelivery(deliveryCtx, tgClient, cfg.Telegram.Mode, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			logger.Warn("telegram delivery setup failed", zap.String("mode", cfg.Telegram.Mode), zap.Error(err))
		}
		cancel()
	} else {
		logger.Info("telegram bot token not set; webhook ingest only, no polling or alerts")
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		registerJobs(cronRunner, cfg, logger, jobDeps{
			settings: settingsSvc,
			ingestor: ingestor,
			provider: provider,
			poller: &service.TelegramPoller{
				Client:   tgClient,
				Ingestor: ingestor,
				Repo:     store,
				Logger:   logger.Named("poller"),
				Limit:    cfg.Telegram.PollLimit,
				Timeout:  cfg.Telegram.PollTimeout,
			},
			pollEnabled: tgClient.Configured() && cfg.Telegram.Mode == "poll",
		})
		cronRunner.Start()
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	webhookQueue.Close()
	if cfg.Cron.Enabled {
		cronRunner.Stop()
	}
	notifier.Wait()
}

// loadSecret fills an empty config value from the sealed settings table.
func loadSecret(ctx context.Context, settings *service.SystemSettingsService, key string, dst *string, logger *zap.Logger) {
	if *dst != "" {
		return
	}
	v, err := settings.Secret(ctx, key)
	if err != nil {
		logger.Warn("read sealed setting failed", zap.String("key", key), zap.Error(err))
		return
	}
	if v != "" {
		*dst = v
		logger.Info("using sealed setting", zap.String("key", key))
	}
}

type jobDeps struct {
	settings    *service.SystemSettingsService
	ingestor    *ingest.Ingestor
	provider    market.Provider
	poller      *service.TelegramPoller
	pollEnabled bool
}

func registerJobs(r *cronrunner.Runner, cfg config.Config, logger *zap.Logger, d jobDeps) {
	if d.pollEnabled && cfg.Cron.TelegramPoll != "" {
		timeout := cfg.Telegram.PollTimeout + cfg.Telegram.Timeout
		_, err := r.Add("telegram_poll", cfg.Cron.TelegramPoll, timeout, func(ctx context.Context) {
			if !d.settings.IsEnabled(ctx, service.FeatureTelegramPoll, true) {
				return
			}
			res, err := d.poller.Poll(ctx)
			if err != nil {
				logger.Warn("telegram poll failed", zap.Error(err))
				return
			}
			if res.Updates > 0 {
				logger.Info("telegram poll ok",
					zap.Int("updates", res.Updates),
					zap.Int("signals", res.Signals),
					zap.Int64("offset", res.Offset),
				)
			}
		})
		if err != nil {
			logger.Warn("cron register telegram poll failed", zap.Error(err))
		}
	}

	if cfg.Cron.Reprocess != "" {
		_, err := r.Add("reprocess", cfg.Cron.Reprocess, time.Minute, func(ctx context.Context) {
			if !d.settings.IsEnabled(ctx, service.FeatureReprocess, true) {
				return
			}
			n, err := d.ingestor.Reprocess(ctx, 200)
			if err != nil {
				logger.Warn("reprocess backlog failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("reprocessed backlog", zap.Int("messages", n))
			}
		})
		if err != nil {
			logger.Warn("cron register reprocess failed", zap.Error(err))
		}
	}

	if cfg.Cron.MarketWarmup != "" {
		_, err := r.Add("market_warmup", cfg.Cron.MarketWarmup, cfg.Market.Timeout*2, func(ctx context.Context) {
			if !d.settings.IsEnabled(ctx, service.FeatureMarketSignals, true) {
				return
			}
			if _, err := d.provider.Snapshots(ctx, cfg.Market.Symbols); err != nil {
				logger.Warn("market warmup failed", zap.String("provider", d.provider.Name()), zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register market warmup failed", zap.Error(err))
		}
	}
}
