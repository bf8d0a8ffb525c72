package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"alphafeed/internal/models"
	"alphafeed/internal/repository"
)

const (
	FeatureMarketSignals = "feature.market_signals"
	FeatureTelegramPoll  = "feature.telegram_poll"
	FeatureAlerts        = "feature.alerts"
	FeatureReprocess     = "feature.reprocess"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureMarketSignals: true,
		FeatureTelegramPoll:  true,
		FeatureAlerts:        false,
		FeatureReprocess:     true,
	}
}

// IsFeatureSwitch reports whether key is one of the known switches.
func IsFeatureSwitch(key string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(key)]
	return ok
}

// Keys of sensitive settings read at startup when the config leaves them empty.
const (
	SettingCoinGeckoAPIKey = "market.coingecko_api_key"
	SettingBotToken        = "telegram.bot_token"
)

type SystemSettingsService struct {
	Repo   repository.Repository
	Sealer *SettingsSealer
}

// EnsureDefaultSwitches creates missing switches. Stored values win.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Secret returns the opened string value of a sensitive setting, "" when unset.
func (s *SystemSettingsService) Secret(ctx context.Context, key string) (string, error) {
	if s == nil || s.Repo == nil {
		return "", nil
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return "", err
	}
	raw, err := s.Sealer.Open(key, item.Value)
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("setting %s is not a string: %w", key, err)
	}
	return strings.TrimSpace(out), nil
}
