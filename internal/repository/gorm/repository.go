package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alphafeed/internal/models"
	"alphafeed/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("db not configured")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- messages ----------------------------------------------------------------

func (s *Store) InsertMessage(ctx context.Context, item *models.TelegramMessage) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertEditedMessage overwrites the text of an existing row and reopens it
// for extraction. An edit for a message never seen before is inserted.
func (s *Store) UpsertEditedMessage(ctx context.Context, item *models.TelegramMessage) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Edited = true
	item.Processed = false
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"text",
			"edited",
			"processed",
			"source_name",
			"raw_update",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetMessage(ctx context.Context, sourceID string, messageID int64) (*models.TelegramMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TelegramMessage
	err := s.db.WithContext(ctx).
		Where("source_id = ? AND message_id = ?", sourceID, messageID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) MarkMessageProcessed(ctx context.Context, sourceID string, messageID int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TelegramMessage{}).
		Where("source_id = ? AND message_id = ?", sourceID, messageID).
		Updates(map[string]any{"processed": true, "updated_at": time.Now().UTC()}).Error
}

func (s *Store) ListUnprocessedMessages(ctx context.Context, limit int) ([]models.TelegramMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TelegramMessage
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("timestamp asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMessages(ctx context.Context, processed *bool) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TelegramMessage{})
	if processed != nil {
		query = query.Where("processed = ?", *processed)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- signals -----------------------------------------------------------------

var signalKey = []clause.Column{{Name: "source"}, {Name: "source_id"}, {Name: "message_id"}}

// Columns an edit may change. processed and created_at are left alone.
var rescoreColumns = []string{
	"token",
	"action",
	"price",
	"target",
	"stop_loss",
	"risk_level",
	"confidence",
	"confidence_hint",
	"performance",
	"performance_synthetic",
	"risk_reward",
	"tags",
	"metadata",
	"updated_at",
}

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   signalKey,
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RescoreSignal replaces the extracted and scored columns of the row with the
// same key. A missing row is created and reported so the caller can treat it
// like a fresh insert.
func (s *Store) RescoreSignal(ctx context.Context, item *models.Signal) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	created, err := s.InsertSignal(ctx, item)
	if err != nil || created {
		return created, err
	}
	item.UpdatedAt = time.Now().UTC()
	return false, s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("source = ? AND source_id = ? AND message_id = ?", item.Source, item.SourceID, item.MessageID).
		Select(rescoreColumns).
		Updates(item).Error
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	query = applyOrder(query, signalOrderColumn(params.OrderBy), params.Asc, "created_at")
	var items []models.Signal
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applySignalFilters(query *gorm.DB, params repository.ListSignalsParams) *gorm.DB {
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	if params.SourceID != nil && strings.TrimSpace(*params.SourceID) != "" {
		query = query.Where("source_id = ?", strings.TrimSpace(*params.SourceID))
	}
	if params.Token != nil && strings.TrimSpace(*params.Token) != "" {
		query = query.Where("token = ?", strings.ToUpper(strings.TrimSpace(*params.Token)))
	}
	if params.Processed != nil {
		query = query.Where("processed = ?", *params.Processed)
	}
	if params.MinConfidence != nil {
		query = query.Where("confidence >= ?", *params.MinConfidence)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// Order columns are whitelisted; the value reaches raw SQL.
func signalOrderColumn(orderBy string) string {
	switch strings.TrimSpace(orderBy) {
	case "confidence", "performance", "created_at", "id":
		return strings.TrimSpace(orderBy)
	default:
		return ""
	}
}

// MarkSignalsProcessed only flips false to true.
func (s *Store) MarkSignalsProcessed(ctx context.Context, ids []uint64) (int64, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("id IN ?", ids).
		Where("processed = ?", false).
		Updates(map[string]any{"processed": true, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (s *Store) CountSignalsBySourceSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return map[string]int64{}, nil
	}
	type row struct {
		Source string
		Total  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Signal{}).
		Select("source, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("source").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Source] = r.Total
	}
	return out, nil
}

// --- channels ----------------------------------------------------------------

// TouchChannel records one more message from a chat, creating the row on
// first sight. enabled is never overwritten here.
func (s *Store) TouchChannel(ctx context.Context, item *models.TelegramChannel) error {
	if s == nil || s.db == nil || item == nil || strings.TrimSpace(item.SourceID) == "" {
		return nil
	}
	now := time.Now().UTC()
	if item.LastSeenAt == nil {
		item.LastSeenAt = &now
	}
	item.MessageCount = 1
	item.Enabled = true
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":          item.Name,
			"chat_type":     item.ChatType,
			"is_bot":        item.IsBot,
			"last_seen_at":  item.LastSeenAt,
			"message_count": gorm.Expr("telegram_channels.message_count + 1"),
			"updated_at":    now,
		}),
	}).Create(item).Error
}

func (s *Store) AddChannelSignal(ctx context.Context, sourceID string) error {
	if s == nil || s.db == nil || strings.TrimSpace(sourceID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TelegramChannel{}).
		Where("source_id = ?", sourceID).
		UpdateColumn("signal_count", gorm.Expr("signal_count + 1")).Error
}

func (s *Store) GetChannel(ctx context.Context, sourceID string) (*models.TelegramChannel, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TelegramChannel
	err := s.db.WithContext(ctx).Where("source_id = ?", strings.TrimSpace(sourceID)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListChannels(ctx context.Context, params repository.ListChannelsParams) ([]models.TelegramChannel, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TelegramChannel{})
	if params.Enabled != nil {
		query = query.Where("enabled = ?", *params.Enabled)
	}
	orderBy := ""
	switch strings.TrimSpace(params.OrderBy) {
	case "message_count", "signal_count", "last_seen_at", "name":
		orderBy = strings.TrimSpace(params.OrderBy)
	}
	query = applyOrder(query, orderBy, params.Asc, "last_seen_at")
	var items []models.TelegramChannel
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetChannelEnabled(ctx context.Context, sourceID string, enabled bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.TelegramChannel{}).
		Where("source_id = ?", strings.TrimSpace(sourceID)).
		Updates(map[string]any{"enabled": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- sync state --------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cursor",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

// --- system settings ---------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_by",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := settingsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, "", params.Asc, "key")
	var items []models.SystemSetting
	if err := query.
		Limit(normalizeLimit(params.Limit, 500)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := settingsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func settingsQuery(db *gorm.DB, params repository.ListSystemSettingsParams) *gorm.DB {
	query := db.Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	return query
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
