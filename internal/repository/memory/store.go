// Package memrepository is an in-process repository.Repository. It backs the
// service when no database DSN is configured and doubles as the store in
// package tests.
package memrepository

import (
	"cmp"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"alphafeed/internal/models"
	"alphafeed/internal/repository"
)

type msgKey struct {
	sourceID  string
	messageID int64
}

type sigKey struct {
	source    string
	sourceID  string
	messageID int64
}

type Store struct {
	mu       sync.Mutex
	nextID   uint64
	messages map[msgKey]*models.TelegramMessage
	signals  map[sigKey]*models.Signal
	order    []sigKey
	channels map[string]*models.TelegramChannel
	sync     map[string]models.SyncState
	settings map[string]models.SystemSetting

	// Set to make the matching calls fail.
	MessageErr error
	SignalErr  error
	ListErr    error
}

func New() *Store {
	return &Store{
		messages: map[msgKey]*models.TelegramMessage{},
		signals:  map[sigKey]*models.Signal{},
		channels: map[string]*models.TelegramChannel{},
		sync:     map[string]models.SyncState{},
		settings: map[string]models.SystemSetting{},
	}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Store) InsertMessage(_ context.Context, item *models.TelegramMessage) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MessageErr != nil {
		return false, s.MessageErr
	}
	k := msgKey{item.SourceID, item.MessageID}
	if _, ok := s.messages[k]; ok {
		return false, nil
	}
	cp := *item
	cp.ID = s.id()
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.messages[k] = &cp
	item.ID = cp.ID
	return true, nil
}

func (s *Store) UpsertEditedMessage(_ context.Context, item *models.TelegramMessage) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MessageErr != nil {
		return s.MessageErr
	}
	k := msgKey{item.SourceID, item.MessageID}
	now := time.Now().UTC()
	if cur, ok := s.messages[k]; ok {
		cur.Text = item.Text
		cur.Edited = true
		cur.Processed = false
		cur.SourceName = item.SourceName
		cur.RawUpdate = item.RawUpdate
		cur.UpdatedAt = now
		return nil
	}
	cp := *item
	cp.ID = s.id()
	cp.Edited = true
	cp.Processed = false
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.messages[k] = &cp
	return nil
}

func (s *Store) GetMessage(_ context.Context, sourceID string, messageID int64) (*models.TelegramMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[msgKey{sourceID, messageID}]
	if !ok {
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

func (s *Store) MarkMessageProcessed(_ context.Context, sourceID string, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MessageErr != nil {
		return s.MessageErr
	}
	if cur, ok := s.messages[msgKey{sourceID, messageID}]; ok {
		cur.Processed = true
	}
	return nil
}

func (s *Store) ListUnprocessedMessages(_ context.Context, limit int) ([]models.TelegramMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]models.TelegramMessage, 0)
	for _, m := range s.messages {
		if !m.Processed {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountMessages(_ context.Context, processed *bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if processed == nil || m.Processed == *processed {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertSignal(_ context.Context, item *models.Signal) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SignalErr != nil {
		return false, s.SignalErr
	}
	k := sigKey{item.Source, item.SourceID, item.MessageID}
	if _, ok := s.signals[k]; ok {
		return false, nil
	}
	cp := *item
	cp.ID = s.id()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.signals[k] = &cp
	s.order = append(s.order, k)
	item.ID = cp.ID
	return true, nil
}

func (s *Store) RescoreSignal(ctx context.Context, item *models.Signal) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	if s.SignalErr != nil {
		s.mu.Unlock()
		return false, s.SignalErr
	}
	cur, ok := s.signals[sigKey{item.Source, item.SourceID, item.MessageID}]
	if ok {
		processed, id, created := cur.Processed, cur.ID, cur.CreatedAt
		*cur = *item
		cur.ID, cur.Processed, cur.CreatedAt = id, processed, created
		cur.UpdatedAt = time.Now().UTC()
		item.ID = id
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()
	return s.InsertSignal(ctx, item)
}

func (s *Store) filtered(params repository.ListSignalsParams) []models.Signal {
	out := make([]models.Signal, 0, len(s.order))
	for _, k := range s.order {
		sig := s.signals[k]
		if params.Source != nil && *params.Source != "" && sig.Source != *params.Source {
			continue
		}
		if params.SourceID != nil && *params.SourceID != "" && sig.SourceID != *params.SourceID {
			continue
		}
		if params.Token != nil && *params.Token != "" && (sig.Token == nil || *sig.Token != strings.ToUpper(*params.Token)) {
			continue
		}
		if params.Processed != nil && sig.Processed != *params.Processed {
			continue
		}
		if params.MinConfidence != nil && sig.Confidence < *params.MinConfidence {
			continue
		}
		if params.Since != nil && sig.CreatedAt.Before(*params.Since) {
			continue
		}
		out = append(out, *sig)
	}
	return out
}

// ListSignals orders like the gorm store: by created_at unless OrderBy names
// confidence, performance or id, newest first unless Asc is set. Ties fall
// back to id.
func (s *Store) ListSignals(_ context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := s.filtered(params)
	asc := params.Asc != nil && *params.Asc
	compare := signalCompare(params.OrderBy)
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if c == 0 {
			c = cmp.Compare(out[i].ID, out[j].ID)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return []models.Signal{}, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func signalCompare(orderBy string) func(a, b models.Signal) int {
	switch strings.TrimSpace(orderBy) {
	case "confidence":
		return func(a, b models.Signal) int { return cmp.Compare(a.Confidence, b.Confidence) }
	case "performance":
		return func(a, b models.Signal) int { return cmp.Compare(a.Performance, b.Performance) }
	case "id":
		return func(a, b models.Signal) int { return cmp.Compare(a.ID, b.ID) }
	default:
		return func(a, b models.Signal) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}

func (s *Store) CountSignals(_ context.Context, params repository.ListSignalsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return 0, s.ListErr
	}
	return int64(len(s.filtered(params))), nil
}

func (s *Store) MarkSignalsProcessed(_ context.Context, ids []uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var n int64
	for _, sig := range s.signals {
		if _, ok := want[sig.ID]; ok && !sig.Processed {
			sig.Processed = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CountSignalsBySourceSince(_ context.Context, since time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int64{}
	for _, sig := range s.signals {
		if !sig.CreatedAt.Before(since) {
			out[sig.Source]++
		}
	}
	return out, nil
}

func (s *Store) TouchChannel(_ context.Context, item *models.TelegramChannel) error {
	if item == nil || item.SourceID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	seen := item.LastSeenAt
	if seen == nil {
		seen = &now
	}
	if cur, ok := s.channels[item.SourceID]; ok {
		cur.Name, cur.ChatType, cur.IsBot = item.Name, item.ChatType, item.IsBot
		cur.LastSeenAt = seen
		cur.MessageCount++
		cur.UpdatedAt = now
		return nil
	}
	cp := *item
	cp.ID = s.id()
	cp.Enabled = true
	cp.MessageCount = 1
	cp.LastSeenAt = seen
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.channels[item.SourceID] = &cp
	return nil
}

func (s *Store) AddChannelSignal(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.channels[sourceID]; ok {
		cur.SignalCount++
	}
	return nil
}

func (s *Store) GetChannel(_ context.Context, sourceID string) (*models.TelegramChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.channels[sourceID]
	if !ok {
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

func (s *Store) ListChannels(_ context.Context, params repository.ListChannelsParams) ([]models.TelegramChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TelegramChannel, 0, len(s.channels))
	for _, c := range s.channels {
		if params.Enabled != nil && c.Enabled != *params.Enabled {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) SetChannelEnabled(_ context.Context, sourceID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.channels[sourceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cur.Enabled = enabled
	return nil
}

func (s *Store) GetSyncState(_ context.Context, scope string) (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sync[scope]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) SaveSyncState(_ context.Context, state *models.SyncState) error {
	if state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync[state.Scope] = *state
	return nil
}

func (s *Store) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if item == nil || strings.TrimSpace(item.Key) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Key = strings.TrimSpace(item.Key)
	if cur, ok := s.settings[item.Key]; ok {
		cur.Value, cur.Description, cur.UpdatedBy, cur.UpdatedAt = item.Value, item.Description, item.UpdatedBy, time.Now().UTC()
		s.settings[item.Key] = cur
		return nil
	}
	cp := *item
	cp.ID = s.id()
	s.settings[item.Key] = cp
	return nil
}

func (s *Store) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &cur, nil
}

func (s *Store) ListSystemSettings(_ context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SystemSetting, 0, len(s.settings))
	for k, v := range s.settings {
		if params.Prefix != nil && !strings.HasPrefix(k, strings.TrimSpace(*params.Prefix)) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	items, err := s.ListSystemSettings(ctx, params)
	return int64(len(items)), err
}

// ErrInjected is a convenience error for tests that need a failing store.
var ErrInjected = errors.New("injected store failure")
