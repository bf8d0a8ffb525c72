package repository

import (
	"context"
	"time"

	"alphafeed/internal/models"
)

// Repository is the persistence surface of the pipeline. Inserts keyed by a
// natural key are insert-or-ignore: a duplicate reports inserted=false and a
// nil error.
type Repository interface {
	// Chat messages
	InsertMessage(ctx context.Context, item *models.TelegramMessage) (bool, error)
	UpsertEditedMessage(ctx context.Context, item *models.TelegramMessage) error
	GetMessage(ctx context.Context, sourceID string, messageID int64) (*models.TelegramMessage, error)
	MarkMessageProcessed(ctx context.Context, sourceID string, messageID int64) error
	ListUnprocessedMessages(ctx context.Context, limit int) ([]models.TelegramMessage, error)
	CountMessages(ctx context.Context, processed *bool) (int64, error)

	// Signals
	InsertSignal(ctx context.Context, item *models.Signal) (bool, error)
	// RescoreSignal reports created=true when no row existed for the key.
	RescoreSignal(ctx context.Context, item *models.Signal) (created bool, err error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	MarkSignalsProcessed(ctx context.Context, ids []uint64) (int64, error)
	CountSignalsBySourceSince(ctx context.Context, since time.Time) (map[string]int64, error)

	// Chats
	TouchChannel(ctx context.Context, item *models.TelegramChannel) error
	AddChannelSignal(ctx context.Context, sourceID string) error
	GetChannel(ctx context.Context, sourceID string) (*models.TelegramChannel, error)
	ListChannels(ctx context.Context, params ListChannelsParams) ([]models.TelegramChannel, error)
	SetChannelEnabled(ctx context.Context, sourceID string, enabled bool) error

	// Poller cursors
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error

	// System settings
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)

	Ping(ctx context.Context) error
}

type ListSignalsParams struct {
	Limit         int
	Offset        int
	Source        *string
	SourceID      *string
	Token         *string
	Processed     *bool
	MinConfidence *int
	Since         *time.Time
	OrderBy       string
	Asc           *bool
}

type ListChannelsParams struct {
	Limit   int
	Offset  int
	Enabled *bool
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
