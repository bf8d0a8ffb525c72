package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"alphafeed/internal/client/telegram"
	"alphafeed/internal/ingest"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
)

const TelegramPollScope = "telegram.get_updates"

type UpdatesClient interface {
	GetUpdates(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]telegram.Update, error)
}

type UpdateIngestor interface {
	Ingest(ctx context.Context, u telegram.Update) (ingest.Result, error)
}

// TelegramPoller pulls updates with getUpdates for deployments without a
// public webhook. The next offset is kept in sync_state so restarts do not
// replay or skip updates.
type TelegramPoller struct {
	Client   UpdatesClient
	Ingestor UpdateIngestor
	Repo     repository.Repository
	Logger   *zap.Logger
	Limit    int
	Timeout  time.Duration

	mu      sync.Mutex
	running bool
}

type PollResult struct {
	Updates int
	Signals int
	Offset  int64
}

func (p *TelegramPoller) Poll(ctx context.Context) (PollResult, error) {
	if !p.begin() {
		return PollResult{}, nil
	}
	defer p.end()

	now := time.Now().UTC()
	state, err := p.Repo.GetSyncState(ctx, TelegramPollScope)
	if err != nil {
		return PollResult{}, err
	}
	if state == nil {
		state = &models.SyncState{Scope: TelegramPollScope}
	}
	offset := parseOffset(state.Cursor)
	state.LastAttemptAt = &now

	updates, err := p.Client.GetUpdates(ctx, offset, p.Limit, p.Timeout)
	if err != nil {
		msg := err.Error()
		state.LastError = &msg
		if saveErr := p.Repo.SaveSyncState(ctx, state); saveErr != nil {
			p.logger().Warn("save poll state failed", zap.Error(saveErr))
		}
		return PollResult{Offset: offset}, err
	}

	res := PollResult{Offset: offset}
	var stopErr error
	for _, u := range updates {
		out, err := p.Ingestor.Ingest(ctx, u)
		if errors.Is(err, ingest.ErrMessageNotStored) {
			// Leave the offset on this update so the next poll fetches it again.
			p.logger().Warn("polled update not stored, holding offset", zap.Int64("update_id", u.UpdateID), zap.Error(err))
			stopErr = err
			break
		}
		if err != nil {
			p.logger().Warn("polled update ingest failed", zap.Int64("update_id", u.UpdateID), zap.Error(err))
		}
		if out.Outcome == ingest.OutcomeSignal || out.Outcome == ingest.OutcomeRescored {
			res.Signals++
		}
		if u.UpdateID >= res.Offset {
			res.Offset = u.UpdateID + 1
		}
		res.Updates++
	}

	cursor := strconv.FormatInt(res.Offset, 10)
	state.Cursor = &cursor
	if stopErr != nil {
		msg := stopErr.Error()
		state.LastError = &msg
	} else {
		state.LastSuccessAt = &now
		state.LastError = nil
	}
	stats, _ := json.Marshal(map[string]any{"updates": res.Updates, "signals": res.Signals})
	state.StatsJSON = datatypes.JSON(stats)
	if err := p.Repo.SaveSyncState(ctx, state); err != nil {
		return res, errors.Join(stopErr, err)
	}
	return res, stopErr
}

func (p *TelegramPoller) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *TelegramPoller) end() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *TelegramPoller) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func parseOffset(cursor *string) int64 {
	if cursor == nil {
		return 0
	}
	v, err := strconv.ParseInt(*cursor, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

type WebhookClient interface {
	SetWebhook(ctx context.Context, webhookURL, secret string) error
	DeleteWebhook(ctx context.Context) error
}

// ConfigureDelivery points Telegram at the webhook in webhook mode and clears
// it in poll mode, where getUpdates is refused while a webhook is set.
func ConfigureDelivery(ctx context.Context, client WebhookClient, mode, webhookURL, secret string) error {
	switch mode {
	case "poll":
		return client.DeleteWebhook(ctx)
	default:
		if webhookURL == "" {
			return nil
		}
		return client.SetWebhook(ctx, webhookURL, secret)
	}
}
