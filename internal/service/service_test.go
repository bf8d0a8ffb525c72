package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alphafeed/internal/client/telegram"
	"alphafeed/internal/ingest"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
	memrepository "alphafeed/internal/repository/memory"
)

func TestSystemSettings_DefaultsAndToggle(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	svc := &SystemSettingsService{Repo: repo}

	if err := svc.SetEnabled(ctx, FeatureMarketSignals, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := svc.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if svc.IsEnabled(ctx, FeatureMarketSignals, true) {
		t.Fatalf("stored value must win over the default")
	}
	if !svc.IsEnabled(ctx, FeatureReprocess, false) {
		t.Fatalf("expected default switch to be seeded on")
	}
	if svc.IsEnabled(ctx, FeatureAlerts, true) {
		t.Fatalf("alerts default off")
	}
	if !svc.IsEnabled(ctx, "feature.unknown", true) {
		t.Fatalf("missing key should use fallback")
	}
	if !IsFeatureSwitch(" feature.alerts ") || IsFeatureSwitch("feature.nope") {
		t.Fatalf("IsFeatureSwitch")
	}
	var nilSvc *SystemSettingsService
	if !nilSvc.IsEnabled(ctx, FeatureAlerts, true) {
		t.Fatalf("nil service should use fallback")
	}
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, chatID+"|"+text)
	return f.err
}

func TestAlertNotifier(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	flags := &SystemSettingsService{Repo: repo}
	_ = flags.SetEnabled(ctx, FeatureAlerts, true)
	sender := &fakeSender{}
	n := &AlertNotifier{Sender: sender, ChatID: "99", MinConfidence: 90, Flags: flags}

	token := "SOL"
	risk := "high"
	hot := models.Signal{
		Token:      &token,
		Action:     "buy",
		Confidence: 95,
		Price:      decimal.NewNullDecimal(decimal.NewFromInt(180)),
		Target:     decimal.NewNullDecimal(decimal.NewFromInt(220)),
		RiskReward: "1:4.0",
		RiskLevel:  &risk,
		SourceName: "Alpha Calls",
	}
	n.Notify(ctx, hot)
	n.Notify(ctx, models.Signal{Action: "alert", Confidence: 60})
	n.Wait()

	if len(sender.texts) != 1 {
		t.Fatalf("sent=%d want 1", len(sender.texts))
	}
	got := sender.texts[0]
	for _, want := range []string{"99|BUY SOL, confidence 95", "entry 180 target 220", "R:R 1:4.0, high risk", "via Alpha Calls"} {
		if !strings.Contains(got, want) {
			t.Fatalf("alert %q missing %q", got, want)
		}
	}

	_ = flags.SetEnabled(ctx, FeatureAlerts, false)
	n.Notify(ctx, hot)
	n.Wait()
	if len(sender.texts) != 1 {
		t.Fatalf("alerts switch off should suppress sends")
	}
}

type fakeUpdates struct {
	offsets []int64
	batches [][]telegram.Update
	err     error
}

func (f *fakeUpdates) GetUpdates(_ context.Context, offset int64, _ int, _ time.Duration) ([]telegram.Update, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func post(updateID, messageID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		ChannelPost: &telegram.Message{
			MessageID: messageID,
			Date:      1_700_000_000,
			Chat:      &telegram.Chat{ID: -5, Type: "channel", Title: "Calls"},
			Text:      text,
		},
	}
}

func TestTelegramPoller_AdvancesOffset(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	client := &fakeUpdates{batches: [][]telegram.Update{
		{post(100, 1, "BUY $SOL price 180"), post(101, 2, "gm")},
		{post(102, 3, "sell $ETH")},
	}}
	p := &TelegramPoller{Client: client, Ingestor: ingest.New(repo, rand.New(rand.NewSource(1)), nil), Repo: repo}

	res, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Updates != 2 || res.Signals != 1 || res.Offset != 102 {
		t.Fatalf("res=%+v", res)
	}
	if _, err := p.Poll(ctx); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if client.offsets[0] != 0 || client.offsets[1] != 102 {
		t.Fatalf("offsets=%v", client.offsets)
	}
	state, _ := repo.GetSyncState(ctx, TelegramPollScope)
	if state == nil || state.Cursor == nil || *state.Cursor != "103" {
		t.Fatalf("state=%+v", state)
	}
	if n, _ := repo.CountSignals(ctx, repository.ListSignalsParams{}); n != 2 {
		t.Fatalf("signals=%d want 2", n)
	}
}

func TestTelegramPoller_RecordsError(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	client := &fakeUpdates{err: errors.New("timeout")}
	p := &TelegramPoller{Client: client, Ingestor: ingest.New(repo, nil, nil), Repo: repo}
	if _, err := p.Poll(ctx); err == nil {
		t.Fatalf("expected error")
	}
	state, _ := repo.GetSyncState(ctx, TelegramPollScope)
	if state == nil || state.LastError == nil || *state.LastError != "timeout" {
		t.Fatalf("state=%+v", state)
	}
}

func TestTelegramPoller_HoldsOffsetWhenMessageNotStored(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	batch := []telegram.Update{post(100, 1, "BUY $SOL price 180"), post(101, 2, "gm")}
	client := &fakeUpdates{batches: [][]telegram.Update{batch, batch}}
	p := &TelegramPoller{Client: client, Ingestor: ingest.New(repo, rand.New(rand.NewSource(1)), nil), Repo: repo}

	repo.MessageErr = memrepository.ErrInjected
	res, err := p.Poll(ctx)
	if !errors.Is(err, ingest.ErrMessageNotStored) {
		t.Fatalf("err=%v want ErrMessageNotStored", err)
	}
	if res.Offset != 0 || res.Updates != 0 {
		t.Fatalf("res=%+v", res)
	}
	state, _ := repo.GetSyncState(ctx, TelegramPollScope)
	if state == nil || state.Cursor == nil || *state.Cursor != "0" || state.LastError == nil {
		t.Fatalf("state=%+v", state)
	}

	repo.MessageErr = nil
	res, err = p.Poll(ctx)
	if err != nil {
		t.Fatalf("retry poll: %v", err)
	}
	if res.Offset != 102 || res.Updates != 2 {
		t.Fatalf("res=%+v", res)
	}
	if client.offsets[1] != 0 {
		t.Fatalf("offsets=%v, retry should refetch from 0", client.offsets)
	}
	if n, _ := repo.CountMessages(ctx, nil); n != 2 {
		t.Fatalf("messages=%d want 2", n)
	}
}

type fakeWebhook struct{ set, deleted int }

func (f *fakeWebhook) SetWebhook(context.Context, string, string) error { f.set++; return nil }
func (f *fakeWebhook) DeleteWebhook(context.Context) error              { f.deleted++; return nil }

func TestConfigureDelivery(t *testing.T) {
	ctx := context.Background()
	f := &fakeWebhook{}
	_ = ConfigureDelivery(ctx, f, "webhook", "", "")
	_ = ConfigureDelivery(ctx, f, "webhook", "https://example.com/hook", "s")
	_ = ConfigureDelivery(ctx, f, "poll", "", "")
	if f.set != 1 || f.deleted != 1 {
		t.Fatalf("set=%d deleted=%d", f.set, f.deleted)
	}
}
