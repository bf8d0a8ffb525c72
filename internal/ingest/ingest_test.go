package ingest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"alphafeed/internal/client/telegram"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
	memrepository "alphafeed/internal/repository/memory"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sigs []models.Signal
}

func (n *recordingNotifier) Notify(_ context.Context, sig models.Signal) {
	n.mu.Lock()
	n.sigs = append(n.sigs, sig)
	n.mu.Unlock()
}

func channelPost(updateID, messageID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		ChannelPost: &telegram.Message{
			MessageID: messageID,
			Date:      1_700_000_000,
			Chat:      &telegram.Chat{ID: -1001, Type: "channel", Title: "Alpha Calls"},
			Text:      text,
		},
	}
}

func newIngestor(repo repository.Repository) *Ingestor {
	return New(repo, rand.New(rand.NewSource(1)), nil)
}

func TestIngest_IdempotentDelivery(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	notifier := &recordingNotifier{}
	ing := newIngestor(repo)
	ing.Notifier = notifier

	u := channelPost(1, 42, "BUY $SOL price 180 target 220 stop 170, high risk, 90% confidence")
	res, err := ing.Ingest(ctx, u)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != OutcomeSignal || res.Signal == nil {
		t.Fatalf("outcome=%s signal=%v", res.Outcome, res.Signal)
	}
	if res.Signal.Confidence != 95 || res.Signal.RiskReward != "1:4.0" || *res.Signal.Token != "SOL" {
		t.Fatalf("unexpected signal %+v", res.Signal)
	}

	res, err = ing.Ingest(ctx, u)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome=%s want duplicate", res.Outcome)
	}

	n, _ := repo.CountSignals(ctx, repository.ListSignalsParams{})
	if n != 1 {
		t.Fatalf("signals=%d want 1", n)
	}
	if len(notifier.sigs) != 1 {
		t.Fatalf("notifications=%d want 1", len(notifier.sigs))
	}
	ch, _ := repo.GetChannel(ctx, "-1001")
	if ch == nil || ch.MessageCount != 2 || ch.SignalCount != 1 {
		t.Fatalf("channel=%+v", ch)
	}
}

func TestIngest_EditRescoresInPlace(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	ing := newIngestor(repo)

	if _, err := ing.Ingest(ctx, channelPost(1, 7, "watching $PEPE")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	edit := telegram.Update{
		UpdateID: 2,
		EditedChannelPost: &telegram.Message{
			MessageID: 7,
			Date:      1_700_000_000,
			EditDate:  1_700_000_100,
			Chat:      &telegram.Chat{ID: -1001, Type: "channel", Title: "Alpha Calls"},
			Text:      "long $PEPE entry 0.00001 target 0.00002",
		},
	}
	res, err := ing.Ingest(ctx, edit)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.Outcome != OutcomeRescored {
		t.Fatalf("outcome=%s want rescored", res.Outcome)
	}

	items, _ := repo.ListSignals(ctx, repository.ListSignalsParams{})
	if len(items) != 1 {
		t.Fatalf("signals=%d want 1", len(items))
	}
	if items[0].Confidence != 90 || items[0].Action != string(models.ActionBuy) {
		t.Fatalf("signal not rescored: %+v", items[0])
	}
	msg, _ := repo.GetMessage(ctx, "-1001", 7)
	if !msg.Edited || !msg.Processed || msg.Text != edit.EditedChannelPost.Text {
		t.Fatalf("message=%+v", msg)
	}
}

func TestIngest_NoSignalStillStoresMessage(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	res, err := newIngestor(repo).Ingest(ctx, channelPost(1, 1, "hello how are you"))
	if err != nil || res.Outcome != OutcomeStored {
		t.Fatalf("outcome=%s err=%v", res.Outcome, err)
	}
	processed := true
	if n, _ := repo.CountMessages(ctx, &processed); n != 1 {
		t.Fatalf("processed messages=%d want 1", n)
	}
}

func TestIngest_MalformedIsDropped(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	ing := newIngestor(repo)
	for _, u := range []telegram.Update{
		{UpdateID: 1},
		{UpdateID: 2, Message: &telegram.Message{MessageID: 3, Text: "buy $SOL"}},
		{UpdateID: 3, Message: &telegram.Message{Chat: &telegram.Chat{ID: 5}, Text: "buy $SOL"}},
	} {
		res, err := ing.Ingest(ctx, u)
		if err != nil || res.Outcome != OutcomeDropped {
			t.Fatalf("update %d: outcome=%s err=%v", u.UpdateID, res.Outcome, err)
		}
	}
	if n, _ := repo.CountMessages(ctx, nil); n != 0 {
		t.Fatalf("messages=%d want 0", n)
	}
}

func TestIngestRaw(t *testing.T) {
	ctx := context.Background()
	ing := newIngestor(memrepository.New())

	if _, err := ing.IngestRaw(ctx, []byte(`{not json`)); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("err=%v want ErrUndecodable", err)
	}
	res, err := ing.IngestRaw(ctx, []byte(`{"update_id":1}`))
	if err != nil || res.Outcome != OutcomeDropped {
		t.Fatalf("outcome=%s err=%v", res.Outcome, err)
	}
	res, err = ing.IngestRaw(ctx, []byte(`{"update_id":2,"message":{"message_id":5,"date":1700000000,"chat":{"id":77,"type":"private"},"from":{"id":9,"is_bot":true,"username":"alphabot"},"caption":"SELL ETH"}}`))
	if err != nil || res.Outcome != OutcomeSignal {
		t.Fatalf("outcome=%s err=%v", res.Outcome, err)
	}
	if !res.Signal.IsBot || res.Signal.Action != "sell" || res.Signal.Confidence != 75 {
		t.Fatalf("signal=%+v", res.Signal)
	}
}

func TestReprocess_RecoversFailedSignalWrite(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	ing := newIngestor(repo)

	repo.SignalErr = memrepository.ErrInjected
	if _, err := ing.Ingest(ctx, channelPost(1, 11, "buy $BTC price 60000")); err == nil {
		t.Fatalf("expected persistence error to be reported")
	}
	processed := false
	if n, _ := repo.CountMessages(ctx, &processed); n != 1 {
		t.Fatalf("unprocessed=%d want 1", n)
	}

	repo.SignalErr = nil
	done, err := ing.Reprocess(ctx, 10)
	if err != nil || done != 1 {
		t.Fatalf("done=%d err=%v", done, err)
	}
	if n, _ := repo.CountSignals(ctx, repository.ListSignalsParams{}); n != 1 {
		t.Fatalf("signals=%d want 1", n)
	}
	if n, _ := repo.CountMessages(ctx, &processed); n != 0 {
		t.Fatalf("unprocessed=%d want 0", n)
	}
}

func TestIngest_MutedChannel(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	ing := newIngestor(repo)
	_, _ = ing.Ingest(ctx, channelPost(1, 1, "hello"))
	if err := repo.SetChannelEnabled(ctx, "-1001", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	res, err := ing.Ingest(ctx, channelPost(2, 2, "BUY $SOL"))
	if err != nil || res.Outcome != OutcomeMuted {
		t.Fatalf("outcome=%s err=%v", res.Outcome, err)
	}
	if n, _ := repo.CountSignals(ctx, repository.ListSignalsParams{}); n != 0 {
		t.Fatalf("signals=%d want 0", n)
	}
}

func TestIngest_EditIntroducesSignal(t *testing.T) {
	ctx := context.Background()
	repo := memrepository.New()
	notifier := &recordingNotifier{}
	ing := newIngestor(repo)
	ing.Notifier = notifier

	res, err := ing.Ingest(ctx, channelPost(1, 8, "gm everyone"))
	if err != nil || res.Outcome != OutcomeStored {
		t.Fatalf("outcome=%s err=%v", res.Outcome, err)
	}
	edit := func(updateID int64, text string) telegram.Update {
		return telegram.Update{
			UpdateID: updateID,
			EditedChannelPost: &telegram.Message{
				MessageID: 8,
				Date:      1_700_000_000,
				EditDate:  1_700_000_000 + updateID,
				Chat:      &telegram.Chat{ID: -1001, Type: "channel", Title: "Alpha Calls"},
				Text:      text,
			},
		}
	}

	res, err = ing.Ingest(ctx, edit(2, "BUY $SOL price 180 target 220"))
	if err != nil || res.Outcome != OutcomeSignal {
		t.Fatalf("first edit outcome=%s err=%v", res.Outcome, err)
	}
	res, err = ing.Ingest(ctx, edit(3, "BUY $SOL price 185 target 220"))
	if err != nil || res.Outcome != OutcomeRescored {
		t.Fatalf("second edit outcome=%s err=%v", res.Outcome, err)
	}

	if len(notifier.sigs) != 1 {
		t.Fatalf("notifications=%d want 1", len(notifier.sigs))
	}
	ch, _ := repo.GetChannel(ctx, "-1001")
	if ch == nil || ch.SignalCount != 1 {
		t.Fatalf("channel=%+v", ch)
	}
	items, _ := repo.ListSignals(ctx, repository.ListSignalsParams{})
	if len(items) != 1 || items[0].Price.Decimal.String() != "185" {
		t.Fatalf("signals=%+v", items)
	}
}

type failingMarkRepo struct {
	*memrepository.Store
}

func (failingMarkRepo) MarkMessageProcessed(context.Context, string, int64) error {
	return memrepository.ErrInjected
}

func TestIngest_MutedMarkFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := memrepository.New()
	ing := newIngestor(failingMarkRepo{store})
	_ = store.TouchChannel(ctx, &models.TelegramChannel{SourceID: "-1001", Name: "Alpha Calls"})
	if err := store.SetChannelEnabled(ctx, "-1001", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	res, err := ing.Ingest(ctx, channelPost(1, 3, "BUY $SOL"))
	if res.Outcome != OutcomeMuted {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if !errors.Is(err, memrepository.ErrInjected) {
		t.Fatalf("err=%v want injected failure", err)
	}
}
