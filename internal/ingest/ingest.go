// Package ingest stores chat updates and turns them into scored signals.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphafeed/internal/client/telegram"
	"alphafeed/internal/extractor"
	"alphafeed/internal/metrics"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
	"alphafeed/internal/scorer"
)

type Outcome string

const (
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStored    Outcome = "stored"
	OutcomeSignal    Outcome = "signal"
	OutcomeRescored  Outcome = "rescored"
	OutcomeMuted     Outcome = "muted"
	OutcomeQueued    Outcome = "queued"
)

type Result struct {
	Outcome Outcome
	Signal  *models.Signal
}

// Notifier is told about every newly stored chat signal.
type Notifier interface {
	Notify(ctx context.Context, sig models.Signal)
}

type Ingestor struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	Notifier Notifier

	mu  sync.Mutex
	rng *rand.Rand
}

func New(repo repository.Repository, rng *rand.Rand, logger *zap.Logger) *Ingestor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Ingestor{Repo: repo, Logger: logger, rng: rng}
}

// IngestRaw decodes one webhook body. Only a body that is not JSON at all is
// an error the caller should surface.
func (i *Ingestor) IngestRaw(ctx context.Context, body []byte) (Result, error) {
	u, err := Decode(body)
	if err != nil {
		return Result{Outcome: OutcomeDropped}, err
	}
	return i.Ingest(ctx, u)
}

// Decode parses one webhook body and keeps a copy of it as the raw update.
func Decode(body []byte) (telegram.Update, error) {
	var u telegram.Update
	if err := json.Unmarshal(body, &u); err != nil {
		metrics.MessagesIngested.WithLabelValues("undecodable").Inc()
		return telegram.Update{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	u.Raw = append(json.RawMessage(nil), body...)
	return u, nil
}

// Ingest never fails on bad input: malformed updates are dropped and logged.
// A returned error reports a persistence problem after the pipeline has done
// as much as it could.
func (i *Ingestor) Ingest(ctx context.Context, u telegram.Update) (Result, error) {
	env, err := Normalize(u)
	if err != nil {
		i.logger().Warn("telegram update dropped", zap.Int64("update_id", u.UpdateID), zap.Error(err))
		metrics.MessagesIngested.WithLabelValues(string(OutcomeDropped)).Inc()
		return Result{Outcome: OutcomeDropped}, nil
	}
	msg := env.Message
	log := i.logger().With(
		zap.String("source_id", msg.SourceID),
		zap.Int64("message_id", msg.MessageID),
		zap.String("kind", string(env.Kind)),
	)

	var errs []error
	if err := i.Repo.TouchChannel(ctx, &models.TelegramChannel{
		SourceID:   msg.SourceID,
		Name:       msg.SourceName,
		ChatType:   msg.ChatType,
		IsBot:      msg.IsBot,
		LastSeenAt: &msg.Timestamp,
	}); err != nil {
		log.Warn("channel touch failed", zap.Error(err))
		errs = append(errs, err)
	}

	if env.Kind == KindEdited {
		if err := i.Repo.UpsertEditedMessage(ctx, &msg); err != nil {
			log.Warn("edited message upsert failed", zap.Error(err))
			metrics.PersistErrors.WithLabelValues("message").Inc()
			errs = append(errs, fmt.Errorf("%w: %w", ErrMessageNotStored, err))
		}
	} else {
		inserted, err := i.Repo.InsertMessage(ctx, &msg)
		if err != nil {
			log.Warn("message insert failed", zap.Error(err))
			metrics.PersistErrors.WithLabelValues("message").Inc()
			errs = append(errs, fmt.Errorf("%w: %w", ErrMessageNotStored, err))
		} else if !inserted {
			log.Debug("duplicate message ignored")
			metrics.MessagesIngested.WithLabelValues(string(OutcomeDuplicate)).Inc()
			return Result{Outcome: OutcomeDuplicate}, errors.Join(errs...)
		}
	}

	if muted, err := i.muted(ctx, msg.SourceID); err != nil {
		errs = append(errs, err)
	} else if muted {
		if err := i.Repo.MarkMessageProcessed(ctx, msg.SourceID, msg.MessageID); err != nil {
			log.Warn("muted message mark failed", zap.Error(err))
			errs = append(errs, err)
		}
		metrics.MessagesIngested.WithLabelValues(string(OutcomeMuted)).Inc()
		return Result{Outcome: OutcomeMuted}, errors.Join(errs...)
	}

	res, err := i.process(ctx, msg, env.Kind == KindEdited)
	if err != nil {
		errs = append(errs, err)
	}
	metrics.MessagesIngested.WithLabelValues(string(res.Outcome)).Inc()
	return res, errors.Join(errs...)
}

// Reprocess re-runs extraction over messages still marked unprocessed: edits
// whose rescore failed, or inserts whose signal write failed.
func (i *Ingestor) Reprocess(ctx context.Context, limit int) (int, error) {
	pending, err := i.Repo.ListUnprocessedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}
	var errs []error
	done := 0
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := i.process(ctx, msg, msg.Edited); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	if done > 0 {
		i.logger().Info("reprocessed backlog", zap.Int("messages", done), zap.Int("pending", len(pending)))
	}
	return done, errors.Join(errs...)
}

// Extract runs extraction and scoring without touching storage.
func (i *Ingestor) Extract(text string, isBot bool) (*extractor.Result, scorer.Scored, bool) {
	r := extractor.Extract(text)
	if r == nil {
		return nil, scorer.Scored{}, false
	}
	return r, i.score(r, isBot), true
}

// process extracts from msg, persists any signal and marks msg processed.
// The message stays unprocessed when the signal write fails.
func (i *Ingestor) process(ctx context.Context, msg models.TelegramMessage, edited bool) (Result, error) {
	r := extractor.Extract(msg.Text)
	if r == nil {
		if err := i.Repo.MarkMessageProcessed(ctx, msg.SourceID, msg.MessageID); err != nil {
			return Result{Outcome: OutcomeStored}, err
		}
		return Result{Outcome: OutcomeStored}, nil
	}

	sig := BuildSignal(msg, r, i.score(r, msg.IsBot))
	metrics.SignalsExtracted.WithLabelValues(models.SignalSourceTelegram).Inc()
	log := i.logger().With(zap.String("source_id", msg.SourceID), zap.Int64("message_id", msg.MessageID))

	outcome := OutcomeSignal
	var created bool
	var err error
	if edited {
		outcome = OutcomeRescored
		created, err = i.Repo.RescoreSignal(ctx, &sig)
		if err != nil {
			log.Warn("signal rescore failed", zap.Error(err))
		} else if created {
			// The original message carried no signal; the edit introduced one.
			outcome = OutcomeSignal
		}
	} else {
		created, err = i.Repo.InsertSignal(ctx, &sig)
		if err != nil {
			log.Warn("signal insert failed", zap.Error(err))
		}
	}
	if err != nil {
		metrics.PersistErrors.WithLabelValues("signal").Inc()
		return Result{Outcome: outcome, Signal: &sig}, err
	}
	if created {
		if err := i.Repo.AddChannelSignal(ctx, msg.SourceID); err != nil {
			log.Debug("channel signal count failed", zap.Error(err))
		}
		if i.Notifier != nil {
			i.Notifier.Notify(ctx, sig)
		}
	}
	log.Debug("signal stored",
		zap.String("outcome", string(outcome)),
		zap.Int("confidence", sig.Confidence),
		zap.String("action", sig.Action),
	)
	if err := i.Repo.MarkMessageProcessed(ctx, msg.SourceID, msg.MessageID); err != nil {
		return Result{Outcome: outcome, Signal: &sig}, err
	}
	return Result{Outcome: outcome, Signal: &sig}, nil
}

func (i *Ingestor) muted(ctx context.Context, sourceID string) (bool, error) {
	ch, err := i.Repo.GetChannel(ctx, sourceID)
	if err != nil || ch == nil {
		return false, err
	}
	return !ch.Enabled, nil
}

func (i *Ingestor) score(r *extractor.Result, isBot bool) scorer.Scored {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rng == nil {
		i.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return scorer.Score(r, isBot, i.rng)
}

func (i *Ingestor) logger() *zap.Logger {
	if i.Logger == nil {
		return zap.NewNop()
	}
	return i.Logger
}
