package gormrepository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alphafeed/internal/models"
	"alphafeed/internal/repository"
)

// sqlRecorder keeps every statement gorm builds.
type sqlRecorder struct {
	mu    sync.Mutex
	stmts []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface      { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})  {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})  {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{}) {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.mu.Lock()
	r.stmts = append(r.stmts, sql)
	r.mu.Unlock()
}

func (r *sqlRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stmts
	r.stmts = nil
	return out
}

// dryRunStore builds SQL against the postgres dialect without a server.
func dryRunStore(t *testing.T) (*Store, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=alphafeed dbname=alphafeed sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 rec,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return New(db), rec
}

func mustContain(t *testing.T, sql string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(sql, p) {
			t.Fatalf("sql missing %q:\n%s", p, sql)
		}
	}
}

func TestInsertMessage_IgnoresConflict(t *testing.T) {
	s, rec := dryRunStore(t)
	if _, err := s.InsertMessage(context.Background(), &models.TelegramMessage{SourceID: "-1001", MessageID: 7, Text: "buy $SOL"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	stmts := rec.take()
	if len(stmts) != 1 {
		t.Fatalf("stmts=%v", stmts)
	}
	mustContain(t, stmts[0], `INSERT INTO "telegram_messages"`, `ON CONFLICT ("source_id","message_id") DO NOTHING`)
}

func TestUpsertEditedMessage_UpdatesColumns(t *testing.T) {
	s, rec := dryRunStore(t)
	if err := s.UpsertEditedMessage(context.Background(), &models.TelegramMessage{SourceID: "-1001", MessageID: 7, Text: "sell $SOL"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	stmts := rec.take()
	if len(stmts) != 1 {
		t.Fatalf("stmts=%v", stmts)
	}
	mustContain(t, stmts[0],
		`ON CONFLICT ("source_id","message_id") DO UPDATE SET`,
		`"text"="excluded"."text"`,
		`"edited"="excluded"."edited"`,
		`"processed"="excluded"."processed"`,
		`"raw_update"="excluded"."raw_update"`,
	)
	if strings.Contains(stmts[0], `"created_at"="excluded"`) {
		t.Fatalf("edit must not touch created_at:\n%s", stmts[0])
	}
}

func TestInsertSignal_IgnoresConflict(t *testing.T) {
	s, rec := dryRunStore(t)
	if _, err := s.InsertSignal(context.Background(), &models.Signal{Source: "telegram", SourceID: "-1001", MessageID: 7, Confidence: 80}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	stmts := rec.take()
	if len(stmts) != 1 {
		t.Fatalf("stmts=%v", stmts)
	}
	mustContain(t, stmts[0], `INSERT INTO "signals"`, `ON CONFLICT ("source","source_id","message_id") DO NOTHING`)
}

// A dry run affects no rows, so RescoreSignal takes the existing-row path.
func TestRescoreSignal_UpdatesScoredColumnsOnly(t *testing.T) {
	s, rec := dryRunStore(t)
	created, err := s.RescoreSignal(context.Background(), &models.Signal{Source: "telegram", SourceID: "-1001", MessageID: 7, Confidence: 85})
	if err != nil || created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	stmts := rec.take()
	if len(stmts) != 2 {
		t.Fatalf("stmts=%v", stmts)
	}
	mustContain(t, stmts[0], `ON CONFLICT ("source","source_id","message_id") DO NOTHING`)
	mustContain(t, stmts[1], `UPDATE "signals" SET`, `"confidence"=85`, `"risk_reward"=`, `"updated_at"=`, `source = 'telegram'`, `message_id = 7`)
	for _, col := range []string{`"processed"=`, `"created_at"=`, `"source_name"=`} {
		if strings.Contains(stmts[1], col) {
			t.Fatalf("rescore must not set %s:\n%s", col, stmts[1])
		}
	}
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		in, fallback, want int
	}{
		{0, 200, 200},
		{-5, 50, 50},
		{20, 200, 20},
		{10_000, 200, 500},
	}
	for _, tt := range tests {
		if got := normalizeLimit(tt.in, tt.fallback); got != tt.want {
			t.Fatalf("normalizeLimit(%d,%d)=%d want %d", tt.in, tt.fallback, got, tt.want)
		}
	}
	if normalizeOffset(-1) != 0 || normalizeOffset(30) != 30 {
		t.Fatalf("normalizeOffset")
	}
}

func TestSignalOrderColumn(t *testing.T) {
	if got := signalOrderColumn("confidence"); got != "confidence" {
		t.Fatalf("got %q", got)
	}
	if got := signalOrderColumn("confidence; drop table signals"); got != "" {
		t.Fatalf("unexpected passthrough %q", got)
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if ok, err := s.InsertMessage(ctx, &models.TelegramMessage{}); ok || err != nil {
		t.Fatalf("InsertMessage ok=%v err=%v", ok, err)
	}
	if ok, err := s.InsertSignal(ctx, &models.Signal{}); ok || err != nil {
		t.Fatalf("InsertSignal ok=%v err=%v", ok, err)
	}
	if items, err := s.ListSignals(ctx, repository.ListSignalsParams{}); items != nil || err != nil {
		t.Fatalf("ListSignals items=%v err=%v", items, err)
	}
	if n, err := s.MarkSignalsProcessed(ctx, []uint64{1}); n != 0 || err != nil {
		t.Fatalf("MarkSignalsProcessed n=%d err=%v", n, err)
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatalf("expected ping error without db")
	}
}
