package cronrunner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdd_RejectsBadSpec(t *testing.T) {
	r := New(nil, context.Background())
	if _, err := r.Add("bad", "not a spec", 0, func(context.Context) {}); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if r.Len() != 0 {
		t.Fatalf("entries=%d want 0", r.Len())
	}
}

func TestRunner_RunsAndRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(nil, ctx)

	var ran, panicked atomic.Int32
	if _, err := r.Add("tick", "@every 1s", time.Second, func(context.Context) { ran.Add(1) }); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.Add("panics", "@every 1s", 0, func(context.Context) {
		panicked.Add(1)
		panic("boom")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Start()
	deadline := time.Now().Add(5 * time.Second)
	for ran.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	r.Stop()
	if ran.Load() < 2 || panicked.Load() < 1 {
		t.Fatalf("ran=%d panicked=%d", ran.Load(), panicked.Load())
	}
}

func TestRunner_SkipsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(nil, ctx)
	var ran atomic.Int32
	if _, err := r.Add("tick", "@every 1s", 0, func(context.Context) { ran.Add(1) }); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Start()
	time.Sleep(1500 * time.Millisecond)
	r.Stop()
	if ran.Load() != 0 {
		t.Fatalf("job ran %d times after cancel", ran.Load())
	}
}
