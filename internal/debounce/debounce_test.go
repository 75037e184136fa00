package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerCoalescesBurst(t *testing.T) {
	d := New(30 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		v := int32(i)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(v)
		})
		time.Sleep(5 * time.Millisecond)
	}
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
	if got := last.Load(); got != 5 {
		t.Fatalf("expected latest func to run, got %d", got)
	}
}

func TestCancelDropsPending(t *testing.T) {
	d := New(20 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Cancel()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no call after cancel")
	}
	if d.Pending() {
		t.Fatalf("expected nothing pending")
	}
}

func TestFlushRunsImmediately(t *testing.T) {
	d := New(time.Hour)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	if !d.Pending() {
		t.Fatalf("expected pending call")
	}
	d.Flush()
	if calls.Load() != 1 {
		t.Fatalf("expected flush to run the call")
	}
	d.Flush()
	if calls.Load() != 1 {
		t.Fatalf("expected second flush to be a no-op")
	}
}
