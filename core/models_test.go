package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/nexus/schema"
)

type localResult struct {
	models []schema.ModelInfo
	err    error
}

type settled struct {
	gen     uint64
	applied bool
}

// gateLocalModels makes every LocalModels call block until the test replies.
func gateLocalModels(bridge *fakeBridge) chan chan localResult {
	requests := make(chan chan localResult, 8)
	bridge.localHook = func(ctx context.Context) ([]schema.ModelInfo, error) {
		reply := make(chan localResult, 1)
		requests <- reply
		select {
		case res := <-reply:
			return res.models, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return requests
}

func nextRequest(t *testing.T, requests chan chan localResult) chan localResult {
	t.Helper()
	select {
	case reply := <-requests:
		return reply
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for model list request")
		return nil
	}
}

func nextSettled(t *testing.T, ch chan settled) settled {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for model list resolution")
		return settled{}
	}
}

func TestStaleModelListIsDiscarded(t *testing.T) {
	bridge := newFakeBridge()
	requests := gateLocalModels(bridge)
	ts := newTestShell(t, bridge, nil)
	results := make(chan settled, 8)
	ts.Models().settleHook = func(gen uint64, applied bool) {
		results <- settled{gen: gen, applied: applied}
	}

	if _, err := ts.SetMode(schema.ModeLocal); err != nil {
		t.Fatalf("toggle A: %v", err)
	}
	replyA := nextRequest(t, requests)
	genA := ts.Models().Generation()
	if _, err := ts.SetMode(schema.ModeRemote); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := ts.SetMode(schema.ModeLocal); err != nil {
		t.Fatalf("toggle B: %v", err)
	}
	replyB := nextRequest(t, requests)
	genB := ts.Models().Generation()

	replyA <- localResult{models: []schema.ModelInfo{{Name: "from-a"}}}
	if got := nextSettled(t, results); got.gen != genA || got.applied {
		t.Fatalf("expected stale result A discarded, got %+v", got)
	}
	if snap := ts.Models().Snapshot(); !snap.Loading || len(snap.Options) != 0 {
		t.Fatalf("expected selector still loading, got %+v", snap)
	}

	replyB <- localResult{models: []schema.ModelInfo{{Name: "from-b"}}}
	if got := nextSettled(t, results); got.gen != genB || !got.applied {
		t.Fatalf("expected result B applied, got %+v", got)
	}
	snap := ts.Models().Snapshot()
	if snap.Loading || len(snap.Options) != 1 || snap.Selected != "ollama:from-b" {
		t.Fatalf("expected only B's models, got %+v", snap)
	}
}

func TestLocalModelsEmptyUsesCacheThenSentinel(t *testing.T) {
	bridge := newFakeBridge()
	ts := newTestShell(t, bridge, nil)
	results := make(chan settled, 8)
	ts.Models().settleHook = func(gen uint64, applied bool) {
		results <- settled{gen: gen, applied: applied}
	}

	ts.Models().SetMode(schema.ModeLocal)
	nextSettled(t, results)
	snap := ts.Models().Snapshot()
	if snap.Selected != schema.NoLocalModel || snap.Options[0].Label != schema.MsgNoLocalModels {
		t.Fatalf("expected sentinel, got %+v", snap)
	}
	if _, _, ok := ts.Models().Current(); ok {
		t.Fatalf("expected sentinel to count as no model")
	}

	bridge.mu.Lock()
	bridge.localModels = []schema.ModelInfo{{Name: "llama3"}, {Name: "qwen"}}
	bridge.mu.Unlock()
	ts.Models().Reload()
	nextSettled(t, results)
	if snap := ts.Models().Snapshot(); snap.Selected != "ollama:llama3" || len(snap.Options) != 2 {
		t.Fatalf("expected fetched models, got %+v", snap)
	}

	bridge.mu.Lock()
	bridge.localModels = nil
	bridge.localErr = errors.New("connection refused")
	bridge.mu.Unlock()
	ts.Models().Reload()
	nextSettled(t, results)
	if snap := ts.Models().Snapshot(); len(snap.Options) != 2 || snap.Options[1].ID != "ollama:qwen" {
		t.Fatalf("expected cached models, got %+v", snap)
	}
}

func TestLoadingStateIsNotUsable(t *testing.T) {
	bridge := newFakeBridge()
	requests := gateLocalModels(bridge)
	ts := newTestShell(t, bridge, nil)
	snap, err := ts.SetMode(schema.ModeLocal)
	if err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if !snap.Loading {
		t.Fatalf("expected loading snapshot")
	}
	if _, _, ok := ts.Models().Current(); ok {
		t.Fatalf("expected no usable model while loading")
	}
	nextRequest(t, requests) <- localResult{models: []schema.ModelInfo{{Name: "llama3"}}}
	waitFor(t, time.Second, func() bool {
		_, _, ok := ts.Models().Current()
		return ok
	})
}

func TestRemoteModeSelection(t *testing.T) {
	bridge := newFakeBridge()
	bridge.remoteModels = []schema.ModelInfo{{Name: "meta-llama/llama-3-8b:free"}}
	ts := newTestShell(t, bridge, nil)

	snap, err := ts.SetMode("remote")
	if err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if snap.Mode != schema.ModeRemote || snap.Selected != schema.DefaultRemoteModel || snap.Loading {
		t.Fatalf("expected default remote model, got %+v", snap)
	}
	if ts.modes.Mode() != schema.ModeRemote {
		t.Fatalf("expected mode persisted, got %q", ts.modes.Mode())
	}
	if _, err := ts.Models().LoadRemoteModels(context.Background()); err != nil {
		t.Fatalf("load remote models: %v", err)
	}
	if _, err := ts.Models().Select("openrouter:meta-llama/llama-3-8b:free"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := ts.Models().Select("ollama:llama3"); !errors.Is(err, schema.ErrInvalidModel) {
		t.Fatalf("expected invalid model for local id in remote mode, got %v", err)
	}
	mode, model, ok := ts.Models().Current()
	if mode != schema.ModeRemote || model != "openrouter:meta-llama/llama-3-8b:free" || !ok {
		t.Fatalf("unexpected current model %q %q %v", mode, model, ok)
	}
	ts.Models().SetMode(schema.ModeLocal)
	snap, _ = ts.SetMode(schema.ModeRemote)
	if snap.Selected != "openrouter:meta-llama/llama-3-8b:free" {
		t.Fatalf("expected remote choice to survive a mode round trip, got %q", snap.Selected)
	}
	if _, err := ts.SetMode("quantum"); !errors.Is(err, schema.ErrInvalidMode) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
}

func TestInitRestoresPersistedMode(t *testing.T) {
	bridge := newFakeBridge()
	ts := newTestShell(t, bridge, nil)
	ts.modes.SaveMode(schema.ModeRemote)
	ts.startReady(t)
	if got := ts.Models().Snapshot().Mode; got != schema.ModeRemote {
		t.Fatalf("expected persisted remote mode, got %q", got)
	}
}
