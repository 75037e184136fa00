package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/nexus/internal/directive"
	"pkt.systems/nexus/schema"
)

// readyLocalShell returns a started shell in local mode with one usable
// model and an open page.
func readyLocalShell(t *testing.T, bridge *fakeBridge) *testShell {
	t.Helper()
	bridge.localModels = []schema.ModelInfo{{Name: "llama3"}, {Name: "mistral"}}
	ts := newTestShell(t, bridge, nil)
	ts.startReady(t)
	waitFor(t, time.Second, func() bool {
		_, _, ok := ts.Models().Current()
		return ok
	})
	if err := ts.Registry().Open(context.Background(), "https://example.com/article"); err != nil {
		t.Fatalf("open: %v", err)
	}
	return ts
}

// publishChunks streams chunks answering request id on the mode's topic.
func publishChunks(t *testing.T, ts *testShell, mode schema.Mode, id schema.RequestID, chunks ...schema.StreamChunk) {
	t.Helper()
	for _, chunk := range chunks {
		chunk.RequestID = id
		if err := ts.inbound.Stream(mode).PublishWait(context.Background(), chunk); err != nil {
			t.Fatalf("publish chunk: %v", err)
		}
	}
}

func TestStreamingFoldsChunksIntoOneTurn(t *testing.T) {
	bridge := newFakeBridge()
	ts := readyLocalShell(t, bridge)

	resp, err := ts.Submit(context.Background(), "/ozetle")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Dispatched || resp.RequestID == "" {
		t.Fatalf("expected dispatch, got %+v", resp)
	}
	d, _ := directive.Lookup("ozetle")
	if resp.Prompt != d.Instruction+"\n\n"+d.DefaultQuestion {
		t.Fatalf("unexpected prompt %q", resp.Prompt)
	}
	waitFor(t, time.Second, func() bool { return len(bridge.Asks()) == 1 })
	ask := bridge.Asks()[0]
	if ask.Mode != schema.ModeLocal || ask.Req.Model != "llama3" || ask.Req.URL != "https://example.com/article" {
		t.Fatalf("unexpected ask %+v", ask)
	}
	if !ts.Snapshot().Busy {
		t.Fatalf("expected busy while dispatched")
	}

	publishChunks(t, ts, schema.ModeLocal, resp.RequestID,
		schema.StreamChunk{Response: "Hel"},
		schema.StreamChunk{Response: "lo"},
		schema.StreamChunk{Done: true},
	)
	waitFor(t, time.Second, func() bool { return lastTurn(ts).Final && lastTurn(ts).Role == schema.RoleAssistant })
	turns := ts.Snapshot().Transcript
	if len(turns) != 2 {
		t.Fatalf("expected user and assistant turns, got %+v", turns)
	}
	if turns[0].Role != schema.RoleUser || turns[0].Text != "/ozetle" {
		t.Fatalf("expected original user text, got %+v", turns[0])
	}
	if turns[1].Text != "Hello" {
		t.Fatalf("expected folded answer, got %q", turns[1].Text)
	}
	if ts.Snapshot().Busy || ts.Coordinator().Busy() {
		t.Fatalf("expected input re-enabled")
	}

	updates := 0
	for _, ev := range ts.sink.Turns() {
		if ev.Index == 1 {
			updates++
		}
	}
	if updates != 3 {
		t.Fatalf("expected three renders of the assistant turn, got %d", updates)
	}
}

func TestDoneWithoutTextUsesPlaceholder(t *testing.T) {
	ts := readyLocalShell(t, newFakeBridge())
	resp, err := ts.Submit(context.Background(), "what is this?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	publishChunks(t, ts, schema.ModeLocal, resp.RequestID, schema.StreamChunk{Done: true})
	waitFor(t, time.Second, func() bool { return lastTurn(ts).Final && lastTurn(ts).Role == schema.RoleAssistant })
	if got := lastTurn(ts).Text; got != schema.EmptyAnswerText {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	t.Run("no page", func(t *testing.T) {
		bridge := newFakeBridge()
		bridge.localModels = []schema.ModelInfo{{Name: "llama3"}}
		ts := newTestShell(t, bridge, nil)
		ts.startReady(t)
		resp, err := ts.Submit(context.Background(), "hello")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if resp.Dispatched || resp.Rejected != schema.MsgOpenPageFirst {
			t.Fatalf("expected open page rejection, got %+v", resp)
		}
		if !hasSystemTurn(ts, schema.MsgOpenPageFirst) {
			t.Fatalf("expected system turn")
		}
	})
	t.Run("no model", func(t *testing.T) {
		bridge := newFakeBridge()
		ts := newTestShell(t, bridge, nil)
		ts.startReady(t)
		waitFor(t, time.Second, func() bool { return ts.Models().Snapshot().Selected == schema.NoLocalModel })
		_ = ts.Registry().Open(context.Background(), "example.com")
		resp, _ := ts.Submit(context.Background(), "hello")
		if resp.Rejected != schema.MsgSelectModel {
			t.Fatalf("expected model rejection, got %+v", resp)
		}
		if len(bridge.Asks()) != 0 {
			t.Fatalf("expected no dispatch")
		}
	})
	t.Run("degraded", func(t *testing.T) {
		bridge := newFakeBridge()
		bridge.pingErr = errors.New("down")
		ts := newTestShell(t, bridge, func(cfg *schema.ShellConfig) {
			cfg.DefaultMode = schema.ModeRemote
			cfg.ProbeAttempts = 2
		})
		ts.startReady(t)
		if _, err := ts.Models().Select(string(schema.DefaultRemoteModel)); err != nil {
			t.Fatalf("select: %v", err)
		}
		ts.Registry().CreateSession(context.Background())
		// Navigation is refused while degraded, so set the url directly.
		id, _ := ts.Registry().ActiveTarget()
		ts.Registry().mu.Lock()
		ts.Registry().findLocked(id).URL = "https://example.com"
		ts.Registry().mu.Unlock()
		resp, _ := ts.Submit(context.Background(), "hello")
		if resp.Rejected != schema.MsgBridgeUnavailable {
			t.Fatalf("expected bridge rejection, got %+v", resp)
		}
	})
	t.Run("empty", func(t *testing.T) {
		ts := newTestShell(t, newFakeBridge(), nil)
		if _, err := ts.Submit(context.Background(), "   "); !errors.Is(err, schema.ErrEmptyPrompt) {
			t.Fatalf("expected empty prompt error, got %v", err)
		}
	})
}

func TestDispatchFailureAddsSystemTurn(t *testing.T) {
	bridge := newFakeBridge()
	ts := readyLocalShell(t, bridge)
	bridge.mu.Lock()
	bridge.askErr = errors.New("connection refused")
	bridge.mu.Unlock()
	if _, err := ts.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return hasSystemTurn(ts, "Hata: connection refused") })
	waitFor(t, time.Second, func() bool { return !ts.Snapshot().Busy })
	for _, turn := range ts.Snapshot().Transcript {
		if turn.Role == schema.RoleAssistant {
			t.Fatalf("expected no assistant turn, got %+v", turn)
		}
	}
	if len(bridge.Asks()) != 1 {
		t.Fatalf("expected no retry, got %d asks", len(bridge.Asks()))
	}
}

func TestSubmitWhileBusyIsRejected(t *testing.T) {
	ts := readyLocalShell(t, newFakeBridge())
	if _, err := ts.Submit(context.Background(), "first"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := ts.Submit(context.Background(), "second"); !errors.Is(err, schema.ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestMismatchedStreamIsIgnored(t *testing.T) {
	ts := readyLocalShell(t, newFakeBridge())
	resp, err := ts.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	publishChunks(t, ts, schema.ModeRemote, resp.RequestID, schema.StreamChunk{Response: "wrong"}, schema.StreamChunk{Done: true})
	publishChunks(t, ts, schema.ModeLocal, "other", schema.StreamChunk{Response: "stale"}, schema.StreamChunk{Done: true})
	publishChunks(t, ts, schema.ModeLocal, resp.RequestID, schema.StreamChunk{Response: "right"}, schema.StreamChunk{Done: true})
	waitFor(t, time.Second, func() bool { return lastTurn(ts).Final && lastTurn(ts).Role == schema.RoleAssistant })
	if got := lastTurn(ts).Text; got != "right" {
		t.Fatalf("expected only local chunks, got %q", got)
	}
}

func TestChunksWithoutRequestAreIgnored(t *testing.T) {
	ts := readyLocalShell(t, newFakeBridge())
	before := len(ts.Snapshot().Transcript)
	ts.Coordinator().HandleChunk(schema.ModeLocal, schema.StreamChunk{Response: "stray", Done: true})
	if len(ts.Snapshot().Transcript) != before {
		t.Fatalf("expected stray chunk to be ignored")
	}
	if ts.Coordinator().Phase() != "idle" {
		t.Fatalf("expected idle phase, got %s", ts.Coordinator().Phase())
	}
}

func TestModeSwitchFreezesInFlightAnswer(t *testing.T) {
	ts := readyLocalShell(t, newFakeBridge())
	resp, err := ts.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	publishChunks(t, ts, schema.ModeLocal, resp.RequestID, schema.StreamChunk{Response: "partial"})
	waitFor(t, time.Second, func() bool { return lastTurn(ts).Text == "partial" })

	if _, err := ts.SetMode(schema.ModeRemote); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	turn := lastTurn(ts)
	if !turn.Final || turn.Text != "partial" {
		t.Fatalf("expected frozen partial answer, got %+v", turn)
	}
	if ts.Coordinator().Busy() {
		t.Fatalf("expected input re-enabled")
	}
	ts.Coordinator().HandleChunk(schema.ModeLocal, schema.StreamChunk{RequestID: resp.RequestID, Response: " more", Done: true})
	if got := lastTurn(ts).Text; got != "partial" {
		t.Fatalf("expected late chunks ignored, got %q", got)
	}
}

func TestSupersededStreamDoesNotLeakIntoNextAnswer(t *testing.T) {
	bridge := newFakeBridge()
	bridge.holdAsks = true
	ts := readyLocalShell(t, bridge)

	first, err := ts.Submit(context.Background(), "first question")
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(bridge.Asks()) == 1 })
	publishChunks(t, ts, schema.ModeLocal, first.RequestID, schema.StreamChunk{Response: "A-partial"})
	waitFor(t, time.Second, func() bool { return lastTurn(ts).Text == "A-partial" })

	if _, err := ts.SetMode(schema.ModeRemote); err != nil {
		t.Fatalf("set remote: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		cancelled := bridge.Cancelled()
		return len(cancelled) == 1 && cancelled[0] == first.RequestID
	})
	if _, err := ts.SetMode(schema.ModeLocal); err != nil {
		t.Fatalf("set local: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		mode, _, ok := ts.Models().Current()
		return ok && mode == schema.ModeLocal
	})

	second, err := ts.Submit(context.Background(), "second question")
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if second.RequestID == first.RequestID {
		t.Fatalf("expected a fresh request id")
	}
	publishChunks(t, ts, schema.ModeLocal, first.RequestID,
		schema.StreamChunk{Response: " A-tail"},
		schema.StreamChunk{Done: true},
	)
	if turn := lastTurn(ts); turn.Role != schema.RoleUser || turn.Text != "second question" {
		t.Fatalf("expected stale stream dropped, got %+v", turn)
	}
	if !ts.Coordinator().Busy() {
		t.Fatalf("expected second request still in flight")
	}

	publishChunks(t, ts, schema.ModeLocal, second.RequestID,
		schema.StreamChunk{Response: "B"},
		schema.StreamChunk{Done: true},
	)
	waitFor(t, time.Second, func() bool { return lastTurn(ts).Final && lastTurn(ts).Role == schema.RoleAssistant })
	if got := lastTurn(ts).Text; got != "B" {
		t.Fatalf("expected second answer only, got %q", got)
	}
	for _, turn := range ts.Snapshot().Transcript {
		if turn.Role == schema.RoleAssistant && strings.Contains(turn.Text, "A-tail") {
			t.Fatalf("superseded tail leaked into %+v", turn)
		}
	}
}

func TestRemoteDispatchStripsPrefix(t *testing.T) {
	bridge := newFakeBridge()
	ts := newTestShell(t, bridge, func(cfg *schema.ShellConfig) {
		cfg.DefaultMode = schema.ModeRemote
	})
	ts.startReady(t)
	_ = ts.Registry().Open(context.Background(), "example.com")
	if _, err := ts.Submit(context.Background(), "/kisalt bunu özetle"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(bridge.Asks()) == 1 })
	ask := bridge.Asks()[0]
	if ask.Mode != schema.ModeRemote || ask.Req.Model != "google/gemini-2.0-flash-exp:free" {
		t.Fatalf("unexpected remote ask %+v", ask)
	}
	if !strings.HasSuffix(ask.Req.Question, "\n\nbunu özetle") {
		t.Fatalf("expected directive prompt, got %q", ask.Req.Question)
	}
}

func TestLoadHistoryRestoresTranscript(t *testing.T) {
	bridge := newFakeBridge()
	bridge.history = []schema.ChatMessage{
		{Role: schema.RoleUser, Content: "önceki soru"},
		{Role: schema.RoleAssistant, Content: "önceki cevap"},
	}
	ts := readyLocalShell(t, bridge)
	ts.transcript.AppendSystem("stale")
	if err := ts.Coordinator().LoadHistory(context.Background()); err != nil {
		t.Fatalf("load history: %v", err)
	}
	turns := ts.Snapshot().Transcript
	if len(turns) != 2 || turns[0].Text != "önceki soru" || !turns[1].Final {
		t.Fatalf("unexpected restored transcript %+v", turns)
	}
}
