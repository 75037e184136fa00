package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/nexus/schema"
)

type askCall struct {
	Mode schema.Mode
	Req  schema.AskRequest
}

type fakeBridge struct {
	mu sync.Mutex

	calls     []string
	openErr   error
	pageInfo  map[string]schema.PageInfo
	pingErr   error
	pingFails int
	pings     int
	askErr    error
	asks      []askCall
	// holdAsks keeps ask calls open until their context is cancelled.
	holdAsks  bool
	cancelled []schema.RequestID
	openHook  func(id schema.SessionID)
	cleared   []string
	history   []schema.ChatMessage
	baseURL   string

	localModels  []schema.ModelInfo
	localErr     error
	localHook    func(ctx context.Context) ([]schema.ModelInfo, error)
	remoteModels []schema.ModelInfo

	shortcuts  []schema.Shortcut
	nextID     schema.ShortcutID
	saves      []schema.SaveShortcutRequest
	reorders   [][]schema.ShortcutID
	reorderErr error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		pageInfo: make(map[string]schema.PageInfo),
		baseURL:  "http://localhost:11434",
		nextID:   1,
	}
}

func (b *fakeBridge) record(format string, args ...any) {
	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
	b.mu.Unlock()
}

func (b *fakeBridge) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBridge) LastCall() string {
	calls := b.Calls()
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1]
}

func (b *fakeBridge) Asks() []askCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]askCall(nil), b.asks...)
}

func (b *fakeBridge) OpenOrNavigate(_ context.Context, id schema.SessionID, url string) error {
	b.mu.Lock()
	hook := b.openHook
	b.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	b.record("open:%s:%s", id, url)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openErr
}

func (b *fakeBridge) ShowOnly(_ context.Context, id schema.SessionID) error {
	b.record("show:%s", id)
	return nil
}

func (b *fakeBridge) Reposition(_ context.Context, id schema.SessionID, rect schema.Rect) error {
	b.record("reposition:%s:%.0fx%.0f", id, rect.Width, rect.Height)
	return nil
}

func (b *fakeBridge) HideAll(context.Context) error {
	b.record("hide")
	return nil
}

func (b *fakeBridge) CloseSurface(_ context.Context, id schema.SessionID) error {
	b.record("close:%s", id)
	return nil
}

func (b *fakeBridge) PageInfo(_ context.Context, _ schema.SessionID, url string) (schema.PageInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.pageInfo[url]
	if !ok {
		return schema.PageInfo{}, errors.New("no page info")
	}
	return info, nil
}

func (b *fakeBridge) NavigateBack(_ context.Context, id schema.SessionID) error {
	b.record("back:%s", id)
	return nil
}

func (b *fakeBridge) NavigateForward(_ context.Context, id schema.SessionID) error {
	b.record("forward:%s", id)
	return nil
}

func (b *fakeBridge) Reload(_ context.Context, id schema.SessionID) error {
	b.record("reload:%s", id)
	return nil
}

func (b *fakeBridge) OpenExternal(_ context.Context, url string) error {
	b.record("external:%s", url)
	return nil
}

func (b *fakeBridge) LocalModels(ctx context.Context) ([]schema.ModelInfo, error) {
	b.mu.Lock()
	hook := b.localHook
	models := append([]schema.ModelInfo(nil), b.localModels...)
	err := b.localErr
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return models, err
}

func (b *fakeBridge) RemoteModels(context.Context) ([]schema.ModelInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schema.ModelInfo(nil), b.remoteModels...), nil
}

func (b *fakeBridge) AskLocal(ctx context.Context, req schema.AskRequest) error {
	return b.ask(ctx, schema.ModeLocal, req)
}

func (b *fakeBridge) AskRemote(ctx context.Context, req schema.AskRequest) error {
	return b.ask(ctx, schema.ModeRemote, req)
}

func (b *fakeBridge) ask(ctx context.Context, mode schema.Mode, req schema.AskRequest) error {
	b.mu.Lock()
	b.asks = append(b.asks, askCall{Mode: mode, Req: req})
	hold, err := b.holdAsks, b.askErr
	b.mu.Unlock()
	if !hold {
		return err
	}
	<-ctx.Done()
	b.mu.Lock()
	b.cancelled = append(b.cancelled, req.RequestID)
	b.mu.Unlock()
	return ctx.Err()
}

func (b *fakeBridge) Cancelled() []schema.RequestID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schema.RequestID(nil), b.cancelled...)
}

func (b *fakeBridge) ClearCacheForURL(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared = append(b.cleared, url)
	return nil
}

func (b *fakeBridge) ChatHistory(_ context.Context, _ string, limit int) ([]schema.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.history
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]schema.ChatMessage(nil), out...), nil
}

func (b *fakeBridge) LocalBaseURL(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseURL, nil
}

func (b *fakeBridge) SetLocalBaseURL(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseURL = url
	return nil
}

func (b *fakeBridge) Shortcuts(context.Context) ([]schema.Shortcut, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schema.Shortcut(nil), b.shortcuts...), nil
}

func (b *fakeBridge) SaveShortcut(_ context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves = append(b.saves, req)
	item := schema.Shortcut{ID: req.ID, Title: req.Title, URL: req.URL, Color: req.Color, Icon: req.Icon, SortOrder: req.SortOrder}
	if item.ID == 0 {
		item.ID = b.nextID
		b.nextID++
		item.SortOrder = len(b.shortcuts) + 1
		b.shortcuts = append(b.shortcuts, item)
		return item, nil
	}
	for i := range b.shortcuts {
		if b.shortcuts[i].ID == item.ID {
			item.SortOrder = b.shortcuts[i].SortOrder
			b.shortcuts[i] = item
			return item, nil
		}
	}
	return schema.Shortcut{}, schema.ErrShortcutNotFound
}

func (b *fakeBridge) Saves() []schema.SaveShortcutRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schema.SaveShortcutRequest(nil), b.saves...)
}

func (b *fakeBridge) DeleteShortcut(_ context.Context, id schema.ShortcutID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.shortcuts {
		if b.shortcuts[i].ID == id {
			b.shortcuts = append(b.shortcuts[:i], b.shortcuts[i+1:]...)
			return nil
		}
	}
	return schema.ErrShortcutNotFound
}

func (b *fakeBridge) ReorderShortcuts(_ context.Context, ids []schema.ShortcutID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reorders = append(b.reorders, append([]schema.ShortcutID(nil), ids...))
	return b.reorderErr
}

func (b *fakeBridge) Reorders() [][]schema.ShortcutID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]schema.ShortcutID(nil), b.reorders...)
}

func (b *fakeBridge) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings++
	if b.pingFails > 0 {
		b.pingFails--
		return errors.New("not ready")
	}
	return b.pingErr
}

type memModes struct {
	mu   sync.Mutex
	mode schema.Mode
}

func (m *memModes) LoadMode() (schema.Mode, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode, m.mode != "", nil
}

func (m *memModes) SaveMode(mode schema.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return nil
}

func (m *memModes) Mode() schema.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

type recordingSink struct {
	mu       sync.Mutex
	sessions []schema.SessionEvent
	turns    []schema.TurnEvent
	statuses []schema.StatusEvent
	models   []schema.ModelsEvent
	settings []schema.SettingsRequest
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (r *recordingSink) OnSession(event schema.SessionEvent) {
	r.mu.Lock()
	r.sessions = append(r.sessions, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnTurn(event schema.TurnEvent) {
	r.mu.Lock()
	r.turns = append(r.turns, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnStatus(event schema.StatusEvent) {
	r.mu.Lock()
	r.statuses = append(r.statuses, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnModels(event schema.ModelsEvent) {
	r.mu.Lock()
	r.models = append(r.models, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnSettings(event schema.SettingsRequest) {
	r.mu.Lock()
	r.settings = append(r.settings, event)
	r.mu.Unlock()
}

func (r *recordingSink) Sessions() []schema.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.SessionEvent(nil), r.sessions...)
}

func (r *recordingSink) Turns() []schema.TurnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.TurnEvent(nil), r.turns...)
}

func (r *recordingSink) Settings() []schema.SettingsRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.SettingsRequest(nil), r.settings...)
}

type testShell struct {
	*Shell
	bridge *fakeBridge
	sink   *recordingSink
	modes  *memModes
}

func newTestShell(t *testing.T, bridge *fakeBridge, mutate func(*schema.ShellConfig)) *testShell {
	t.Helper()
	cfg := schema.ShellConfig{
		StateDir:           t.TempDir(),
		DefaultMode:        schema.ModeLocal,
		LayoutDebounce:     5 * time.Millisecond,
		MetadataRetryDelay: time.Hour,
		ProbeAttempts:      3,
		ProbeInterval:      time.Millisecond,
		ShortcutAutosave:   10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sink := newRecordingSink()
	modes := &memModes{}
	shell, err := NewShell(context.Background(), cfg, ShellDeps{
		Bridge: bridge,
		Modes:  modes,
		Sink:   sink,
	})
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	t.Cleanup(shell.Close)
	return &testShell{Shell: shell, bridge: bridge, sink: sink, modes: modes}
}

// startReady starts the shell and waits for startup to finish.
func (ts *testShell) startReady(t *testing.T) {
	t.Helper()
	ts.Start()
	select {
	case <-ts.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for shell startup")
	}
}

func waitFor(t *testing.T, timeout time.Duration, ready func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ready() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}

func lastTurn(ts *testShell) schema.Turn {
	turns := ts.Snapshot().Transcript
	if len(turns) == 0 {
		return schema.Turn{}
	}
	return turns[len(turns)-1]
}

func hasSystemTurn(ts *testShell, prefix string) bool {
	for _, turn := range ts.Snapshot().Transcript {
		if turn.Role == schema.RoleSystem && strings.HasPrefix(turn.Text, prefix) {
			return true
		}
	}
	return false
}
