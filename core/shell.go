package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/nexus/internal/eventbus"
	"pkt.systems/nexus/internal/format"
	"pkt.systems/nexus/internal/persist"
	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// Shell is the application context: it owns the registry, the model
// selector, the coordinator and the shortcut grid, and routes inbound
// bridge events to them.
type Shell struct {
	cfg     schema.ShellConfig
	bridge  Bridge
	inbound *Inbound
	sink    EventSink
	log     pslog.Logger

	status      *status
	transcript  *transcript
	registry    *Registry
	models      *ModelSelector
	coordinator *Coordinator
	shortcuts   *Shortcuts

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	unsubs    []func()
	started   bool
	closed    bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewShell wires a shell. Background work runs under ctx until Close.
func NewShell(ctx context.Context, cfg schema.ShellConfig, deps ShellDeps) (*Shell, error) {
	normalized, err := schema.NormalizeShellConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Bridge == nil {
		return nil, errors.New("bridge is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	if deps.Inbound == nil {
		deps.Inbound = NewInbound(logger)
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Formatter == nil {
		deps.Formatter = format.NewPlainFormatter()
	}
	if deps.Strategy == nil {
		deps.Strategy = reorder.Sortable{}
	}
	if deps.Modes == nil {
		store, err := persist.NewStoreWithLogger(cfg.StateDir, logger)
		if err != nil {
			return nil, err
		}
		deps.Modes = store
	}

	runCtx, cancel := context.WithCancel(pslog.ContextWithLogger(ctx, logger))
	s := &Shell{
		cfg:     cfg,
		bridge:  deps.Bridge,
		inbound: deps.Inbound,
		sink:    deps.Sink,
		log:     logger,
		ctx:     runCtx,
		cancel:  cancel,
		ready:   make(chan struct{}),
	}
	s.status = newStatus(deps.Sink)
	s.transcript = newTranscript(cfg.TranscriptMaxTurns, deps.Sink)
	registry, err := newRegistry(runCtx, cfg, registryDeps{
		surfaces:   deps.Bridge,
		cache:      deps.Bridge,
		transcript: s.transcript,
		status:     s.status,
		sink:       deps.Sink,
		logger:     logger,
		strategy:   deps.Strategy,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.registry = registry
	s.models = newModelSelector(runCtx, cfg, deps.Bridge, deps.Modes, deps.Sink, logger)
	s.coordinator = newCoordinator(runCtx, coordinatorDeps{
		backends:   deps.Bridge,
		registry:   s.registry,
		models:     s.models,
		transcript: s.transcript,
		status:     s.status,
		formatter:  deps.Formatter,
		logger:     logger,
	})
	shortcuts, err := newShortcuts(runCtx, deps.Bridge, cfg.ShortcutAutosave, deps.Strategy, deps.ShortcutLayout, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	s.shortcuts = shortcuts
	return s, nil
}

// Start subscribes to every inbound topic and runs the startup probe in the
// background. Ready is closed once startup finished.
func (s *Shell) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	listen(s, s.inbound.LocalStream, func(ev schema.StreamChunk) {
		s.coordinator.HandleChunk(schema.ModeLocal, ev)
	})
	listen(s, s.inbound.RemoteStream, func(ev schema.StreamChunk) {
		s.coordinator.HandleChunk(schema.ModeRemote, ev)
	})
	listen(s, s.inbound.ContentSource, func(ev schema.ContentSource) {
		s.log.Debug("shell content source", "mode", ev.Mode, "url", ev.URL, "source", ev.Source, "from_cache", ev.FromCache, "length", ev.Length)
	})
	listen(s, s.inbound.Navigated, s.registry.ApplyNavigation)
	listen(s, s.inbound.TitleChanged, s.registry.ApplyTitle)
	listen(s, s.inbound.FaviconChanged, s.registry.ApplyFavicon)
	listen(s, s.inbound.OpenSettings, s.sink.OnSettings)
	listen(s, s.inbound.ModelFallback, func(ev schema.ModelFallback) {
		s.log.Info("shell model fallback", "to", ev.To)
		s.status.SetMessage(fmt.Sprintf(schema.MsgModelFallbackFmt, ev.To))
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.readyOnce.Do(func() { close(s.ready) })
		s.startup()
	}()
}

func (s *Shell) startup() {
	if err := probe(s.ctx, s.bridge, s.cfg.ProbeAttempts, s.cfg.ProbeInterval, s.log); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.status.SetDegraded(schema.MsgBridgeDisconnected)
		return
	}
	s.models.Init(s.cfg.DefaultMode)
	_, _ = s.shortcuts.Load(s.ctx)
	s.log.Info("shell ready", "mode", s.models.Snapshot().Mode)
}

// listen runs fn for every event on topic until the shell closes.
func listen[T any](s *Shell, topic *eventbus.Topic[T], fn func(T)) {
	ch, cancel := topic.Subscribe()
	s.mu.Lock()
	s.unsubs = append(s.unsubs, cancel)
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}()
}

// Ready is closed once the startup probe finished.
func (s *Shell) Ready() <-chan struct{} {
	return s.ready
}

// Close tears down every subscription and waits for background work.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	s.shortcuts.Flush()
	s.cancel()
	for _, unsub := range unsubs {
		unsub()
	}
	s.wg.Wait()
	s.registry.wait()
	s.models.wait()
	s.coordinator.wait()
	s.readyOnce.Do(func() { close(s.ready) })
	s.log.Debug("shell closed")
}

// Registry returns the session registry.
func (s *Shell) Registry() *Registry { return s.registry }

// Models returns the model selector.
func (s *Shell) Models() *ModelSelector { return s.models }

// Coordinator returns the streaming coordinator.
func (s *Shell) Coordinator() *Coordinator { return s.coordinator }

// Shortcuts returns the shortcut grid.
func (s *Shell) Shortcuts() *Shortcuts { return s.shortcuts }

// Layout returns the geometry pusher.
func (s *Shell) Layout() *Layout { return s.registry.Layout() }

// Submit forwards input to the coordinator.
func (s *Shell) Submit(ctx context.Context, input string) (schema.SubmitResponse, error) {
	return s.coordinator.Submit(ctx, input)
}

// SetMode switches the answer source. An in-flight answer from the previous
// mode is frozen.
func (s *Shell) SetMode(mode schema.Mode) (schema.ModelsSnapshot, error) {
	snap, err := s.models.SetMode(mode)
	if err != nil {
		return schema.ModelsSnapshot{}, err
	}
	s.coordinator.Supersede()
	return snap, nil
}

// LocalBaseURL returns the configured local model server address.
func (s *Shell) LocalBaseURL(ctx context.Context) (string, error) {
	return s.bridge.LocalBaseURL(ctx)
}

// SetLocalBaseURL stores a new local model server address and refreshes the
// model list when the local mode is active.
func (s *Shell) SetLocalBaseURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return schema.ErrEmptyBaseURL
	}
	if err := s.bridge.SetLocalBaseURL(ctx, url); err != nil {
		pslog.Ctx(ctx).Warn("shell base url save failed", "err", err)
		return err
	}
	if mode, _, _ := s.models.Current(); mode == schema.ModeLocal {
		s.models.Reload()
	}
	return nil
}

// Snapshot returns the full coordination state.
func (s *Shell) Snapshot() schema.ShellSnapshot {
	address, home := s.registry.View()
	active, _ := s.registry.ActiveTarget()
	st := s.status.Snapshot()
	return schema.ShellSnapshot{
		Sessions:      s.registry.Sessions(),
		ActiveSession: active,
		Address:       address,
		Home:          home,
		Transcript:    s.transcript.Snapshot(),
		Models:        s.models.Snapshot(),
		Busy:          st.Busy,
		Degraded:      st.Degraded,
		Status:        st.Message,
	}
}

// OpenSettings asks every sink to show the settings surface.
func (s *Shell) OpenSettings(source string) {
	s.inbound.OpenSettings.Publish(schema.SettingsRequest{Source: source})
}

// ForgetPage drops the cached page text and chat history for the active
// session's page.
func (s *Shell) ForgetPage(ctx context.Context) error {
	_, url := s.registry.ActiveTarget()
	if url == "" {
		return schema.ErrNoURL
	}
	if s.coordinator.Busy() {
		return schema.ErrBusy
	}
	if err := s.bridge.ClearCacheForURL(ctx, url); err != nil {
		pslog.Ctx(ctx).Warn("shell forget page failed", "url", url, "err", err)
		return err
	}
	s.transcript.Reset()
	return nil
}
