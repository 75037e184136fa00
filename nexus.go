// Package nexus composes the coordination shell with its bridge and
// frontends.
package nexus

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/nexus/core"
	"pkt.systems/nexus/httpapi"
	"pkt.systems/nexus/internal/bridge"
	"pkt.systems/nexus/internal/eventbus"
	"pkt.systems/nexus/internal/persist"
	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// Server runs the shell and its enabled frontends.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Shell returns the coordination shell.
	Shell() *core.Shell
	// Events returns the in-process event bus, nil unless WithEventBus was given.
	Events() *eventbus.Bus
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Shell      schema.ShellConfig
	Bridge     bridge.Config
	HTTP       httpapi.Config
	HubHistory int
}

// ServerDeps captures optional collaborators. A nil Bridge is opened from
// ServerConfig.Bridge and closed on Stop.
type ServerDeps struct {
	Bridge    core.Bridge
	Inbound   *core.Inbound
	Formatter core.Formatter
	Sink      core.EventSink
	Logger    pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableBus  bool
}

// WithHTTP enables the HTTP API.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithEventBus enables the in-process event bus used by terminal frontends.
func WithEventBus() ServerOption {
	return func(o *serverOptions) { o.enableBus = true }
}

// New constructs a nexus server.
func New(ctx context.Context, cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableBus {
		return nil, errors.New("no frontends enabled")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	inbound := deps.Inbound
	if inbound == nil {
		inbound = core.NewInbound(logger)
	}
	shellCfg, err := schema.NormalizeShellConfig(cfg.Shell)
	if err != nil {
		return nil, err
	}
	prefs, err := persist.NewStoreWithLogger(shellCfg.StateDir, logger)
	if err != nil {
		return nil, err
	}
	strategy := reorder.SelectStrategy(loadLiveDrag(prefs, logger))

	var closers []func()
	b := deps.Bridge
	if b == nil {
		opened, err := bridge.Open(ctx, cfg.Bridge, inbound, logger)
		if err != nil {
			return nil, err
		}
		b = opened
		closers = append(closers, opened.Close)
	}

	var hub *httpapi.Hub
	var bus *eventbus.Bus
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HubHistory, logger.With("component", "hub"))
	}
	if options.enableBus {
		bus = eventbus.New(logger)
	}
	var sinks []core.EventSink
	if deps.Sink != nil {
		sinks = append(sinks, deps.Sink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if bus != nil {
		sinks = append(sinks, bus)
	}

	shell, err := core.NewShell(ctx, shellCfg, core.ShellDeps{
		Bridge:    b,
		Inbound:   inbound,
		Modes:     prefs,
		Formatter: deps.Formatter,
		Sink:      fanout(sinks...),
		Logger:    logger,
		Strategy:  strategy,
	})
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, httpapi.FromShell(shell), hub, logger)
	}
	return &compositeServer{
		cfg:     cfg,
		options: options,
		shell:   shell,
		inbound: inbound,
		bus:     bus,
		httpSrv: httpSrv,
		closers: closers,
	}, nil
}

// loadLiveDrag reads the live drag preference, defaulting to on when the
// preferences cannot be read.
func loadLiveDrag(store *persist.Store, logger pslog.Logger) bool {
	prefs, _, err := store.Load()
	if err != nil {
		logger.Warn("server preferences unreadable", "err", err)
		return true
	}
	live := prefs.LiveDragEnabled()
	logger.Debug("server reorder strategy", "live_drag", live)
	return live
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	shell   *core.Shell
	inbound *core.Inbound
	bus     *eventbus.Bus
	httpSrv *httpapi.Server
	closers []func()
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// release closes the shell and then the resources it depends on.
func (s *compositeServer) release() {
	s.shell.Close()
	s.inbound.Close()
	s.bus.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *compositeServer) Shell() *core.Shell { return s.shell }

func (s *compositeServer) Events() *eventbus.Bus { return s.bus }

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"event_bus", s.options.enableBus,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
	)
	s.shell.Start()
	if s.httpSrv != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := httpapi.Serve(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler(), nil); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		pslog.Ctx(ctx).Error("server stopped", "err", err)
		_ = s.Stop(context.Background())
		return err
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	log := s.logger
	s.mu.Unlock()

	if !started {
		s.release()
		return nil
	}
	log.Info("server stop requested")
	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
		s.release()
	}()
	if ctx == nil {
		<-done
		log.Info("server stopped")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
