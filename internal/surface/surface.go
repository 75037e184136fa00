// Package surface drives one headless browser target per session.
package surface

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

const (
	defaultOpTimeout = 20 * time.Second
	defaultWidth     = 1280
	defaultHeight    = 800
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("surface manager closed")

// Config configures the browser.
type Config struct {
	Headless     bool
	ChromePath   string
	NoSandbox    bool
	WindowWidth  int
	WindowHeight int
	// OpTimeout bounds every browser operation.
	OpTimeout time.Duration
}

// Events receives page changes the browser reports on its own.
type Events struct {
	Navigated func(schema.NavigationEvent)
	Title     func(schema.TitleEvent)
	Favicon   func(schema.FaviconEvent)
}

type target struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

// Manager owns the browser and its targets.
type Manager struct {
	cfg    Config
	events Events
	log    pslog.Logger
	open   func(string) error

	mu            sync.Mutex
	closed        bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	targets       map[schema.SessionID]*target
	visible       schema.SessionID
	rects         map[schema.SessionID]schema.Rect

	wg sync.WaitGroup
}

// New constructs a manager. The browser starts on the first navigation.
func New(cfg Config, events Events, logger pslog.Logger) *Manager {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = defaultWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = defaultHeight
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		cfg:     cfg,
		events:  events,
		log:     logger.With("component", "surface"),
		open:    browser.OpenURL,
		targets: make(map[schema.SessionID]*target),
		rects:   make(map[schema.SessionID]schema.Rect),
	}
}

func (m *Manager) startLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.browserCtx != nil {
		return nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight),
	)
	if m.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if m.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.log.Info("surface browser started", "headless", m.cfg.Headless)
	return nil
}

// OpenOrNavigate loads url in the target for id, creating it if needed.
func (m *Manager) OpenOrNavigate(ctx context.Context, id schema.SessionID, rawURL string) error {
	m.mu.Lock()
	if err := m.startLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	t, ok := m.targets[id]
	if !ok {
		tctx, cancel := chromedp.NewContext(m.browserCtx)
		t = &target{ctx: tctx, cancel: cancel}
		m.targets[id] = t
		m.listen(tctx, id)
		m.log.Debug("surface target created", "session_id", id)
	}
	t.url = rawURL
	m.mu.Unlock()
	return m.run(ctx, t, chromedp.Navigate(rawURL))
}

// ShowOnly brings the target for id to the front and marks every other
// target hidden. An id without a target leaves nothing visible.
func (m *Manager) ShowOnly(ctx context.Context, id schema.SessionID) error {
	m.mu.Lock()
	t, ok := m.targets[id]
	if !ok {
		m.visible = ""
		m.mu.Unlock()
		return nil
	}
	m.visible = id
	rect, hasRect := m.rects[id]
	m.mu.Unlock()
	actions := []chromedp.Action{page.BringToFront()}
	if hasRect {
		actions = append(actions, metrics(rect))
	}
	return m.run(ctx, t, actions...)
}

// Reposition resizes the viewport of the target for id.
func (m *Manager) Reposition(ctx context.Context, id schema.SessionID, rect schema.Rect) error {
	if rect.Empty() {
		return nil
	}
	m.mu.Lock()
	m.rects[id] = rect
	t, ok := m.targets[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.run(ctx, t, metrics(rect))
}

// HideAll leaves no target visible.
func (m *Manager) HideAll(context.Context) error {
	m.mu.Lock()
	m.visible = ""
	m.mu.Unlock()
	return nil
}

// Visible returns the visible session, if any.
func (m *Manager) Visible() (schema.SessionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible, m.visible != ""
}

// Tracked returns the sessions that own a target.
func (m *Manager) Tracked() []schema.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.SessionID, 0, len(m.targets))
	for id := range m.targets {
		out = append(out, id)
	}
	return out
}

// CloseSurface closes the target for id.
func (m *Manager) CloseSurface(_ context.Context, id schema.SessionID) error {
	m.mu.Lock()
	t, ok := m.targets[id]
	delete(m.targets, id)
	delete(m.rects, id)
	if m.visible == id {
		m.visible = ""
	}
	m.mu.Unlock()
	if ok {
		t.cancel()
		m.log.Debug("surface target closed", "session_id", id)
	}
	return nil
}

// PageInfo reads the title and favicon of the target for id. Missing
// values fall back to the url host and a favicon service lookup.
func (m *Manager) PageInfo(ctx context.Context, id schema.SessionID, rawURL string) (schema.PageInfo, error) {
	info := Fallback(rawURL)
	t, ok := m.target(id)
	if !ok {
		return info, nil
	}
	var got struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Favicon string `json:"favicon"`
	}
	err := m.run(ctx, t, chromedp.Evaluate(`(() => {
		const icon = document.querySelector("link[rel~='icon']");
		return {title: document.title || "", url: location.href, favicon: icon ? icon.href : ""};
	})()`, &got))
	if err != nil {
		return info, err
	}
	if title := strings.TrimSpace(got.Title); title != "" {
		info.Title = title
	}
	if got.URL != "" && got.URL != "about:blank" {
		info.URL = got.URL
	}
	if got.Favicon != "" {
		info.Favicon = got.Favicon
	}
	return info, nil
}

// Text returns the visible text of the page loaded for id.
func (m *Manager) Text(ctx context.Context, id schema.SessionID) (string, error) {
	t, ok := m.target(id)
	if !ok {
		return "", schema.ErrSurfaceNotFound
	}
	var text string
	if err := m.run(ctx, t, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// NavigateBack goes back in the history of the target for id.
func (m *Manager) NavigateBack(ctx context.Context, id schema.SessionID) error {
	return m.history(ctx, id, chromedp.NavigateBack())
}

// NavigateForward goes forward in the history of the target for id.
func (m *Manager) NavigateForward(ctx context.Context, id schema.SessionID) error {
	return m.history(ctx, id, chromedp.NavigateForward())
}

// Reload reloads the target for id.
func (m *Manager) Reload(ctx context.Context, id schema.SessionID) error {
	return m.history(ctx, id, chromedp.Reload())
}

// OpenExternal opens url in the system browser.
func (m *Manager) OpenExternal(_ context.Context, rawURL string) error {
	if err := m.open(rawURL); err != nil {
		return fmt.Errorf("open external: %w", err)
	}
	return nil
}

// Close shuts the browser down.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	targets := m.targets
	m.targets = make(map[schema.SessionID]*target)
	browserCancel, allocCancel := m.browserCancel, m.allocCancel
	m.mu.Unlock()
	for _, t := range targets {
		t.cancel()
	}
	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	m.wg.Wait()
}

func (m *Manager) history(ctx context.Context, id schema.SessionID, action chromedp.Action) error {
	t, ok := m.target(id)
	if !ok {
		return schema.ErrSurfaceNotFound
	}
	return m.run(ctx, t, action)
}

func (m *Manager) target(id schema.SessionID) (*target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	return t, ok
}

// run executes actions on t, bounded by ctx and the operation timeout.
func (m *Manager) run(ctx context.Context, t *target, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.ctx, m.cfg.OpTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (m *Manager) listen(tctx context.Context, id schema.SessionID) {
	chromedp.ListenTarget(tctx, func(ev any) {
		switch ev := ev.(type) {
		case *page.EventFrameNavigated:
			if ev.Frame == nil || ev.Frame.ParentID != "" {
				return
			}
			if m.events.Navigated != nil {
				m.events.Navigated(schema.NavigationEvent{SessionID: id, URL: ev.Frame.URL + ev.Frame.URLFragment})
			}
		case *page.EventLoadEventFired:
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
			m.wg.Add(1)
			m.mu.Unlock()
			go m.reportMetadata(id)
		}
	})
}

func (m *Manager) reportMetadata(id schema.SessionID) {
	defer m.wg.Done()
	m.mu.Lock()
	t, ok := m.targets[id]
	var current string
	if ok {
		current = t.url
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	info, err := m.PageInfo(context.Background(), id, current)
	if err != nil {
		m.log.Debug("surface metadata failed", "session_id", id, "err", err)
		return
	}
	if m.events.Title != nil && info.Title != "" {
		m.events.Title(schema.TitleEvent{SessionID: id, Title: info.Title})
	}
	if m.events.Favicon != nil && info.Favicon != "" {
		m.events.Favicon(schema.FaviconEvent{SessionID: id, Favicon: info.Favicon})
	}
}

func metrics(rect schema.Rect) chromedp.Action {
	return emulation.SetDeviceMetricsOverride(int64(rect.Width), int64(rect.Height), 1, false)
}

// Fallback returns page metadata derived from the url alone: the host as
// title and the favicon service icon for the host.
func Fallback(rawURL string) schema.PageInfo {
	info := schema.PageInfo{URL: rawURL, Title: rawURL}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return info
	}
	info.Title = u.Host
	info.Favicon = FaviconURL(u.Host)
	return info
}

// FaviconURL returns the favicon service icon for host.
func FaviconURL(host string) string {
	return "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(host) + "&sz=16"
}
