package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"pkt.systems/nexus/internal/logx"
	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// cacheClearer purges cached page content for a url.
type cacheClearer interface {
	ClearCacheForURL(ctx context.Context, url string) error
}

// Registry owns the ordered session list and the active-session pointer.
// Every change of the active session is followed by a visibility call for
// it, so at most one surface is visible at a time.
type Registry struct {
	cfg        schema.ShellConfig
	surfaces   Surfaces
	cache      cacheClearer
	transcript *transcript
	layout     *Layout
	status     *status
	sink       EventSink
	log        pslog.Logger

	// ops serializes lifecycle operations so visibility calls reach the
	// bridge in the same order as the state changes they follow.
	ops sync.Mutex

	mu       sync.Mutex
	sessions []*session
	seen     map[schema.SessionID]struct{}
	active   schema.SessionID
	address  string
	home     bool

	strip *reorder.Protocol[schema.SessionID, schema.SessionID]

	ctx context.Context
	wg  sync.WaitGroup
}

type registryDeps struct {
	surfaces   Surfaces
	cache      cacheClearer
	transcript *transcript
	status     *status
	sink       EventSink
	logger     pslog.Logger
	strategy   reorder.Strategy
}

func newRegistry(ctx context.Context, cfg schema.ShellConfig, deps registryDeps) (*Registry, error) {
	r := &Registry{
		cfg:        cfg,
		surfaces:   deps.surfaces,
		cache:      deps.cache,
		transcript: deps.transcript,
		status:     deps.status,
		sink:       deps.sink,
		log:        deps.logger,
		seen:       make(map[schema.SessionID]struct{}),
		home:       true,
		ctx:        ctx,
	}
	r.layout = newLayout(ctx, cfg.LayoutDebounce, deps.surfaces, r.ActiveTarget, deps.logger)
	strip, err := reorder.New(reorder.Config[schema.SessionID, schema.SessionID]{
		Name:      "sessions",
		Key:       func(id schema.SessionID) schema.SessionID { return id },
		Strategy:  deps.strategy,
		Resolver:  reorder.List{},
		Persister: reorder.PersisterFunc[schema.SessionID](r.applyOrder),
		Logger:    deps.logger,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("session strip: %w", err)
	}
	r.strip = strip
	return r, nil
}

// Layout returns the geometry pusher for the visible surface.
func (r *Registry) Layout() *Layout {
	return r.layout
}

// Strip returns the reorder protocol of the session strip.
func (r *Registry) Strip() *reorder.Protocol[schema.SessionID, schema.SessionID] {
	return r.strip
}

// CreateSession appends a new session, activates it and shows the home view.
func (r *Registry) CreateSession(ctx context.Context) schema.SessionID {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	id := r.freshIDLocked()
	s := &session{ID: id, Title: schema.DefaultSessionTitle}
	r.sessions = append(r.sessions, s)
	r.active = id
	r.address = ""
	r.home = true
	snap := s.Snapshot(true)
	count := len(r.sessions)
	r.mu.Unlock()

	log := logx.WithSession(ctx, id)
	log.Info("registry session created", "sessions", count)
	r.syncStrip()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventCreated, Session: snap, ActiveSession: id, Home: true})
	if err := r.surfaces.ShowOnly(ctx, id); err != nil {
		log.Warn("registry show failed", "err", err)
	}
	return id
}

// EnsureSession returns the active session, creating one when none exists.
func (r *Registry) EnsureSession(ctx context.Context) schema.SessionID {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != "" {
		return active
	}
	return r.CreateSession(ctx)
}

// SwitchTo activates id. Unknown ids are ignored and reported as false.
func (r *Registry) SwitchTo(ctx context.Context, id schema.SessionID) bool {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		logx.WithSession(ctx, id).Debug("registry switch ignored", "reason", "unknown session")
		return false
	}
	snap := r.activateLocked(s)
	r.mu.Unlock()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventActivated, Session: snap, ActiveSession: id, Home: snap.URL == ""})
	r.show(ctx, id, snap.URL)
	return true
}

// CloseSession removes id. The cache entry for its url is purged and, when
// it was active, the session now at its index (or the one before it) is
// activated.
func (r *Registry) CloseSession(ctx context.Context, id schema.SessionID) bool {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	closed := r.sessions[idx]
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	wasActive := r.active == id
	var fallback *session
	if wasActive {
		switch {
		case idx < len(r.sessions):
			fallback = r.sessions[idx]
		case idx > 0:
			fallback = r.sessions[idx-1]
		}
	}
	var fallbackSnap schema.SessionSnapshot
	if wasActive {
		if fallback != nil {
			fallbackSnap = r.activateLocked(fallback)
		} else {
			r.active = ""
			r.address = ""
			r.home = true
		}
	}
	active := r.active
	home := r.home
	count := len(r.sessions)
	r.mu.Unlock()

	log := logx.WithSession(ctx, id)
	log.Info("registry session closed", "sessions", count, "was_active", wasActive)
	r.syncStrip()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventClosed, Session: closed.Snapshot(false), ActiveSession: active, Home: home})

	if closed.URL != "" && r.cache != nil {
		if err := r.cache.ClearCacheForURL(ctx, closed.URL); err != nil {
			log.Warn("registry cache clear failed", "url", closed.URL, "err", err)
		}
	}
	if err := r.surfaces.CloseSurface(ctx, id); err != nil {
		log.Warn("registry surface close failed", "err", err)
	}
	if !wasActive {
		return true
	}
	if fallback == nil {
		if err := r.surfaces.HideAll(ctx); err != nil {
			log.Warn("registry hide failed", "err", err)
		}
		return true
	}
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventActivated, Session: fallbackSnap, ActiveSession: fallbackSnap.ID, Home: fallbackSnap.URL == ""})
	r.show(ctx, fallbackSnap.ID, fallbackSnap.URL)
	return true
}

// Navigate loads url into session id. The url is recorded before the
// bridge call; when the call fails the session returns to the home view and
// a system turn reports the error.
func (r *Registry) Navigate(ctx context.Context, id schema.SessionID, raw string) error {
	log := logx.WithSession(ctx, id)
	if r.status.Degraded() {
		r.transcript.AppendSystem(schema.MsgBridgeUnavailable)
		return schema.ErrBridgeUnavailable
	}
	url, err := schema.NormalizeURL(raw)
	if err != nil {
		r.transcript.AppendSystem(fmt.Sprintf(schema.MsgURLLoadFailedFmt, err))
		return err
	}

	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	s.URL = url
	isActive := r.active == id
	if isActive {
		r.address = url
		r.home = false
	}
	snap := s.Snapshot(isActive)
	r.mu.Unlock()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventUpdated, Session: snap, ActiveSession: r.activeID(), Home: false})
	log.Info("registry navigate", "url", url)

	if err := r.surfaces.OpenOrNavigate(ctx, id, url); err != nil {
		log.Warn("registry navigate failed", "url", url, "err", err)
		r.failNavigation(ctx, id, url)
		r.transcript.AppendSystem(fmt.Sprintf(schema.MsgURLLoadFailedFmt, err))
		return err
	}

	r.ops.Lock()
	r.mu.Lock()
	current := r.findLocked(id)
	visible := current != nil && r.active == id && current.URL == url
	r.mu.Unlock()
	if current == nil {
		// Closed while the surface was loading; its close already ran.
		if err := r.surfaces.CloseSurface(ctx, id); err != nil {
			log.Warn("registry surface close failed", "err", err)
		}
		r.ops.Unlock()
		log.Info("registry navigate discarded for closed session", "url", url)
		return nil
	}
	if visible {
		r.show(ctx, id, url)
	}
	r.ops.Unlock()

	r.scheduleMetadata(id, url, 0, r.cfg.MetadataRetryDelay)
	return nil
}

// Open resolves address input (url or search terms) and loads it into the
// active session, creating one when needed.
func (r *Registry) Open(ctx context.Context, input string) error {
	url, err := schema.ResolveAddress(input)
	if err != nil {
		return err
	}
	id := r.EnsureSession(ctx)
	return r.Navigate(ctx, id, url)
}

// Home shows the home view for the active session without touching its url.
func (r *Registry) Home(ctx context.Context) {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	r.address = ""
	r.home = true
	active := r.active
	r.mu.Unlock()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventActivated, Session: r.snapshotOf(active), ActiveSession: active, Home: true})
	if err := r.surfaces.HideAll(ctx); err != nil {
		pslog.Ctx(ctx).Warn("registry hide failed", "err", err)
	}
}

// Back navigates the active surface back in its history.
func (r *Registry) Back(ctx context.Context) error {
	return r.withActive(ctx, r.surfaces.NavigateBack)
}

// Forward navigates the active surface forward in its history.
func (r *Registry) Forward(ctx context.Context) error {
	return r.withActive(ctx, r.surfaces.NavigateForward)
}

// Reload reloads the active surface.
func (r *Registry) Reload(ctx context.Context) error {
	return r.withActive(ctx, r.surfaces.Reload)
}

// OpenExternal opens the active url (or the given one) in the system browser.
func (r *Registry) OpenExternal(ctx context.Context, raw string) error {
	if raw == "" {
		_, raw = r.ActiveTarget()
	}
	if raw == "" {
		return schema.ErrNoURL
	}
	url, err := schema.NormalizeURL(raw)
	if err != nil {
		return err
	}
	return r.surfaces.OpenExternal(ctx, url)
}

// Reorder applies a new session order (a permutation of the current ids).
func (r *Registry) Reorder(ctx context.Context, ids []schema.SessionID) error {
	_, err := r.strip.Apply(ctx, ids)
	return err
}

// Sessions returns snapshots in display order.
func (r *Registry) Sessions() []schema.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot(s.ID == r.active))
	}
	return out
}

// Active returns the active session.
func (r *Registry) Active() (schema.SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findLocked(r.active)
	if s == nil {
		return schema.SessionSnapshot{}, false
	}
	return s.Snapshot(true), true
}

// ActiveTarget returns the active session id and its url.
func (r *Registry) ActiveTarget() (schema.SessionID, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findLocked(r.active)
	if s == nil {
		return "", ""
	}
	return s.ID, s.URL
}

// View returns the address bar value and whether the home view is shown.
func (r *Registry) View() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address, r.home
}

// Find ranks sessions by fuzzy match of query against title and url.
func (r *Registry) Find(query string) []schema.SessionSnapshot {
	sessions := r.Sessions()
	if query == "" {
		return sessions
	}
	labels := make([]string, len(sessions))
	for i, s := range sessions {
		labels[i] = s.Title + " " + s.URL
	}
	ranks := fuzzy.RankFindNormalizedFold(query, labels)
	sort.Stable(ranks)
	out := make([]schema.SessionSnapshot, 0, len(ranks))
	for _, rank := range ranks {
		out = append(out, sessions[rank.OriginalIndex])
	}
	return out
}

// ApplyTitle mirrors a title-changed event. Events for closed sessions are dropped.
func (r *Registry) ApplyTitle(ev schema.TitleEvent) {
	if ev.Title == "" {
		return
	}
	r.mutate(ev.SessionID, "title", func(s *session) bool {
		s.Title = ev.Title
		return true
	})
}

// ApplyFavicon mirrors a favicon-changed event. Events for closed sessions are dropped.
func (r *Registry) ApplyFavicon(ev schema.FaviconEvent) {
	if ev.Favicon == "" {
		return
	}
	r.mutate(ev.SessionID, "favicon", func(s *session) bool {
		s.Favicon = ev.Favicon
		return true
	})
}

// ApplyNavigation mirrors an in-surface navigation of the active session and
// refreshes its metadata shortly after.
func (r *Registry) ApplyNavigation(ev schema.NavigationEvent) {
	if ev.URL == "" {
		return
	}
	r.mu.Lock()
	s := r.findLocked(ev.SessionID)
	if s == nil || r.active != ev.SessionID {
		r.mu.Unlock()
		r.log.Trace("registry navigation ignored", "session", ev.SessionID)
		return
	}
	s.URL = ev.URL
	r.address = ev.URL
	r.home = false
	snap := s.Snapshot(true)
	r.mu.Unlock()
	r.log.Debug("registry navigation", "session", ev.SessionID, "url", ev.URL)
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventUpdated, Session: snap, ActiveSession: ev.SessionID})
	r.scheduleMetadata(ev.SessionID, ev.URL, r.cfg.NavigationRefreshDelay)
}

func (r *Registry) mutate(id schema.SessionID, field string, fn func(*session) bool) {
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		r.log.Trace("registry event dropped", "session", id, "field", field)
		return
	}
	if !fn(s) {
		r.mu.Unlock()
		return
	}
	active := r.active
	home := r.home
	snap := s.Snapshot(s.ID == active)
	r.mu.Unlock()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventUpdated, Session: snap, ActiveSession: active, Home: home})
}

func (r *Registry) withActive(ctx context.Context, fn func(context.Context, schema.SessionID) error) error {
	id, url := r.ActiveTarget()
	if id == "" {
		return schema.ErrNoActiveSession
	}
	if url == "" {
		return schema.ErrNoURL
	}
	return fn(ctx, id)
}

func (r *Registry) failNavigation(ctx context.Context, id schema.SessionID, url string) {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil || s.URL != url {
		r.mu.Unlock()
		return
	}
	s.URL = ""
	isActive := r.active == id
	if isActive {
		r.address = ""
		r.home = true
	}
	snap := s.Snapshot(isActive)
	active := r.active
	r.mu.Unlock()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventUpdated, Session: snap, ActiveSession: active, Home: isActive})
	if isActive {
		if err := r.surfaces.HideAll(ctx); err != nil {
			logx.WithSession(ctx, id).Warn("registry hide failed", "err", err)
		}
	}
}

// show makes the surface for id the only visible one, or shows the home
// view when the session has no url. Callers hold ops.
func (r *Registry) show(ctx context.Context, id schema.SessionID, url string) {
	log := logx.WithSession(ctx, id)
	if url == "" {
		if err := r.surfaces.HideAll(ctx); err != nil {
			log.Warn("registry hide failed", "err", err)
		}
		return
	}
	if err := r.surfaces.ShowOnly(ctx, id); err != nil {
		log.Warn("registry show failed", "err", err)
	}
	r.layout.Refresh()
}

func (r *Registry) scheduleMetadata(id schema.SessionID, url string, delays ...time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for _, delay := range delays {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-r.ctx.Done():
					timer.Stop()
					return
				}
			}
			if r.ctx.Err() != nil {
				return
			}
			r.refreshMetadata(id, url)
		}
	}()
}

func (r *Registry) refreshMetadata(id schema.SessionID, url string) {
	info, err := r.surfaces.PageInfo(r.ctx, id, url)
	if err != nil {
		r.log.Debug("registry metadata failed", "session", id, "url", url, "err", err)
		info = schema.PageInfo{}
	}
	r.mutate(id, "metadata", func(s *session) bool {
		if s.URL != url {
			return false
		}
		s.Title = titleFor(info, url)
		if info.Favicon != "" {
			s.Favicon = info.Favicon
		}
		return true
	})
}

// applyOrder is the persister of the session strip.
func (r *Registry) applyOrder(_ context.Context, ids []schema.SessionID) error {
	r.mu.Lock()
	if len(ids) != len(r.sessions) {
		r.mu.Unlock()
		return reorder.ErrOrderMismatch
	}
	next := make([]*session, 0, len(ids))
	for _, id := range ids {
		s := r.findLocked(id)
		if s == nil {
			r.mu.Unlock()
			return reorder.ErrOrderMismatch
		}
		next = append(next, s)
	}
	r.sessions = next
	active := r.active
	home := r.home
	r.mu.Unlock()
	r.sink.OnSession(schema.SessionEvent{Type: schema.SessionEventReordered, ActiveSession: active, Home: home})
	return nil
}

func (r *Registry) syncStrip() {
	r.mu.Lock()
	ids := make([]schema.SessionID, 0, len(r.sessions))
	for _, s := range r.sessions {
		ids = append(ids, s.ID)
	}
	r.mu.Unlock()
	r.strip.Replace(ids)
}

func (r *Registry) activateLocked(s *session) schema.SessionSnapshot {
	r.active = s.ID
	r.address = s.URL
	r.home = s.URL == ""
	return s.Snapshot(true)
}

func (r *Registry) freshIDLocked() schema.SessionID {
	for {
		id := newSessionID()
		if _, ok := r.seen[id]; ok {
			continue
		}
		r.seen[id] = struct{}{}
		return id
	}
}

func (r *Registry) activeID() schema.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registry) snapshotOf(id schema.SessionID) schema.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.findLocked(id); s != nil {
		return s.Snapshot(id == r.active)
	}
	return schema.SessionSnapshot{}
}

func (r *Registry) findLocked(id schema.SessionID) *session {
	if id == "" {
		return nil
	}
	for _, s := range r.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *Registry) indexLocked(id schema.SessionID) int {
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) wait() {
	r.layout.Stop()
	r.wg.Wait()
}
