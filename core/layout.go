package core

import (
	"context"
	"sync"
	"time"

	"pkt.systems/nexus/internal/debounce"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// Layout pushes the content-area rectangle to the visible surface. Bursts of
// resize signals coalesce into one Reposition call after a quiet period.
type Layout struct {
	mu       sync.Mutex
	bounds   schema.Rect
	surfaces Surfaces
	target   func() (schema.SessionID, string)
	deb      *debounce.Debouncer
	log      pslog.Logger
	ctx      context.Context
}

func newLayout(ctx context.Context, quiet time.Duration, surfaces Surfaces, target func() (schema.SessionID, string), logger pslog.Logger) *Layout {
	return &Layout{
		surfaces: surfaces,
		target:   target,
		deb:      debounce.New(quiet),
		log:      logger,
		ctx:      ctx,
	}
}

// SetBounds records the content-area rectangle and schedules a refresh.
func (l *Layout) SetBounds(rect schema.Rect) {
	l.mu.Lock()
	l.bounds = rect
	l.mu.Unlock()
	l.Refresh()
}

// Bounds returns the last recorded rectangle.
func (l *Layout) Bounds() schema.Rect {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bounds
}

// Refresh schedules a geometry push for the active surface.
func (l *Layout) Refresh() {
	l.deb.Trigger(l.push)
}

// Stop drops any pending push.
func (l *Layout) Stop() {
	l.deb.Cancel()
}

func (l *Layout) push() {
	if l.ctx.Err() != nil {
		return
	}
	id, url := l.target()
	rect := l.Bounds()
	if id == "" || url == "" || rect.Empty() {
		return
	}
	if err := l.surfaces.Reposition(l.ctx, id, rect); err != nil {
		l.log.Warn("layout reposition failed", "session", id, "err", err)
		return
	}
	l.log.Trace("layout repositioned", "session", id, "x", rect.X, "y", rect.Y, "width", rect.Width, "height", rect.Height)
}
