package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/nexus/internal/debounce"
	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// Shortcuts mirrors the persisted shortcut grid. Edits are saved after a
// quiet period; reorders go through the reorder protocol.
type Shortcuts struct {
	store ShortcutStore
	grid  *reorder.Protocol[schema.ShortcutID, schema.Shortcut]
	save  *debounce.Debouncer
	log   pslog.Logger
	ctx   context.Context

	mu    sync.Mutex
	draft *schema.SaveShortcutRequest
}

func newShortcuts(ctx context.Context, store ShortcutStore, autosave time.Duration, strategy reorder.Strategy, resolver reorder.Resolver, logger pslog.Logger) (*Shortcuts, error) {
	if resolver == nil {
		resolver = reorder.Grid{}
	}
	grid, err := reorder.New(reorder.Config[schema.ShortcutID, schema.Shortcut]{
		Name:      "shortcuts",
		Key:       func(s schema.Shortcut) schema.ShortcutID { return s.ID },
		Strategy:  strategy,
		Resolver:  resolver,
		Persister: reorder.PersisterFunc[schema.ShortcutID](store.ReorderShortcuts),
		Logger:    logger,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("shortcut grid: %w", err)
	}
	return &Shortcuts{
		store: store,
		grid:  grid,
		save:  debounce.New(autosave),
		log:   logger,
		ctx:   ctx,
	}, nil
}

// Load reconciles the local grid with the persisted list.
func (s *Shortcuts) Load(ctx context.Context) ([]schema.Shortcut, error) {
	items, err := s.store.Shortcuts(ctx)
	if err != nil {
		s.log.Warn("shortcuts load failed", "err", err)
		return nil, err
	}
	s.grid.Replace(items)
	s.log.Debug("shortcuts loaded", "count", len(items))
	return items, nil
}

// List returns the shortcuts in local order.
func (s *Shortcuts) List() []schema.Shortcut {
	return s.grid.Items()
}

// Save stores req immediately and reloads the grid.
func (s *Shortcuts) Save(ctx context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.URL = strings.TrimSpace(req.URL)
	if req.Title == "" || req.URL == "" {
		return schema.Shortcut{}, schema.ErrInvalidRequest
	}
	url, err := schema.NormalizeURL(req.URL)
	if err != nil {
		return schema.Shortcut{}, err
	}
	req.URL = url
	saved, err := s.store.SaveShortcut(ctx, req)
	if err != nil {
		s.log.Warn("shortcuts save failed", "id", req.ID, "err", err)
		return schema.Shortcut{}, err
	}
	s.log.Info("shortcuts saved", "id", saved.ID, "url", saved.URL)
	_, _ = s.Load(ctx)
	return saved, nil
}

// Edit records an in-progress edit and saves it once edits stop arriving.
// Drafts without a title or url are held but not saved.
func (s *Shortcuts) Edit(req schema.SaveShortcutRequest) {
	s.mu.Lock()
	draft := req
	s.draft = &draft
	s.mu.Unlock()
	s.save.Trigger(s.saveDraft)
}

// Flush saves a pending edit now.
func (s *Shortcuts) Flush() {
	s.save.Flush()
}

func (s *Shortcuts) saveDraft() {
	s.mu.Lock()
	draft := s.draft
	s.draft = nil
	s.mu.Unlock()
	if draft == nil {
		return
	}
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.URL) == "" {
		s.log.Trace("shortcuts autosave skipped", "id", draft.ID)
		return
	}
	_, _ = s.Save(s.ctx, *draft)
}

// Delete removes a shortcut and reloads the grid.
func (s *Shortcuts) Delete(ctx context.Context, id schema.ShortcutID) error {
	if err := s.store.DeleteShortcut(ctx, id); err != nil {
		s.log.Warn("shortcuts delete failed", "id", id, "err", err)
		return err
	}
	s.log.Info("shortcuts deleted", "id", id)
	_, _ = s.Load(ctx)
	return nil
}

// Reorder applies and persists a complete new order.
func (s *Shortcuts) Reorder(ctx context.Context, ids []schema.ShortcutID) error {
	_, err := s.grid.Apply(ctx, ids)
	return err
}

// Grid exposes the drag protocol of the shortcut grid.
func (s *Shortcuts) Grid() *reorder.Protocol[schema.ShortcutID, schema.Shortcut] {
	return s.grid
}
