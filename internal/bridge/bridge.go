// Package bridge implements the shell's remote-call boundary on top of a
// headless browser, a SQLite store and the Ollama and OpenRouter APIs.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pkt.systems/nexus/core"
	"pkt.systems/nexus/internal/backend/ollama"
	"pkt.systems/nexus/internal/backend/openrouter"
	"pkt.systems/nexus/internal/pagecache"
	"pkt.systems/nexus/internal/scrape"
	"pkt.systems/nexus/internal/store"
	"pkt.systems/nexus/internal/surface"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// Config configures the bridge adapters.
type Config struct {
	DatabasePath     string
	Surface          surface.Config
	OllamaBaseURL    string
	OpenRouter       openrouter.Config
	PageCacheTTL     time.Duration
	PageCacheEntries int
	FetchTimeout     time.Duration
}

// pageSurfaces is the surface driver plus page text access.
type pageSurfaces interface {
	core.Surfaces
	Text(ctx context.Context, id schema.SessionID) (string, error)
}

// Bridge is the concrete core.Bridge.
type Bridge struct {
	pageSurfaces
	store   *store.Store
	cache   *pagecache.Cache
	fetcher *scrape.Fetcher
	local   *ollama.Client
	remote  *openrouter.Client
	inbound *core.Inbound
	log     pslog.Logger
	closers []func()
}

var _ core.Bridge = (*Bridge)(nil)

// Open starts every adapter. The browser itself starts on first use.
func Open(ctx context.Context, cfg Config, inbound *core.Inbound, logger pslog.Logger) (*Bridge, error) {
	if inbound == nil {
		return nil, errors.New("inbound topics are required")
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	db, err := store.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	surfaces := surface.New(cfg.Surface, surface.Events{
		Navigated: inbound.Navigated.Publish,
		Title:     inbound.TitleChanged.Publish,
		Favicon:   inbound.FaviconChanged.Publish,
	}, logger)
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := newBridge(deps{
		surfaces: surfaces,
		store:    db,
		cache:    pagecache.New(cfg.PageCacheEntries, cfg.PageCacheTTL),
		fetcher:  scrape.NewFetcher(&http.Client{Timeout: timeout}),
		local:    ollama.New(cfg.OllamaBaseURL, nil, logger),
		remote:   openrouter.New(cfg.OpenRouter, logger),
		inbound:  inbound,
		logger:   logger,
	})
	b.closers = append(b.closers, surfaces.Close, func() { _ = db.Close() })
	if stored, ok, err := db.Setting(ctx, store.KeyOllamaBaseURL); err == nil && ok {
		b.local.SetBaseURL(stored)
	}
	return b, nil
}

type deps struct {
	surfaces pageSurfaces
	store    *store.Store
	cache    *pagecache.Cache
	fetcher  *scrape.Fetcher
	local    *ollama.Client
	remote   *openrouter.Client
	inbound  *core.Inbound
	logger   pslog.Logger
}

func newBridge(d deps) *Bridge {
	return &Bridge{
		pageSurfaces: d.surfaces,
		store:        d.store,
		cache:        d.cache,
		fetcher:      d.fetcher,
		local:        d.local,
		remote:       d.remote,
		inbound:      d.inbound,
		log:          d.logger.With("component", "bridge"),
	}
}

// Close stops the browser and closes the store.
func (b *Bridge) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Store exposes the persistence layer.
func (b *Bridge) Store() *store.Store {
	return b.store
}

// Ping reports whether the store answers.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

// PageInfo prefers what the surface reports and falls back to the page's
// own markup when the surface cannot answer.
func (b *Bridge) PageInfo(ctx context.Context, id schema.SessionID, url string) (schema.PageInfo, error) {
	info, err := b.pageSurfaces.PageInfo(ctx, id, url)
	if err == nil {
		return info, nil
	}
	b.log.Debug("bridge surface page info failed", "session_id", id, "err", err)
	doc, derr := b.fetcher.Document(ctx, url)
	if derr != nil {
		return surface.Fallback(url), nil
	}
	info = surface.Fallback(url)
	if doc.Title != "" {
		info.Title = doc.Title
	}
	if doc.Favicon != "" {
		info.Favicon = doc.Favicon
	}
	return info, nil
}

// LocalModels lists the Ollama models.
func (b *Bridge) LocalModels(ctx context.Context) ([]schema.ModelInfo, error) {
	return b.local.Models(ctx)
}

// RemoteModels lists the OpenRouter models.
func (b *Bridge) RemoteModels(ctx context.Context) ([]schema.ModelInfo, error) {
	return b.remote.Models(ctx)
}

// ClearCacheForURL forgets the cached page text and chat history for url.
func (b *Bridge) ClearCacheForURL(ctx context.Context, url string) error {
	b.cache.Remove(url)
	return b.store.ClearForURL(ctx, url)
}

// ChatHistory returns the latest messages recorded for url.
func (b *Bridge) ChatHistory(ctx context.Context, url string, limit int) ([]schema.ChatMessage, error) {
	return b.store.RecentHistory(ctx, url, limit)
}

// LocalBaseURL returns the Ollama address.
func (b *Bridge) LocalBaseURL(ctx context.Context) (string, error) {
	value, ok, err := b.store.Setting(ctx, store.KeyOllamaBaseURL)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(value) == "" {
		return b.local.BaseURL(), nil
	}
	return value, nil
}

// SetLocalBaseURL stores a new Ollama address.
func (b *Bridge) SetLocalBaseURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return schema.ErrEmptyBaseURL
	}
	if err := b.store.SetSetting(ctx, store.KeyOllamaBaseURL, url); err != nil {
		return err
	}
	b.local.SetBaseURL(url)
	b.log.Info("bridge ollama base url changed", "url", url)
	return nil
}

// Shortcuts lists the pinned shortcuts.
func (b *Bridge) Shortcuts(ctx context.Context) ([]schema.Shortcut, error) {
	return b.store.Shortcuts(ctx)
}

// SaveShortcut creates or updates a shortcut.
func (b *Bridge) SaveShortcut(ctx context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error) {
	return b.store.SaveShortcut(ctx, req)
}

// DeleteShortcut removes a shortcut.
func (b *Bridge) DeleteShortcut(ctx context.Context, id schema.ShortcutID) error {
	return b.store.DeleteShortcut(ctx, id)
}

// ReorderShortcuts persists a shortcut order.
func (b *Bridge) ReorderShortcuts(ctx context.Context, ids []schema.ShortcutID) error {
	return b.store.ReorderShortcuts(ctx, ids)
}
