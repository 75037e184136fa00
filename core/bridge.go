package core

import (
	"context"

	"pkt.systems/nexus/schema"
)

// Surfaces drives the rendering surfaces, one per session. ShowOnly makes
// the surface for id visible and hides every other one; an id without a
// surface just hides the rest.
type Surfaces interface {
	OpenOrNavigate(ctx context.Context, id schema.SessionID, url string) error
	ShowOnly(ctx context.Context, id schema.SessionID) error
	Reposition(ctx context.Context, id schema.SessionID, rect schema.Rect) error
	HideAll(ctx context.Context) error
	CloseSurface(ctx context.Context, id schema.SessionID) error
	PageInfo(ctx context.Context, id schema.SessionID, url string) (schema.PageInfo, error)
	NavigateBack(ctx context.Context, id schema.SessionID) error
	NavigateForward(ctx context.Context, id schema.SessionID) error
	Reload(ctx context.Context, id schema.SessionID) error
	OpenExternal(ctx context.Context, url string) error
}

// ModelLister lists the models each backend offers.
type ModelLister interface {
	LocalModels(ctx context.Context) ([]schema.ModelInfo, error)
	RemoteModels(ctx context.Context) ([]schema.ModelInfo, error)
}

// Backends reaches the answer backends. AskLocal and AskRemote only start
// generation; the answer arrives on the inbound stream topics.
type Backends interface {
	ModelLister
	AskLocal(ctx context.Context, req schema.AskRequest) error
	AskRemote(ctx context.Context, req schema.AskRequest) error
	ClearCacheForURL(ctx context.Context, url string) error
	ChatHistory(ctx context.Context, url string, limit int) ([]schema.ChatMessage, error)
}

// Settings reads and writes backend endpoint configuration.
type Settings interface {
	LocalBaseURL(ctx context.Context) (string, error)
	SetLocalBaseURL(ctx context.Context, url string) error
}

// ShortcutStore persists the pinned shortcut list.
type ShortcutStore interface {
	Shortcuts(ctx context.Context) ([]schema.Shortcut, error)
	SaveShortcut(ctx context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error)
	DeleteShortcut(ctx context.Context, id schema.ShortcutID) error
	ReorderShortcuts(ctx context.Context, ids []schema.ShortcutID) error
}

// Pinger reports whether the bridge is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Bridge is the complete remote-call boundary of the shell.
type Bridge interface {
	Surfaces
	Backends
	Settings
	ShortcutStore
	Pinger
}

// ModeStore persists the answer-source mode preference.
type ModeStore interface {
	LoadMode() (schema.Mode, bool, error)
	SaveMode(mode schema.Mode) error
}
