package command

import (
	"context"

	"pkt.systems/nexus/core"
	"pkt.systems/nexus/schema"
)

// Service is what the command handler drives.
type Service interface {
	Sessions() []schema.SessionSnapshot
	FindSessions(query string) []schema.SessionSnapshot
	NewSession(ctx context.Context) schema.SessionID
	SwitchTo(ctx context.Context, id schema.SessionID) bool
	CloseSession(ctx context.Context, id schema.SessionID) bool
	ReorderSessions(ctx context.Context, ids []schema.SessionID) error
	Open(ctx context.Context, input string) error
	Home(ctx context.Context)
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	OpenExternal(ctx context.Context, url string) error

	Models() schema.ModelsSnapshot
	SetMode(mode schema.Mode) (schema.ModelsSnapshot, error)
	SelectModel(model string) (schema.ModelsSnapshot, error)
	LocalBaseURL(ctx context.Context) (string, error)
	SetLocalBaseURL(ctx context.Context, url string) error

	Shortcuts() []schema.Shortcut
	SaveShortcut(ctx context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error)
	DeleteShortcut(ctx context.Context, id schema.ShortcutID) error
	ReorderShortcuts(ctx context.Context, ids []schema.ShortcutID) error

	LoadHistory(ctx context.Context) error
	ForgetPage(ctx context.Context) error
	OpenSettings(source string)
	Snapshot() schema.ShellSnapshot
}

// FromShell adapts a shell to Service.
func FromShell(s *core.Shell) Service {
	return shellService{s: s}
}

type shellService struct {
	s *core.Shell
}

func (a shellService) Sessions() []schema.SessionSnapshot { return a.s.Registry().Sessions() }

func (a shellService) FindSessions(query string) []schema.SessionSnapshot {
	return a.s.Registry().Find(query)
}

func (a shellService) NewSession(ctx context.Context) schema.SessionID {
	return a.s.Registry().CreateSession(ctx)
}

func (a shellService) SwitchTo(ctx context.Context, id schema.SessionID) bool {
	return a.s.Registry().SwitchTo(ctx, id)
}

func (a shellService) CloseSession(ctx context.Context, id schema.SessionID) bool {
	return a.s.Registry().CloseSession(ctx, id)
}

func (a shellService) ReorderSessions(ctx context.Context, ids []schema.SessionID) error {
	return a.s.Registry().Reorder(ctx, ids)
}

func (a shellService) Open(ctx context.Context, input string) error {
	return a.s.Registry().Open(ctx, input)
}

func (a shellService) Home(ctx context.Context) { a.s.Registry().Home(ctx) }
func (a shellService) Back(ctx context.Context) error { return a.s.Registry().Back(ctx) }
func (a shellService) Forward(ctx context.Context) error { return a.s.Registry().Forward(ctx) }
func (a shellService) Reload(ctx context.Context) error { return a.s.Registry().Reload(ctx) }
func (a shellService) Models() schema.ModelsSnapshot { return a.s.Models().Snapshot() }
func (a shellService) Shortcuts() []schema.Shortcut { return a.s.Shortcuts().List() }
func (a shellService) OpenSettings(source string) { a.s.OpenSettings(source) }
func (a shellService) Snapshot() schema.ShellSnapshot { return a.s.Snapshot() }
func (a shellService) ForgetPage(ctx context.Context) error { return a.s.ForgetPage(ctx) }

func (a shellService) OpenExternal(ctx context.Context, url string) error {
	return a.s.Registry().OpenExternal(ctx, url)
}

func (a shellService) SetMode(mode schema.Mode) (schema.ModelsSnapshot, error) {
	return a.s.SetMode(mode)
}

func (a shellService) SelectModel(model string) (schema.ModelsSnapshot, error) {
	return a.s.Models().Select(model)
}

func (a shellService) LocalBaseURL(ctx context.Context) (string, error) {
	return a.s.LocalBaseURL(ctx)
}

func (a shellService) SetLocalBaseURL(ctx context.Context, url string) error {
	return a.s.SetLocalBaseURL(ctx, url)
}

func (a shellService) SaveShortcut(ctx context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error) {
	return a.s.Shortcuts().Save(ctx, req)
}

func (a shellService) DeleteShortcut(ctx context.Context, id schema.ShortcutID) error {
	return a.s.Shortcuts().Delete(ctx, id)
}

func (a shellService) ReorderShortcuts(ctx context.Context, ids []schema.ShortcutID) error {
	return a.s.Shortcuts().Reorder(ctx, ids)
}

func (a shellService) LoadHistory(ctx context.Context) error {
	return a.s.Coordinator().LoadHistory(ctx)
}
