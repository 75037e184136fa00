package core

import (
	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/pslog"
)

// ShellDeps captures the collaborators of the shell. Bridge and Inbound are
// required; the rest fall back to defaults.
type ShellDeps struct {
	Bridge    Bridge
	Inbound   *Inbound
	Modes     ModeStore
	Formatter Formatter
	Sink      EventSink
	Logger    pslog.Logger
	// Strategy selects how drag gestures start on both reorderable lists.
	Strategy reorder.Strategy
	// ShortcutLayout resolves drop positions on the shortcut grid.
	ShortcutLayout reorder.Resolver
}
