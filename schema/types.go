package schema

import "time"

// SessionID identifies a browsing session (tab).
type SessionID string

// ModelID identifies an answer model, including its provider prefix
// (for example "ollama:llama3" or "openrouter:google/gemini-2.0-flash-exp:free").
type ModelID string

// RequestID correlates a dispatched question with its log lines.
type RequestID string

// ShortcutID identifies a pinned shortcut row.
type ShortcutID int64

// Mode selects the answer source.
type Mode string

const (
	// ModeLocal routes questions to the locally hosted model server.
	ModeLocal Mode = "local"
	// ModeRemote routes questions to the remote model router.
	ModeRemote Mode = "online"
)

// Role identifies the author of a chat turn.
type Role string

const (
	// RoleUser marks a turn typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by a backend.
	RoleAssistant Role = "assistant"
	// RoleSystem marks a locally generated status or error turn.
	RoleSystem Role = "system"
)

// Rect is a pixel rectangle in window coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// PageInfo is authoritative page metadata reported by a rendering surface.
type PageInfo struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Favicon string `json:"favicon,omitempty"`
}

// ModelInfo describes a model offered by a backend.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// Shortcut is a pinned site on the home surface.
type Shortcut struct {
	ID        ShortcutID `json:"id"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Color     string     `json:"color,omitempty"`
	Icon      string     `json:"icon,omitempty"`
	SortOrder int        `json:"sort_order"`
}

// ChatMessage is a persisted question or answer for a page.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
