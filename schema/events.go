package schema

import "time"

// Inbound events delivered by the bridge.

// StreamChunk is a partial-token or terminal event of an answer stream.
type StreamChunk struct {
	// RequestID names the question the chunk answers.
	RequestID RequestID `json:"request_id,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
}

// ContentSource is a diagnostic event describing the page text a backend answered from.
type ContentSource struct {
	Mode      Mode   `json:"mode"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	FromCache bool   `json:"from_cache"`
	Length    int    `json:"length"`
	Preview   string `json:"preview"`
}

// NavigationEvent reports that a surface navigated on its own.
type NavigationEvent struct {
	SessionID SessionID `json:"session_id"`
	URL       string    `json:"url"`
}

// TitleEvent reports a page title change.
type TitleEvent struct {
	SessionID SessionID `json:"session_id"`
	Title     string    `json:"title"`
}

// FaviconEvent reports a page favicon change.
type FaviconEvent struct {
	SessionID SessionID `json:"session_id"`
	Favicon   string    `json:"favicon"`
}

// SettingsRequest asks the shell to open its settings surface.
type SettingsRequest struct {
	Source string `json:"source,omitempty"`
}

// ModelFallback reports that the remote router switched to another model.
type ModelFallback struct {
	To string `json:"to"`
}

// Outbound events emitted to sinks.

// SessionEventType identifies a session lifecycle change.
type SessionEventType string

const (
	// SessionEventCreated indicates a session was created.
	SessionEventCreated SessionEventType = "created"
	// SessionEventClosed indicates a session was closed.
	SessionEventClosed SessionEventType = "closed"
	// SessionEventActivated indicates the active session changed.
	SessionEventActivated SessionEventType = "activated"
	// SessionEventUpdated indicates session metadata changed.
	SessionEventUpdated SessionEventType = "updated"
	// SessionEventReordered indicates the session order changed.
	SessionEventReordered SessionEventType = "reordered"
)

// SessionEvent describes a session lifecycle change.
type SessionEvent struct {
	Type          SessionEventType
	Session       SessionSnapshot
	ActiveSession SessionID
	Home          bool
}

// TurnEvent carries a new or updated chat turn. Index is stable for the
// life of the process. A Reset event clears the transcript and carries no turn.
type TurnEvent struct {
	Index int
	Turn  Turn
	Reset bool
}

// StatusEvent reports shell-wide status changes.
type StatusEvent struct {
	Busy     bool
	Degraded bool
	Message  string
}

// ModelsEvent reports a new model selector state.
type ModelsEvent struct {
	Models ModelsSnapshot
}
