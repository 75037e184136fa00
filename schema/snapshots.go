package schema

import "time"

// SessionSnapshot is a read-only view of a session for transports.
type SessionSnapshot struct {
	ID      SessionID `json:"id"`
	Title   string    `json:"title"`
	URL     string    `json:"url,omitempty"`
	Favicon string    `json:"favicon,omitempty"`
	Active  bool      `json:"active"`
}

// Turn is a chat transcript entry.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Rendered  string    `json:"rendered,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Final is set once an assistant turn stops growing.
	Final bool `json:"final"`
}

// ModelOption is a selectable entry in the model selector.
type ModelOption struct {
	ID    ModelID `json:"id"`
	Label string  `json:"label"`
}

// ModelsSnapshot is the model selector state.
type ModelsSnapshot struct {
	Mode       Mode          `json:"mode"`
	Loading    bool          `json:"loading"`
	Options    []ModelOption `json:"options"`
	Selected   ModelID       `json:"selected"`
	Generation uint64        `json:"generation"`
}

// ShellSnapshot seeds clients with the full coordination state.
type ShellSnapshot struct {
	Sessions      []SessionSnapshot `json:"sessions"`
	ActiveSession SessionID         `json:"active_session"`
	Address       string            `json:"address"`
	Home          bool              `json:"home"`
	Transcript    []Turn            `json:"transcript"`
	Models        ModelsSnapshot    `json:"models"`
	Busy          bool              `json:"busy"`
	Degraded      bool              `json:"degraded"`
	Status        string            `json:"status,omitempty"`
}
