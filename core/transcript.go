package core

import (
	"sync"
	"time"

	"pkt.systems/nexus/schema"
)

// transcript stores chat turns. Indices are absolute: trimming old turns
// never renumbers the remaining ones.
type transcript struct {
	mu       sync.Mutex
	turns    []schema.Turn
	base     int
	maxTurns int
	sink     EventSink
	now      func() time.Time
}

func newTranscript(maxTurns int, sink EventSink) *transcript {
	if maxTurns <= 0 {
		maxTurns = schema.DefaultTranscriptMaxTurns
	}
	return &transcript{maxTurns: maxTurns, sink: sink, now: time.Now}
}

// Append adds a turn and returns its index.
func (t *transcript) Append(role schema.Role, text, rendered string, final bool) int {
	return t.add(schema.Turn{
		Role:      role,
		Text:      text,
		Rendered:  rendered,
		Timestamp: t.now(),
		Final:     final,
	})
}

func (t *transcript) add(turn schema.Turn) int {
	t.mu.Lock()
	t.turns = append(t.turns, turn)
	idx := t.base + len(t.turns) - 1
	if len(t.turns) > t.maxTurns {
		trim := len(t.turns) - t.maxTurns
		t.turns = append([]schema.Turn(nil), t.turns[trim:]...)
		t.base += trim
	}
	t.mu.Unlock()
	t.sink.OnTurn(schema.TurnEvent{Index: idx, Turn: turn})
	return idx
}

// AppendSystem adds a final system turn.
func (t *transcript) AppendSystem(text string) int {
	return t.Append(schema.RoleSystem, text, text, true)
}

// Update replaces the text of a non-final turn. It reports false when the
// turn was trimmed or is already final.
func (t *transcript) Update(idx int, text, rendered string, final bool) bool {
	t.mu.Lock()
	pos := idx - t.base
	if pos < 0 || pos >= len(t.turns) || t.turns[pos].Final {
		t.mu.Unlock()
		return false
	}
	t.turns[pos].Text = text
	t.turns[pos].Rendered = rendered
	t.turns[pos].Final = final
	turn := t.turns[pos]
	t.mu.Unlock()
	t.sink.OnTurn(schema.TurnEvent{Index: idx, Turn: turn})
	return true
}

// Get returns the turn at idx.
func (t *transcript) Get(idx int) (schema.Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := idx - t.base
	if pos < 0 || pos >= len(t.turns) {
		return schema.Turn{}, false
	}
	return t.turns[pos], true
}

// Snapshot returns a copy of the retained turns.
func (t *transcript) Snapshot() []schema.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]schema.Turn(nil), t.turns...)
}

// Reset drops every turn. Later indices continue from the old ones.
func (t *transcript) Reset() {
	t.mu.Lock()
	t.base += len(t.turns)
	t.turns = nil
	base := t.base
	t.mu.Unlock()
	t.sink.OnTurn(schema.TurnEvent{Index: base, Reset: true})
}

// Restore appends persisted messages as final turns.
func (t *transcript) Restore(messages []schema.ChatMessage, format func(string) string) {
	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = schema.RoleAssistant
		}
		rendered := msg.Content
		if role == schema.RoleAssistant && format != nil {
			rendered = format(msg.Content)
		}
		ts := msg.CreatedAt
		if ts.IsZero() {
			ts = t.now()
		}
		t.add(schema.Turn{Role: role, Text: msg.Content, Rendered: rendered, Timestamp: ts, Final: true})
	}
}
