package eventbus

import (
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
	// EventTurn carries new or updated transcript turns.
	EventTurn EventType = "turn"
	// EventStatus carries busy/degraded status changes.
	EventStatus EventType = "status"
	// EventModels carries model selector updates.
	EventModels EventType = "models"
	// EventSettings asks frontends to open the settings view.
	EventSettings EventType = "settings"
)

// Event represents a UI-facing event emitted by the shell.
type Event struct {
	Type     EventType
	Session  schema.SessionEvent
	Turn     schema.TurnEvent
	Status   schema.StatusEvent
	Models   schema.ModelsEvent
	Settings schema.SettingsRequest
}

// Bus fans UI events out to interactive frontends.
type Bus struct {
	topic *Topic[Event]
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	return &Bus{topic: NewTopic[Event]("ui", logger)}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	return b.topic.Subscribe()
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.topic.Close()
}

// OnSession publishes a session event.
func (b *Bus) OnSession(event schema.SessionEvent) {
	b.publish(Event{Type: EventSession, Session: event})
}

// OnTurn publishes a transcript event.
func (b *Bus) OnTurn(event schema.TurnEvent) {
	b.publish(Event{Type: EventTurn, Turn: event})
}

// OnStatus publishes a status event.
func (b *Bus) OnStatus(event schema.StatusEvent) {
	b.publish(Event{Type: EventStatus, Status: event})
}

// OnModels publishes a model selector event.
func (b *Bus) OnModels(event schema.ModelsEvent) {
	b.publish(Event{Type: EventModels, Models: event})
}

// OnSettings publishes a settings request.
func (b *Bus) OnSettings(event schema.SettingsRequest) {
	b.publish(Event{Type: EventSettings, Settings: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.topic.Publish(event)
}
