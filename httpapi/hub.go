package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                  `json:"seq"`
	Type      string                  `json:"type"`
	Session   *SessionPayload         `json:"session,omitempty"`
	Turn      *TurnPayload            `json:"turn,omitempty"`
	Status    *StatusPayload          `json:"status,omitempty"`
	Models    *schema.ModelsSnapshot  `json:"models,omitempty"`
	Settings  *schema.SettingsRequest `json:"settings,omitempty"`
	Snapshot  *schema.ShellSnapshot   `json:"snapshot,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// SessionPayload mirrors schema.SessionEvent for the wire.
type SessionPayload struct {
	Event         string                 `json:"event"`
	Session       schema.SessionSnapshot `json:"session"`
	ActiveSession schema.SessionID       `json:"active_session"`
	Home          bool                   `json:"home"`
}

// TurnPayload mirrors schema.TurnEvent for the wire.
type TurnPayload struct {
	Index int          `json:"index"`
	Turn  *schema.Turn `json:"turn,omitempty"`
	Reset bool         `json:"reset,omitempty"`
}

// StatusPayload mirrors schema.StatusEvent for the wire.
type StatusPayload struct {
	Busy     bool   `json:"busy"`
	Degraded bool   `json:"degraded"`
	Message  string `json:"message,omitempty"`
}

// Hub keeps a bounded event history and broadcasts to SSE subscribers.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
		log:         logger,
	}
}

// OnSession implements core.EventSink.
func (h *Hub) OnSession(event schema.SessionEvent) {
	h.log.Trace("hub session event", "type", event.Type, "session", event.Session.ID, "active", event.ActiveSession)
	h.publish(StreamEvent{
		Type: "session",
		Session: &SessionPayload{
			Event:         string(event.Type),
			Session:       event.Session,
			ActiveSession: event.ActiveSession,
			Home:          event.Home,
		},
	})
}

// OnTurn implements core.EventSink.
func (h *Hub) OnTurn(event schema.TurnEvent) {
	payload := &TurnPayload{Index: event.Index, Reset: event.Reset}
	if !event.Reset {
		turn := event.Turn
		payload.Turn = &turn
	}
	h.publish(StreamEvent{Type: "turn", Turn: payload})
}

// OnStatus implements core.EventSink.
func (h *Hub) OnStatus(event schema.StatusEvent) {
	h.log.Trace("hub status event", "busy", event.Busy, "degraded", event.Degraded)
	h.publish(StreamEvent{
		Type:   "status",
		Status: &StatusPayload{Busy: event.Busy, Degraded: event.Degraded, Message: event.Message},
	})
}

// OnModels implements core.EventSink.
func (h *Hub) OnModels(event schema.ModelsEvent) {
	models := event.Models
	h.publish(StreamEvent{Type: "models", Models: &models})
}

// OnSettings implements core.EventSink.
func (h *Hub) OnSettings(event schema.SettingsRequest) {
	h.publish(StreamEvent{Type: "settings", Settings: &event})
}

// subscriberBuffer is the number of events a subscriber may fall behind
// before it is disconnected.
const subscriberBuffer = 256

// Subscribe registers a subscriber. The channel is closed on unsubscribe or
// when the subscriber falls too far behind; a closed stream reconnects and
// resumes through Replay.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, subscriberBuffer)
	h.subs[ch] = struct{}{}
	seq := h.seq
	h.log.Info("hub subscribe", "subs", len(h.subs))
	unsub := func() {
		h.mu.Lock()
		_, ok := h.subs[ch]
		if ok {
			delete(h.subs, ch)
			close(ch)
		}
		remaining := len(h.subs)
		h.mu.Unlock()
		if ok {
			h.log.Info("hub unsubscribe", "subs", remaining)
		}
	}
	return ch, unsub, seq
}

// Replay returns the retained events after the provided seq. complete is
// false when events after seq were already evicted or seq is unknown to this
// hub; the caller must resync from a snapshot instead.
func (h *Hub) Replay(after uint64) (events []StreamEvent, complete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	complete = after <= h.seq
	if len(h.history) > 0 && after+1 < h.history[0].Seq {
		complete = false
	}
	events = make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	if complete {
		h.log.Debug("hub replay", "after", after, "count", len(events))
	} else {
		h.log.Warn("hub replay gap", "after", after, "latest", h.seq, "retained", len(h.history))
	}
	return events, complete
}

func (h *Hub) publish(event StreamEvent) {
	event.Timestamp = time.Now()
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	lagging := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			delete(h.subs, sub)
			close(sub)
			lagging++
		}
	}
	remaining := len(h.subs)
	h.mu.Unlock()
	if lagging > 0 {
		h.log.Warn("hub subscriber disconnected", "reason", "lagging", "seq", event.Seq, "type", event.Type, "disconnected", lagging, "subs", remaining)
	}
}
