package nexus

import (
	"pkt.systems/nexus/core"
	"pkt.systems/nexus/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnSession(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		sink.OnSession(event)
	}
}

func (f eventFanout) OnTurn(event schema.TurnEvent) {
	for _, sink := range f.sinks {
		sink.OnTurn(event)
	}
}

func (f eventFanout) OnStatus(event schema.StatusEvent) {
	for _, sink := range f.sinks {
		sink.OnStatus(event)
	}
}

func (f eventFanout) OnModels(event schema.ModelsEvent) {
	for _, sink := range f.sinks {
		sink.OnModels(event)
	}
}

func (f eventFanout) OnSettings(event schema.SettingsRequest) {
	for _, sink := range f.sinks {
		sink.OnSettings(event)
	}
}

func fanout(sinks ...core.EventSink) core.EventSink {
	live := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			live = append(live, sink)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return eventFanout{sinks: live}
	}
}
