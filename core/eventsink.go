package core

import "pkt.systems/nexus/schema"

// EventSink receives session, transcript, status and model events from the shell.
type EventSink interface {
	OnSession(event schema.SessionEvent)
	OnTurn(event schema.TurnEvent)
	OnStatus(event schema.StatusEvent)
	OnModels(event schema.ModelsEvent)
	OnSettings(event schema.SettingsRequest)
}

type nopSink struct{}

func (nopSink) OnSession(schema.SessionEvent)     {}
func (nopSink) OnTurn(schema.TurnEvent)           {}
func (nopSink) OnStatus(schema.StatusEvent)       {}
func (nopSink) OnModels(schema.ModelsEvent)       {}
func (nopSink) OnSettings(schema.SettingsRequest) {}
