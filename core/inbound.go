package core

import (
	"pkt.systems/nexus/internal/eventbus"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// Inbound holds one typed topic per event kind delivered by the bridge.
type Inbound struct {
	LocalStream    *eventbus.Topic[schema.StreamChunk]
	RemoteStream   *eventbus.Topic[schema.StreamChunk]
	ContentSource  *eventbus.Topic[schema.ContentSource]
	Navigated      *eventbus.Topic[schema.NavigationEvent]
	TitleChanged   *eventbus.Topic[schema.TitleEvent]
	FaviconChanged *eventbus.Topic[schema.FaviconEvent]
	OpenSettings   *eventbus.Topic[schema.SettingsRequest]
	ModelFallback  *eventbus.Topic[schema.ModelFallback]
}

// NewInbound constructs the inbound topics.
func NewInbound(logger pslog.Logger) *Inbound {
	return &Inbound{
		LocalStream:    eventbus.NewTopic[schema.StreamChunk]("ollama-stream", logger),
		RemoteStream:   eventbus.NewTopic[schema.StreamChunk]("openrouter-stream", logger),
		ContentSource:  eventbus.NewTopic[schema.ContentSource]("content-source", logger),
		Navigated:      eventbus.NewTopic[schema.NavigationEvent]("webview-navigation", logger),
		TitleChanged:   eventbus.NewTopic[schema.TitleEvent]("page-title-changed", logger),
		FaviconChanged: eventbus.NewTopic[schema.FaviconEvent]("page-favicon-changed", logger),
		OpenSettings:   eventbus.NewTopic[schema.SettingsRequest]("open-settings", logger),
		ModelFallback:  eventbus.NewTopic[schema.ModelFallback]("openrouter-model-fallback", logger),
	}
}

// Stream returns the stream topic for mode.
func (in *Inbound) Stream(mode schema.Mode) *eventbus.Topic[schema.StreamChunk] {
	if mode == schema.ModeLocal {
		return in.LocalStream
	}
	return in.RemoteStream
}

// Close closes every topic.
func (in *Inbound) Close() {
	if in == nil {
		return
	}
	in.LocalStream.Close()
	in.RemoteStream.Close()
	in.ContentSource.Close()
	in.Navigated.Close()
	in.TitleChanged.Close()
	in.FaviconChanged.Close()
	in.OpenSettings.Close()
	in.ModelFallback.Close()
}
