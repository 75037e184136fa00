package core

import (
	"sync"

	"pkt.systems/nexus/schema"
)

// status tracks the shell-wide busy/degraded indicator.
type status struct {
	mu       sync.Mutex
	busy     bool
	degraded bool
	message  string
	sink     EventSink
}

func newStatus(sink EventSink) *status {
	return &status{sink: sink}
}

func (s *status) Snapshot() schema.StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.StatusEvent{Busy: s.busy, Degraded: s.degraded, Message: s.message}
}

func (s *status) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *status) SetBusy(busy bool, message string) {
	s.update(func() {
		s.busy = busy
		s.message = message
	})
}

func (s *status) SetDegraded(message string) {
	s.update(func() {
		s.degraded = true
		s.message = message
	})
}

func (s *status) SetMessage(message string) {
	s.update(func() {
		s.message = message
	})
}

func (s *status) update(fn func()) {
	s.mu.Lock()
	fn()
	event := schema.StatusEvent{Busy: s.busy, Degraded: s.degraded, Message: s.message}
	s.mu.Unlock()
	s.sink.OnStatus(event)
}
