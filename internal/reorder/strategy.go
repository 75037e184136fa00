package reorder

import "time"

// DefaultLongPress is the hold time before a manual press turns into a drag.
const DefaultLongPress = 200 * time.Millisecond

// Strategy decides when a pointer gesture counts as a drag. Both strategies
// resolve positions with the same Resolver, so a given pointer sequence
// yields the same final order under either one.
type Strategy interface {
	Name() string
	// Dragging reports whether a gesture pressed at start is a drag at now.
	Dragging(start, now time.Time) bool
}

// Sortable treats every press as an immediate drag with live preview.
type Sortable struct{}

// Name implements Strategy.
func (Sortable) Name() string { return "sortable" }

// Dragging implements Strategy.
func (Sortable) Dragging(time.Time, time.Time) bool { return true }

// Manual requires a long press before a gesture becomes a drag; shorter
// gestures are clicks.
type Manual struct {
	LongPress time.Duration
}

// Name implements Strategy.
func (Manual) Name() string { return "manual" }

// Dragging implements Strategy.
func (m Manual) Dragging(start, now time.Time) bool {
	hold := m.LongPress
	if hold <= 0 {
		hold = DefaultLongPress
	}
	return now.Sub(start) >= hold
}

// SelectStrategy picks the strategy at initialization: Sortable when live
// drag support is available, Manual otherwise.
func SelectStrategy(liveDrag bool) Strategy {
	if liveDrag {
		return Sortable{}
	}
	return Manual{LongPress: DefaultLongPress}
}
