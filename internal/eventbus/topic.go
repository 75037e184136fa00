package eventbus

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
)

// ErrClosed indicates a publish on a closed topic.
var ErrClosed = errors.New("eventbus: topic closed")

// DefaultDepth is the buffer depth of each subscriber channel.
const DefaultDepth = 256

type subscriber[T any] struct {
	ch      chan T
	done    chan struct{}
	senders sync.WaitGroup
}

// Topic fans out one event kind to its subscribers.
type Topic[T any] struct {
	name   string
	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
	log    pslog.Logger
	depth  int
}

// NewTopic constructs a Topic.
func NewTopic[T any](name string, logger pslog.Logger) *Topic[T] {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Topic[T]{
		name:  name,
		subs:  make(map[*subscriber[T]]struct{}),
		log:   logger.With("topic", name),
		depth: DefaultDepth,
	}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Subscribe registers a subscriber and returns its channel and a cancel
// func. The channel is closed by cancel or by Close.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	if t == nil {
		return nil, func() {}
	}
	sub := &subscriber[T]{ch: make(chan T, t.depth), done: make(chan struct{})}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	t.subs[sub] = struct{}{}
	count := len(t.subs)
	t.mu.Unlock()
	t.log.Debug("eventbus subscribe", "subs", count)
	return sub.ch, func() {
		t.mu.Lock()
		_, ok := t.subs[sub]
		delete(t.subs, sub)
		t.mu.Unlock()
		if !ok {
			return
		}
		t.release(sub)
		t.log.Debug("eventbus unsubscribe")
	}
}

// Publish delivers event to every subscriber without blocking. Subscribers
// with a full buffer miss the event.
func (t *Topic[T]) Publish(event T) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for sub := range t.subs {
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		t.log.Trace("eventbus dropped", "count", dropped)
	}
}

// PublishWait delivers event to every subscriber, waiting for buffer space
// until ctx is done. Stream events go through here so none are lost.
func (t *Topic[T]) PublishWait(ctx context.Context, event T) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*subscriber[T], 0, len(t.subs))
	for sub := range t.subs {
		sub.senders.Add(1)
		subs = append(subs, sub)
	}
	t.mu.Unlock()
	var err error
	for _, sub := range subs {
		if err == nil {
			select {
			case sub.ch <- event:
			case <-sub.done:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		sub.senders.Done()
	}
	return err
}

// Close closes every subscriber channel. Later publishes are dropped.
func (t *Topic[T]) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := t.subs
	t.subs = make(map[*subscriber[T]]struct{})
	t.mu.Unlock()
	for sub := range subs {
		t.release(sub)
	}
}

func (t *Topic[T]) release(sub *subscriber[T]) {
	close(sub.done)
	sub.senders.Wait()
	close(sub.ch)
}
