package reorder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"pkt.systems/pslog"
)

var (
	// ErrUnknownItem indicates a drag or move named an id not in the list.
	ErrUnknownItem = errors.New("reorder: unknown item")
	// ErrNoDrag indicates a pointer event arrived without an active gesture.
	ErrNoDrag = errors.New("reorder: no drag in progress")
	// ErrLayoutMismatch indicates the layout boxes do not match the list.
	ErrLayoutMismatch = errors.New("reorder: layout does not match list")
	// ErrOrderMismatch indicates an id list is not a permutation of the list.
	ErrOrderMismatch = errors.New("reorder: order does not match list")
)

// Persister stores a new order in the authoritative backend.
type Persister[K comparable] interface {
	Reorder(ctx context.Context, ids []K) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc[K comparable] func(ctx context.Context, ids []K) error

// Reorder implements Persister.
func (f PersisterFunc[K]) Reorder(ctx context.Context, ids []K) error {
	return f(ctx, ids)
}

// Config wires a Protocol.
type Config[K comparable, T any] struct {
	// Name labels log lines ("shortcuts", "sessions").
	Name      string
	Key       func(T) K
	Strategy  Strategy
	Resolver  Resolver
	Persister Persister[K]
	Logger    pslog.Logger
	Now       func() time.Time
}

// Outcome describes the end of a gesture or a programmatic move.
type Outcome[K comparable] struct {
	Order []K
	From  int
	To    int
	// Moved is set when the local order changed.
	Moved bool
	// Click is set when the gesture ended before it became a drag.
	Click bool
}

type gesture[K comparable] struct {
	id    K
	index int
	rects []Rect
	start time.Time
}

// Protocol keeps a locally reordered list and its persisted copy in step.
// The local order is applied optimistically and is not reverted when the
// persister fails.
type Protocol[K comparable, T any] struct {
	cfg Config[K, T]
	log pslog.Logger

	mu    sync.Mutex
	items []T
	drag  *gesture[K]

	persistMu sync.Mutex
}

// New constructs a Protocol over items in their persisted order.
func New[K comparable, T any](cfg Config[K, T], items []T) (*Protocol[K, T], error) {
	if cfg.Key == nil {
		return nil, errors.New("reorder: key function is required")
	}
	if cfg.Strategy == nil {
		cfg.Strategy = Sortable{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = Grid{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "list"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("list", cfg.Name, "strategy", cfg.Strategy.Name(), "layout", cfg.Resolver.Name())
	return &Protocol[K, T]{
		cfg:   cfg,
		log:   logger,
		items: append([]T(nil), items...),
	}, nil
}

// Items returns the local order.
func (p *Protocol[K, T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

// Strategy returns the gesture strategy the list was built with.
func (p *Protocol[K, T]) Strategy() Strategy {
	return p.cfg.Strategy
}

// IDs returns the ids in local order.
func (p *Protocol[K, T]) IDs() []K {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idsLocked(p.items)
}

// Replace reconciles the local list with the authoritative persisted list.
// Any gesture in progress is abandoned.
func (p *Protocol[K, T]) Replace(items []T) {
	p.mu.Lock()
	p.items = append([]T(nil), items...)
	p.drag = nil
	p.mu.Unlock()
	p.log.Trace("reorder reconciled", "items", len(items))
}

// Start begins a gesture on id. rects are the drag-start boxes of all items
// in local order.
func (p *Protocol[K, T]) Start(id K, rects []Rect) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(rects) != len(p.items) {
		return fmt.Errorf("%w: %d boxes for %d items", ErrLayoutMismatch, len(rects), len(p.items))
	}
	idx := p.indexLocked(id)
	if idx < 0 {
		return ErrUnknownItem
	}
	p.drag = &gesture[K]{
		id:    id,
		index: idx,
		rects: append([]Rect(nil), rects...),
		start: p.cfg.Now(),
	}
	p.log.Trace("reorder drag start", "id", id, "index", idx)
	return nil
}

// Preview returns the order the list would take if the pointer were
// released at the given point. The bool is false while the gesture is not
// yet a drag.
func (p *Protocol[K, T]) Preview(at Point) ([]K, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drag == nil {
		return nil, false, ErrNoDrag
	}
	if !p.cfg.Strategy.Dragging(p.drag.start, p.cfg.Now()) {
		return p.idsLocked(p.items), false, nil
	}
	to := p.cfg.Resolver.Resolve(p.drag.rects, p.drag.index, at)
	return p.idsLocked(move(p.items, p.drag.index, to)), true, nil
}

// Cancel abandons the current gesture without changing the order.
func (p *Protocol[K, T]) Cancel() {
	p.mu.Lock()
	p.drag = nil
	p.mu.Unlock()
}

// Drop ends the gesture at the given point. When the order changed it is
// applied locally and persisted with a single call. A persistence failure
// is logged and returned; the local order is kept.
func (p *Protocol[K, T]) Drop(ctx context.Context, at Point) (Outcome[K], error) {
	p.mu.Lock()
	drag := p.drag
	p.drag = nil
	if drag == nil {
		p.mu.Unlock()
		return Outcome[K]{}, ErrNoDrag
	}
	if !p.cfg.Strategy.Dragging(drag.start, p.cfg.Now()) {
		out := Outcome[K]{Order: p.idsLocked(p.items), From: drag.index, To: drag.index, Click: true}
		p.mu.Unlock()
		p.log.Trace("reorder click", "id", drag.id)
		return out, nil
	}
	to := p.cfg.Resolver.Resolve(drag.rects, drag.index, at)
	p.mu.Unlock()
	return p.moveAndPersist(ctx, drag.id, to)
}

// MoveTo moves id to index to and persists the result.
func (p *Protocol[K, T]) MoveTo(ctx context.Context, id K, to int) (Outcome[K], error) {
	return p.moveAndPersist(ctx, id, to)
}

// Apply replaces the local order with ids, which must be a permutation of
// the current list, and persists it.
func (p *Protocol[K, T]) Apply(ctx context.Context, ids []K) (Outcome[K], error) {
	p.mu.Lock()
	if len(ids) != len(p.items) {
		p.mu.Unlock()
		return Outcome[K]{}, ErrOrderMismatch
	}
	byID := make(map[K]T, len(p.items))
	for _, item := range p.items {
		byID[p.cfg.Key(item)] = item
	}
	next := make([]T, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			p.mu.Unlock()
			return Outcome[K]{}, ErrOrderMismatch
		}
		delete(byID, id)
		next = append(next, item)
	}
	moved := !slices.Equal(p.idsLocked(p.items), ids)
	p.items = next
	p.drag = nil
	out := Outcome[K]{Order: append([]K(nil), ids...), From: -1, To: -1, Moved: moved}
	p.mu.Unlock()
	if !moved {
		return out, nil
	}
	return out, p.persist(ctx, out.Order)
}

func (p *Protocol[K, T]) moveAndPersist(ctx context.Context, id K, to int) (Outcome[K], error) {
	p.mu.Lock()
	from := p.indexLocked(id)
	if from < 0 {
		p.mu.Unlock()
		return Outcome[K]{}, ErrUnknownItem
	}
	if to < 0 {
		to = 0
	}
	if to >= len(p.items) {
		to = len(p.items) - 1
	}
	out := Outcome[K]{From: from, To: to}
	if from != to {
		p.items = move(p.items, from, to)
		out.Moved = true
	}
	out.Order = p.idsLocked(p.items)
	p.mu.Unlock()
	if !out.Moved {
		return out, nil
	}
	p.log.Debug("reorder moved", "id", id, "from", from, "to", to)
	return out, p.persist(ctx, out.Order)
}

func (p *Protocol[K, T]) persist(ctx context.Context, ids []K) error {
	if p.cfg.Persister == nil {
		return nil
	}
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if err := p.cfg.Persister.Reorder(ctx, ids); err != nil {
		p.log.Warn("reorder persist failed", "items", len(ids), "err", err)
		return err
	}
	p.log.Trace("reorder persisted", "items", len(ids))
	return nil
}

func (p *Protocol[K, T]) indexLocked(id K) int {
	for i, item := range p.items {
		if p.cfg.Key(item) == id {
			return i
		}
	}
	return -1
}

func (p *Protocol[K, T]) idsLocked(items []T) []K {
	out := make([]K, len(items))
	for i, item := range items {
		out[i] = p.cfg.Key(item)
	}
	return out
}

// move returns a copy of items with the element at from placed at to.
func move[T any](items []T, from, to int) []T {
	out := slices.Delete(slices.Clone(items), from, from+1)
	return slices.Insert(out, to, items[from])
}
