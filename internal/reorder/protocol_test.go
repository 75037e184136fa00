package reorder

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type tile struct {
	ID    int64
	Title string
}

type recordingPersister struct {
	mu    sync.Mutex
	calls [][]int64
	err   error
}

func (r *recordingPersister) Reorder(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]int64(nil), ids...))
	return r.err
}

func (r *recordingPersister) Calls() [][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int64(nil), r.calls...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tiles(ids ...int64) []tile {
	out := make([]tile, 0, len(ids))
	for _, id := range ids {
		out = append(out, tile{ID: id})
	}
	return out
}

func rowRects(n int) []Rect {
	out := make([]Rect, n)
	for i := range out {
		out[i] = Rect{X: float64(i) * 100, Y: 0, Width: 80, Height: 80}
	}
	return out
}

func columnRects(n int) []Rect {
	out := make([]Rect, n)
	for i := range out {
		out[i] = Rect{X: 0, Y: float64(i) * 50, Width: 200, Height: 40}
	}
	return out
}

func newTestProtocol(t *testing.T, strategy Strategy, resolver Resolver, persister Persister[int64], clock *fakeClock, items []tile) *Protocol[int64, tile] {
	t.Helper()
	if clock == nil {
		clock = &fakeClock{now: time.Unix(0, 0)}
	}
	p, err := New(Config[int64, tile]{
		Name:      "test",
		Key:       func(item tile) int64 { return item.ID },
		Strategy:  strategy,
		Resolver:  resolver,
		Persister: persister,
		Now:       clock.Now,
	}, items)
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	return p
}

func TestDropMovesFirstToEndAndPersists(t *testing.T) {
	persister := &recordingPersister{}
	p := newTestProtocol(t, Sortable{}, Grid{}, persister, nil, tiles(1, 2, 3))
	if err := p.Start(1, rowRects(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := p.Drop(context.Background(), Point{X: 250, Y: 40})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	want := []int64{2, 3, 1}
	if !out.Moved || !slices.Equal(out.Order, want) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	calls := persister.Calls()
	if len(calls) != 1 || !slices.Equal(calls[0], want) {
		t.Fatalf("expected single reorder call with %v, got %v", want, calls)
	}
}

func TestDropPersistFailureKeepsLocalOrder(t *testing.T) {
	persister := &recordingPersister{err: errors.New("db locked")}
	p := newTestProtocol(t, Sortable{}, Grid{}, persister, nil, tiles(1, 2, 3))
	if err := p.Start(1, rowRects(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := p.Drop(context.Background(), Point{X: 250, Y: 40}); err == nil {
		t.Fatalf("expected persist error")
	}
	if got := p.IDs(); !slices.Equal(got, []int64{2, 3, 1}) {
		t.Fatalf("expected local order to stay [2 3 1], got %v", got)
	}
}

func TestDropWithoutChangeSkipsPersist(t *testing.T) {
	persister := &recordingPersister{}
	p := newTestProtocol(t, Sortable{}, Grid{}, persister, nil, tiles(1, 2, 3))
	if err := p.Start(1, rowRects(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := p.Drop(context.Background(), Point{X: 40, Y: 40})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if out.Moved {
		t.Fatalf("expected no move, got %+v", out)
	}
	if len(persister.Calls()) != 0 {
		t.Fatalf("expected no persist call")
	}
}

func TestStrategiesAgreeOnFinalOrder(t *testing.T) {
	pointers := []Point{{X: 120, Y: 30}, {X: 180, Y: 50}, {X: 230, Y: 10}}
	for _, resolver := range []Resolver{Grid{}, List{}} {
		var orders [][]int64
		for _, strategy := range []Strategy{Sortable{}, Manual{LongPress: 200 * time.Millisecond}} {
			clock := &fakeClock{now: time.Unix(100, 0)}
			persister := &recordingPersister{}
			p := newTestProtocol(t, strategy, resolver, persister, clock, tiles(1, 2, 3, 4))
			rects := rowRects(4)
			if resolver.Name() == "list" {
				rects = columnRects(4)
			}
			if err := p.Start(2, rects); err != nil {
				t.Fatalf("start: %v", err)
			}
			clock.Advance(250 * time.Millisecond)
			for _, pt := range pointers {
				if _, _, err := p.Preview(pt); err != nil {
					t.Fatalf("preview: %v", err)
				}
			}
			out, err := p.Drop(context.Background(), pointers[len(pointers)-1])
			if err != nil {
				t.Fatalf("drop: %v", err)
			}
			orders = append(orders, out.Order)
		}
		if !slices.Equal(orders[0], orders[1]) {
			t.Fatalf("%s: strategies disagree: %v vs %v", resolver.Name(), orders[0], orders[1])
		}
	}
}

func TestManualShortPressIsClick(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	persister := &recordingPersister{}
	p := newTestProtocol(t, Manual{}, Grid{}, persister, clock, tiles(1, 2, 3))
	if err := p.Start(1, rowRects(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(100 * time.Millisecond)
	ids, dragging, err := p.Preview(Point{X: 250, Y: 40})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if dragging || !slices.Equal(ids, []int64{1, 2, 3}) {
		t.Fatalf("expected no live preview before long press, got %v %v", ids, dragging)
	}
	out, err := p.Drop(context.Background(), Point{X: 250, Y: 40})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !out.Click || out.Moved {
		t.Fatalf("expected click outcome, got %+v", out)
	}
	if len(persister.Calls()) != 0 {
		t.Fatalf("expected no persist call for a click")
	}
}

func TestPreviewShowsProspectiveOrder(t *testing.T) {
	p := newTestProtocol(t, Sortable{}, Grid{}, nil, nil, tiles(1, 2, 3))
	if err := p.Start(3, rowRects(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	ids, dragging, err := p.Preview(Point{X: 10, Y: 10})
	if err != nil || !dragging {
		t.Fatalf("preview: %v %v", dragging, err)
	}
	if !slices.Equal(ids, []int64{3, 1, 2}) {
		t.Fatalf("unexpected preview %v", ids)
	}
	if got := p.IDs(); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Fatalf("preview must not commit, got %v", got)
	}
	p.Cancel()
	if _, err := p.Drop(context.Background(), Point{}); !errors.Is(err, ErrNoDrag) {
		t.Fatalf("expected ErrNoDrag after cancel, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config[int64, tile]{Name: "test"}, nil); err == nil {
		t.Fatalf("expected missing key error")
	}
	p := newTestProtocol(t, nil, nil, nil, nil, nil)
	if got := p.Strategy().Name(); got != "sortable" {
		t.Fatalf("expected sortable default, got %q", got)
	}
}

func TestStartValidation(t *testing.T) {
	p := newTestProtocol(t, Sortable{}, Grid{}, nil, nil, tiles(1, 2))
	if err := p.Start(9, rowRects(2)); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
	if err := p.Start(1, rowRects(3)); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch, got %v", err)
	}
}

func TestApplyAndMoveTo(t *testing.T) {
	persister := &recordingPersister{}
	p := newTestProtocol(t, Sortable{}, List{}, persister, nil, tiles(1, 2, 3))
	if _, err := p.Apply(context.Background(), []int64{3, 2}); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch, got %v", err)
	}
	if _, err := p.Apply(context.Background(), []int64{3, 2, 2}); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch for duplicates, got %v", err)
	}
	out, err := p.Apply(context.Background(), []int64{3, 1, 2})
	if err != nil || !out.Moved {
		t.Fatalf("apply: %+v %v", out, err)
	}
	out, err = p.MoveTo(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !slices.Equal(out.Order, []int64{2, 3, 1}) {
		t.Fatalf("unexpected order %v", out.Order)
	}
	if got := len(persister.Calls()); got != 2 {
		t.Fatalf("expected 2 persist calls, got %d", got)
	}
	p.Replace(tiles(5, 6))
	if got := p.IDs(); !slices.Equal(got, []int64{5, 6}) {
		t.Fatalf("expected reconciled order, got %v", got)
	}
}
