package core

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/nexus/schema"
)

func seededBridge() *fakeBridge {
	bridge := newFakeBridge()
	bridge.shortcuts = []schema.Shortcut{
		{ID: 1, Title: "Google", URL: "https://www.google.com", SortOrder: 1},
		{ID: 2, Title: "YouTube", URL: "https://www.youtube.com", SortOrder: 2},
		{ID: 3, Title: "GitHub", URL: "https://github.com", SortOrder: 3},
	}
	bridge.nextID = 4
	return bridge
}

func shortcutIDs(items []schema.Shortcut) []schema.ShortcutID {
	out := make([]schema.ShortcutID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestShortcutsLoadAndReorder(t *testing.T) {
	bridge := seededBridge()
	ts := newTestShell(t, bridge, nil)
	ts.startReady(t)
	if got := shortcutIDs(ts.Shortcuts().List()); !slices.Equal(got, []schema.ShortcutID{1, 2, 3}) {
		t.Fatalf("unexpected initial order %v", got)
	}
	if err := ts.Shortcuts().Reorder(context.Background(), []schema.ShortcutID{2, 3, 1}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	reorders := bridge.Reorders()
	if len(reorders) != 1 || !slices.Equal(reorders[0], []schema.ShortcutID{2, 3, 1}) {
		t.Fatalf("expected one persisted reorder, got %v", reorders)
	}
}

func TestShortcutDragPersistsOnce(t *testing.T) {
	bridge := seededBridge()
	ts := newTestShell(t, bridge, nil)
	ts.startReady(t)
	grid := ts.Shortcuts().Grid()
	rects := []reorder.Rect{
		{X: 0, Y: 0, Width: 100, Height: 100},
		{X: 110, Y: 0, Width: 100, Height: 100},
		{X: 220, Y: 0, Width: 100, Height: 100},
	}
	if err := grid.Start(1, rects); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := grid.Drop(context.Background(), reorder.Point{X: 300, Y: 50})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !out.Moved || !slices.Equal(out.Order, []schema.ShortcutID{2, 3, 1}) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := bridge.Reorders(); len(got) != 1 {
		t.Fatalf("expected single persist call, got %v", got)
	}
}

func TestShortcutReorderFailureKeepsLocalOrder(t *testing.T) {
	bridge := seededBridge()
	bridge.reorderErr = errors.New("disk full")
	ts := newTestShell(t, bridge, nil)
	ts.startReady(t)
	if err := ts.Shortcuts().Reorder(context.Background(), []schema.ShortcutID{3, 1, 2}); err == nil {
		t.Fatalf("expected persist error")
	}
	if got := shortcutIDs(ts.Shortcuts().List()); !slices.Equal(got, []schema.ShortcutID{3, 1, 2}) {
		t.Fatalf("expected local order kept, got %v", got)
	}
}

func TestShortcutEditAutosaves(t *testing.T) {
	bridge := seededBridge()
	ts := newTestShell(t, bridge, nil)
	ts.startReady(t)
	ts.Shortcuts().Edit(schema.SaveShortcutRequest{ID: 3, Title: "Git", URL: "github.com"})
	ts.Shortcuts().Edit(schema.SaveShortcutRequest{ID: 3, Title: "GitHub Home", URL: "github.com"})
	waitFor(t, time.Second, func() bool { return len(bridge.Saves()) == 1 })
	save := bridge.Saves()[0]
	if save.Title != "GitHub Home" || save.URL != "https://github.com" {
		t.Fatalf("expected last edit normalized, got %+v", save)
	}
	waitFor(t, time.Second, func() bool {
		items := ts.Shortcuts().List()
		return len(items) == 3 && items[2].Title == "GitHub Home"
	})

	ts.Shortcuts().Edit(schema.SaveShortcutRequest{Title: "", URL: "example.com"})
	ts.Shortcuts().Flush()
	if got := len(bridge.Saves()); got != 1 {
		t.Fatalf("expected incomplete edit to be skipped, got %d saves", got)
	}
}

func TestShortcutSaveAndDelete(t *testing.T) {
	bridge := seededBridge()
	ts := newTestShell(t, bridge, nil)
	ts.startReady(t)
	ctx := context.Background()
	if _, err := ts.Shortcuts().Save(ctx, schema.SaveShortcutRequest{Title: " "}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	saved, err := ts.Shortcuts().Save(ctx, schema.SaveShortcutRequest{Title: "Go", URL: "go.dev"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != 4 || len(ts.Shortcuts().List()) != 4 {
		t.Fatalf("expected new shortcut, got %+v", saved)
	}
	if err := ts.Shortcuts().Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := shortcutIDs(ts.Shortcuts().List()); !slices.Equal(got, []schema.ShortcutID{2, 3, 4}) {
		t.Fatalf("unexpected ids after delete %v", got)
	}
}
