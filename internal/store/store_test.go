package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pkt.systems/nexus/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nexus.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSeedsDefaultShortcutsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.db")
	ctx := context.Background()
	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	items, err := s.Shortcuts(ctx)
	require.NoError(t, err)
	require.Len(t, items, len(DefaultShortcuts))
	require.Equal(t, "Google", items[0].Title)
	require.NoError(t, s.DeleteShortcut(ctx, items[0].ID))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	items, err = reopened.Shortcuts(ctx)
	require.NoError(t, err)
	require.Len(t, items, len(DefaultShortcuts)-1)
}

func TestShortcutSaveUpdateReorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created, err := s.SaveShortcut(ctx, schema.SaveShortcutRequest{Title: "Go", URL: "https://go.dev"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, len(DefaultShortcuts)+1, created.SortOrder)

	updated, err := s.SaveShortcut(ctx, schema.SaveShortcutRequest{ID: created.ID, Title: "Go Dev", URL: "https://go.dev/doc"})
	require.NoError(t, err)
	require.Equal(t, created.SortOrder, updated.SortOrder)

	_, err = s.SaveShortcut(ctx, schema.SaveShortcutRequest{ID: 9999, Title: "x", URL: "https://x"})
	require.ErrorIs(t, err, schema.ErrShortcutNotFound)

	items, err := s.Shortcuts(ctx)
	require.NoError(t, err)
	ids := make([]schema.ShortcutID, 0, len(items))
	ids = append(ids, created.ID)
	for _, item := range items {
		if item.ID != created.ID {
			ids = append(ids, item.ID)
		}
	}
	require.NoError(t, s.ReorderShortcuts(ctx, ids))
	items, err = s.Shortcuts(ctx)
	require.NoError(t, err)
	require.Equal(t, "Go Dev", items[0].Title)
	require.Equal(t, 1, items[0].SortOrder)
	require.ErrorIs(t, s.DeleteShortcut(ctx, 9999), schema.ErrShortcutNotFound)
}

func TestSettingsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, ok, err := s.Setting(ctx, KeyOllamaBaseURL)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.SetSetting(ctx, KeyOllamaBaseURL, "http://a:11434"))
	require.NoError(t, s.SetSetting(ctx, KeyOllamaBaseURL, "http://b:11434"))
	value, ok, err := s.Setting(ctx, KeyOllamaBaseURL)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "http://b:11434", value)
}

func TestChatSessionReuseAndClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	first, err := s.UpsertSession(ctx, "https://example.com")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, first, schema.RoleUser, "soru"))
	require.NoError(t, s.AddMessage(ctx, first, schema.RoleAssistant, "cevap"))

	now = now.Add(time.Hour)
	again, err := s.UpsertSession(ctx, "https://example.com")
	require.NoError(t, err)
	require.Equal(t, first, again)

	history, err := s.History(ctx, "https://example.com", 50)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, schema.RoleUser, history[0].Role)
	require.Equal(t, "cevap", history[1].Content)

	recent, err := s.RecentHistory(ctx, "https://example.com", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "cevap", recent[0].Content)

	now = now.Add(SessionReuseWindow)
	fresh, err := s.UpsertSession(ctx, "https://example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, fresh)

	require.NoError(t, s.ClearForURL(ctx, "https://example.com"))
	messages, err := s.Messages(ctx, first, 50)
	require.NoError(t, err)
	require.Empty(t, messages)
}
