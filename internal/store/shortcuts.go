package store

import (
	"context"
	"fmt"

	"pkt.systems/nexus/schema"
)

// Shortcuts lists shortcuts by sort order, then id.
func (s *Store) Shortcuts(ctx context.Context) ([]schema.Shortcut, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, url, COALESCE(color, ''), COALESCE(icon, ''), sort_order FROM popular_site ORDER BY sort_order ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("select shortcuts: %w", err)
	}
	defer rows.Close()
	var out []schema.Shortcut
	for rows.Next() {
		var sc schema.Shortcut
		if err := rows.Scan(&sc.ID, &sc.Title, &sc.URL, &sc.Color, &sc.Icon, &sc.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SaveShortcut inserts (ID == 0) or updates a shortcut. New shortcuts
// without a sort order are appended.
func (s *Store) SaveShortcut(ctx context.Context, req schema.SaveShortcutRequest) (schema.Shortcut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := schema.Shortcut{ID: req.ID, Title: req.Title, URL: req.URL, Color: req.Color, Icon: req.Icon, SortOrder: req.SortOrder}
	if req.ID != 0 {
		res, err := s.db.ExecContext(ctx,
			"UPDATE popular_site SET title = ?, url = ?, color = ?, icon = ? WHERE id = ?",
			sc.Title, sc.URL, sc.Color, sc.Icon, sc.ID)
		if err != nil {
			return schema.Shortcut{}, fmt.Errorf("update shortcut: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return schema.Shortcut{}, schema.ErrShortcutNotFound
		}
		if err := s.db.QueryRowContext(ctx, "SELECT sort_order FROM popular_site WHERE id = ?", sc.ID).Scan(&sc.SortOrder); err != nil {
			return schema.Shortcut{}, err
		}
		return sc, nil
	}
	if sc.SortOrder == 0 {
		if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(sort_order), 0) + 1 FROM popular_site").Scan(&sc.SortOrder); err != nil {
			return schema.Shortcut{}, err
		}
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO popular_site(title, url, color, icon, sort_order) VALUES (?, ?, ?, ?, ?)",
		sc.Title, sc.URL, sc.Color, sc.Icon, sc.SortOrder)
	if err != nil {
		return schema.Shortcut{}, fmt.Errorf("insert shortcut: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Shortcut{}, err
	}
	sc.ID = schema.ShortcutID(id)
	return sc, nil
}

// DeleteShortcut removes a shortcut.
func (s *Store) DeleteShortcut(ctx context.Context, id schema.ShortcutID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM popular_site WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete shortcut: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schema.ErrShortcutNotFound
	}
	return nil
}

// ReorderShortcuts assigns sort_order = position+1 to ids in one transaction.
func (s *Store) ReorderShortcuts(ctx context.Context, ids []schema.ShortcutID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, "UPDATE popular_site SET sort_order = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for idx, id := range ids {
		if _, err := stmt.ExecContext(ctx, idx+1, id); err != nil {
			return fmt.Errorf("reorder shortcut %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("store shortcuts reordered", "count", len(ids))
	return nil
}
