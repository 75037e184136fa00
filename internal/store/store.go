// Package store persists chat history, settings and shortcuts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"

	_ "modernc.org/sqlite"
)

// SessionReuseWindow is how long a chat session for a url keeps collecting messages.
const SessionReuseWindow = 24 * time.Hour

// Setting keys.
const (
	KeyOllamaBaseURL = "ollama_base_url"
	KeyAIMode        = "ai_mode"
)

const ddl = `
CREATE TABLE IF NOT EXISTS chat_session (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_url ON chat_session(url);
CREATE TABLE IF NOT EXISTS chat_message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(session_id) REFERENCES chat_session(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_msg_session ON chat_message(session_id);
CREATE TABLE IF NOT EXISTS app_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS popular_site (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	color TEXT,
	icon TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_popular_sort ON popular_site(sort_order);
`

// DefaultShortcuts seeds an empty shortcut table.
var DefaultShortcuts = []schema.Shortcut{
	{Title: "Google", URL: "https://google.com", Color: "#4285F4", Icon: "fab fa-google", SortOrder: 1},
	{Title: "YouTube", URL: "https://youtube.com", Color: "#FF0000", Icon: "fab fa-youtube", SortOrder: 2},
	{Title: "GitHub", URL: "https://github.com", Color: "#333333", Icon: "fab fa-github", SortOrder: 3},
	{Title: "Stack Overflow", URL: "https://stackoverflow.com", Color: "#F48024", Icon: "fab fa-stack-overflow", SortOrder: 4},
	{Title: "Wikipedia", URL: "https://wikipedia.org", Color: "#000000", Icon: "fab fa-wikipedia-w", SortOrder: 5},
	{Title: "Reddit", URL: "https://reddit.com", Color: "#FF4500", Icon: "fab fa-reddit", SortOrder: 6},
	{Title: "Twitter", URL: "https://twitter.com", Color: "#1DA1F2", Icon: "fab fa-twitter", SortOrder: 7},
	{Title: "LinkedIn", URL: "https://linkedin.com", Color: "#0077B5", Icon: "fab fa-linkedin", SortOrder: 8},
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db   *sql.DB
	path string
	log  pslog.Logger
	now  func() time.Time
	// mu serializes writers.
	mu sync.Mutex
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path, log: logger.With("db", path), now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM popular_site").Scan(&count); err != nil {
		return fmt.Errorf("count shortcuts: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, sc := range DefaultShortcuts {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO popular_site(title, url, color, icon, sort_order) VALUES (?, ?, ?, ?, ?)",
			sc.Title, sc.URL, sc.Color, sc.Icon, sc.SortOrder); err != nil {
			return fmt.Errorf("seed shortcuts: %w", err)
		}
	}
	s.log.Debug("store shortcuts seeded", "count", len(DefaultShortcuts))
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Setting returns the value stored under key.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_settings(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// UpsertSession returns the chat session for url created within the reuse
// window, creating a new one when there is none.
func (s *Store) UpsertSession(ctx context.Context, url string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-SessionReuseWindow).Unix()
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM chat_session WHERE url = ? AND created_at > ? ORDER BY id DESC LIMIT 1",
		url, cutoff).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find chat session: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO chat_session(url, created_at) VALUES (?, ?)", url, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert chat session: %w", err)
	}
	return res.LastInsertId()
}

// AddMessage appends a message to a chat session.
func (s *Store) AddMessage(ctx context.Context, sessionID int64, role schema.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_message(session_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		sessionID, string(role), content, s.now().Unix())
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// Messages returns up to limit messages of a chat session, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID int64, limit int) ([]schema.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM chat_message WHERE session_id = ? ORDER BY id ASC LIMIT ?",
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select chat messages: %w", err)
	}
	defer rows.Close()
	var out []schema.ChatMessage
	for rows.Next() {
		var (
			role    string
			content string
			created int64
		)
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, err
		}
		out = append(out, schema.ChatMessage{Role: schema.Role(role), Content: content, CreatedAt: time.Unix(created, 0)})
	}
	return out, rows.Err()
}

// History returns the messages of the current chat session for url.
func (s *Store) History(ctx context.Context, url string, limit int) ([]schema.ChatMessage, error) {
	id, err := s.UpsertSession(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.Messages(ctx, id, limit)
}

// RecentHistory returns the last limit messages of the current chat session
// for url, oldest first.
func (s *Store) RecentHistory(ctx context.Context, url string, limit int) ([]schema.ChatMessage, error) {
	messages, err := s.History(ctx, url, -1)
	if err != nil {
		return nil, err
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// ClearForURL deletes every chat session and message recorded for url.
func (s *Store) ClearForURL(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chat_message WHERE session_id IN (SELECT id FROM chat_session WHERE url = ?)", url); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_session WHERE url = ?", url); err != nil {
		return fmt.Errorf("delete chat sessions: %w", err)
	}
	return tx.Commit()
}

// ClearAll deletes every chat session and message.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_message"); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_session"); err != nil {
		return fmt.Errorf("delete chat sessions: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
