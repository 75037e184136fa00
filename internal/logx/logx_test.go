package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithModelAddsFields(t *testing.T) {
	capture := &logCapture{}
	log := WithModel(newCaptureLogger(capture), schema.ModeLocal, "ollama:llama3")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["mode"] != "local" {
		t.Fatalf("expected mode field, got %+v", entry)
	}
	if entry["model"] != "ollama:llama3" {
		t.Fatalf("expected model field, got %+v", entry)
	}
}

func TestWithModelSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	log := WithModel(newCaptureLogger(capture), "", "")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["mode"]; ok {
		t.Fatalf("did not expect mode field, got %+v", entry)
	}
}

func TestWithSessionRequestAddsFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithSessionRequest(ctx, "tab-abc123", "req-1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "tab-abc123" {
		t.Fatalf("expected session field, got %+v", entry)
	}
	if entry["request"] != "req-1" {
		t.Fatalf("expected request field, got %+v", entry)
	}
}

func TestContextMarkersDeduplicate(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("session", "tab-abc123")
	ctx := ContextWithSessionLogger(context.Background(), logger, "tab-abc123")
	log := WithSession(ctx, "tab-abc123")
	log.Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"session"`)) != 1 {
		t.Fatalf("expected a single session field, got %s", line)
	}

	copied := CopyContextFields(context.Background(), ContextWithRequest(ctx, "req-9"))
	if copied.Value(sessionKey) != schema.SessionID("tab-abc123") {
		t.Fatalf("expected session marker to be copied")
	}
	if copied.Value(requestKey) != schema.RequestID("req-9") {
		t.Fatalf("expected request marker to be copied")
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
