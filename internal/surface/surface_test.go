package surface

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"pkt.systems/nexus/schema"
)

func TestFallbackUsesHost(t *testing.T) {
	info := Fallback("https://go.dev/doc/")
	if info.Title != "go.dev" || info.URL != "https://go.dev/doc/" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Favicon != "https://www.google.com/s2/favicons?domain=go.dev&sz=16" {
		t.Fatalf("unexpected favicon %q", info.Favicon)
	}
	if got := Fallback("not a url"); got.Title != "not a url" || got.Favicon != "" {
		t.Fatalf("unexpected fallback for bad url %+v", got)
	}
}

func TestManagerWithoutTargets(t *testing.T) {
	m := New(Config{Headless: true}, Events{}, nil)
	defer m.Close()
	ctx := context.Background()
	if err := m.ShowOnly(ctx, "tab-aaaaaa"); err != nil {
		t.Fatalf("show only: %v", err)
	}
	if _, ok := m.Visible(); ok {
		t.Fatalf("expected nothing visible")
	}
	if err := m.CloseSurface(ctx, "tab-aaaaaa"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.NavigateBack(ctx, "tab-aaaaaa"); !errors.Is(err, schema.ErrSurfaceNotFound) {
		t.Fatalf("expected ErrSurfaceNotFound, got %v", err)
	}
	info, err := m.PageInfo(ctx, "tab-aaaaaa", "https://example.com/x")
	if err != nil || info.Title != "example.com" {
		t.Fatalf("unexpected page info %+v %v", info, err)
	}
}

func TestOpenExternalUsesOpener(t *testing.T) {
	m := New(Config{}, Events{}, nil)
	defer m.Close()
	var opened string
	m.open = func(u string) error {
		opened = u
		return nil
	}
	if err := m.OpenExternal(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("open external: %v", err)
	}
	if opened != "https://example.com" {
		t.Fatalf("unexpected url %q", opened)
	}
	m.open = func(string) error { return errors.New("no display") }
	if err := m.OpenExternal(context.Background(), "https://example.com"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCloseRejectsNavigation(t *testing.T) {
	m := New(Config{}, Events{}, nil)
	m.Close()
	if err := m.OpenOrNavigate(context.Background(), "tab-aaaaaa", "https://example.com"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("chrome not found")
	return ""
}

func TestManagerDrivesBrowser(t *testing.T) {
	chrome := findChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Page ` + r.URL.Path + `</title></head><body><p>hello from ` + r.URL.Path + `</p></body></html>`))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var titles []schema.TitleEvent
	m := New(Config{Headless: true, NoSandbox: true, ChromePath: chrome}, Events{
		Title: func(ev schema.TitleEvent) {
			mu.Lock()
			titles = append(titles, ev)
			mu.Unlock()
		},
	}, nil)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.OpenOrNavigate(ctx, "tab-one111", srv.URL+"/a"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := m.OpenOrNavigate(ctx, "tab-two222", srv.URL+"/b"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := m.ShowOnly(ctx, "tab-two222"); err != nil {
		t.Fatalf("show: %v", err)
	}
	if id, _ := m.Visible(); id != "tab-two222" {
		t.Fatalf("expected tab-two222 visible, got %q", id)
	}
	info, err := m.PageInfo(ctx, "tab-one111", srv.URL+"/a")
	if err != nil || info.Title != "Page /a" {
		t.Fatalf("unexpected page info %+v %v", info, err)
	}
	text, err := m.Text(ctx, "tab-two222")
	if err != nil || text != "hello from /b" {
		t.Fatalf("unexpected text %q %v", text, err)
	}
	if err := m.CloseSurface(ctx, "tab-one111"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := m.Tracked(); len(got) != 1 || got[0] != "tab-two222" {
		t.Fatalf("unexpected tracked %v", got)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(titles)
		mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected title events")
}
