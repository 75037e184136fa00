package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!doctype html>
<html><head>
<title>  Go 1.25 Released </title>
<meta property="og:description" content="The Go team announces Go 1.25.">
<meta property="og:site_name" content="The Go Blog">
<link rel="canonical" href="/blog/go1.25">
<link rel="icon" href="/images/favicon.png">
<script type="application/ld+json">{"headline":"Go 1.25 is out","articleBody":"Body from linked data."}</script>
<script>var ignored = "do not include";</script>
<style>body { color: red }</style>
</head><body>
<h1>Go 1.25</h1><h2>Tooling</h2>
<p>Short.</p>
<p>This release brings a number of improvements to the toolchain and runtime.</p>
</body></html>`

func TestParseCollectsStructure(t *testing.T) {
	doc, err := Parse(strings.NewReader(articleHTML), "https://go.dev/blog/")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Title != "Go 1.25 Released" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if doc.Canonical != "https://go.dev/blog/go1.25" || doc.Favicon != "https://go.dev/images/favicon.png" {
		t.Fatalf("unexpected links %q %q", doc.Canonical, doc.Favicon)
	}
	if doc.Description != "The Go team announces Go 1.25." || doc.SiteName != "The Go Blog" {
		t.Fatalf("unexpected meta %+v", doc)
	}
	if len(doc.LinkedData) != 1 || doc.LinkedData[0].Headline != "Go 1.25 is out" {
		t.Fatalf("unexpected linked data %+v", doc.LinkedData)
	}
	if len(doc.Headings) != 2 || len(doc.Paragraphs) != 1 {
		t.Fatalf("unexpected headings/paragraphs %v %v", doc.Headings, doc.Paragraphs)
	}
	if strings.Contains(doc.Text, "do not include") || strings.Contains(doc.Text, "color: red") {
		t.Fatalf("expected scripts and styles stripped, got %q", doc.Text)
	}
	md, ok := doc.Markdown()
	if !ok || !strings.HasPrefix(md, "# Go 1.25 Released") || !strings.Contains(md, "İçerik (LD):") {
		t.Fatalf("unexpected markdown %v %q", ok, md)
	}
}

func TestParseDefaultsFavicon(t *testing.T) {
	doc, err := Parse(strings.NewReader("<html><head><title>x</title></head></html>"), "https://example.com/a/b")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Favicon != "https://example.com/favicon.ico" {
		t.Fatalf("unexpected favicon %q", doc.Favicon)
	}
}

func TestFetcherFallsBackToPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected user agent")
		}
		_, _ = w.Write([]byte("<html><body><div>tiny page</div></body></html>"))
	}))
	defer srv.Close()
	text, source, err := NewFetcher(srv.Client()).Text(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if source != SourcePlain || text != "tiny page" {
		t.Fatalf("unexpected %q from %s", text, source)
	}
}

func TestFetcherStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()
	_, source, err := NewFetcher(nil).Text(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if source != SourceStructured {
		t.Fatalf("expected structured source, got %s", source)
	}
}

func TestFetcherReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	if _, _, err := NewFetcher(nil).Text(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
