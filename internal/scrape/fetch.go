package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"pkt.systems/pslog"
)

// Content sources reported with extracted text.
const (
	SourceStructured = "aggressive_html"
	SourcePlain      = "http_fallback"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
)

// Fetcher downloads and extracts pages.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher constructs a Fetcher. A nil client gets a 10s timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{client: client, userAgent: defaultUserAgent}
}

// Document fetches url and parses it.
func (f *Fetcher) Document(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Document{}, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", url, err)
	}
	return Parse(bytes.NewReader(body), resp.Request.URL.String())
}

// Text returns answerable text for url and the source it came from. The
// structured extract is preferred; its AMP page is tried when it is thin;
// the plain visible text is the last resort.
func (f *Fetcher) Text(ctx context.Context, url string) (string, string, error) {
	log := pslog.Ctx(ctx)
	doc, err := f.Document(ctx, url)
	if err != nil {
		return "", "", err
	}
	out, ok := doc.Markdown()
	if len(out) < 800 && doc.AMP != "" {
		if amp, err := f.Document(ctx, doc.AMP); err == nil {
			ampBody := amp.Body(maxParagraphChars + 1000)
			if len(ampBody) > len(doc.Body(maxParagraphChars)) {
				out += "\n[AMP İçerik]\n" + ampBody
				ok = ok || len(out) > meaningfulLen
			}
		} else {
			log.Debug("scrape amp fetch failed", "url", doc.AMP, "err", err)
		}
	}
	if ok {
		log.Debug("scrape structured extract", "url", url, "len", len(out))
		return out, SourceStructured, nil
	}
	log.Debug("scrape plain text", "url", url, "len", len(doc.Text))
	return doc.Text, SourcePlain, nil
}
