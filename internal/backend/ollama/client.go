// Package ollama talks to a locally hosted Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pkt.systems/nexus/internal/backend"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// DefaultBaseURL is the address of a stock Ollama install.
const DefaultBaseURL = "http://localhost:11434"

const maxLineBytes = 1 << 20

// Client is an Ollama API client. The base URL can change at runtime.
type Client struct {
	http *http.Client
	log  pslog.Logger

	mu      sync.RWMutex
	baseURL string
}

// New constructs a client. A nil http client uses http.DefaultClient.
func New(baseURL string, client *http.Client, logger pslog.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	c := &Client{http: client, log: logger.With("backend", "ollama")}
	c.SetBaseURL(baseURL)
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL changes the server address. Empty selects DefaultBaseURL.
func (c *Client) SetBaseURL(url string) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		url = DefaultBaseURL
	}
	c.mu.Lock()
	c.baseURL = url
	c.mu.Unlock()
}

type tagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// Models lists the installed models.
func (c *Client) Models(ctx context.Context) ([]schema.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama tags: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama tags decode: %w", err)
	}
	out := make([]schema.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name == "" {
			continue
		}
		out = append(out, schema.ModelInfo{Name: m.Name, Size: m.Size, ModifiedAt: m.ModifiedAt})
	}
	c.log.Debug("ollama models listed", "count", len(out))
	return out, nil
}

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []backend.Message `json:"messages"`
	Stream   bool              `json:"stream"`
}

type chatChunk struct {
	Model   string           `json:"model"`
	Message *backend.Message `json:"message"`
	// Response is set by the older generate endpoint format.
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Chat streams a chat completion. Every non-empty fragment is emitted as
// it arrives and a terminal chunk is always emitted when the stream ends
// without error. The full answer is returned.
func (c *Client) Chat(ctx context.Context, model string, messages []backend.Message, emit backend.Emit) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	log := pslog.Ctx(ctx)
	log.Info("ollama chat started", "model", model, "messages", len(messages))
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama'ya bağlanılamadı: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama chat: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			log.Warn("ollama stream line skipped", "err", err)
			continue
		}
		delta := chunk.Response
		if chunk.Message != nil && chunk.Message.Content != "" {
			delta = chunk.Message.Content
		}
		if delta != "" || chunk.Done {
			answer.WriteString(delta)
			emit(schema.StreamChunk{Model: model, CreatedAt: time.Now().UTC(), Response: delta, Done: chunk.Done})
		}
		if chunk.Done {
			log.Info("ollama chat done", "len", answer.Len())
			return answer.String(), nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return answer.String(), fmt.Errorf("ollama stream: %w", err)
	}
	log.Warn("ollama stream ended without done")
	emit(schema.StreamChunk{Model: model, CreatedAt: time.Now().UTC(), Done: true})
	return answer.String(), nil
}
