// Package openrouter talks to the OpenRouter chat completion API.
package openrouter

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
	"time"

	"golang.org/x/time/rate"
	"pkt.systems/nexus/internal/backend"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// DefaultBaseURL is the public OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultFallbackModels are tried, in order, after the requested model.
var DefaultFallbackModels = []string{
	"openai/gpt-oss-20b:free",
	"openai/gpt-oss-120b:free",
	"moonshotai/kimi-dev-72b:free",
}

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("openrouter api key is not configured")

const (
	appTitle    = "Nexus Browser"
	appReferer  = "http://localhost/"
	freeSuffix  = ":free"
	maxLineSize = 1 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	APIKey         string
	FallbackModels []string
	// RequestsPerMinute throttles outgoing requests. Zero disables throttling.
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client is an OpenRouter API client.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     pslog.Logger
}

// New constructs a client.
func New(cfg Config, logger pslog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = DefaultFallbackModels
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 3)
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter, log: logger.With("backend", "openrouter")}
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Models lists the models the router offers.
func (c *Client) Models(ctx context.Context) ([]schema.ModelInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openrouter models: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openrouter models decode: %w", err)
	}
	out := make([]schema.ModelInfo, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		if m.ID != "" {
			out = append(out, schema.ModelInfo{Name: m.ID})
		}
	}
	c.log.Debug("openrouter models listed", "count", len(out))
	return out, nil
}

// Candidates returns the models to try for a request: the requested model,
// the configured fallbacks, then any other free model the router offers.
func (c *Client) Candidates(ctx context.Context, model string) []string {
	seen := map[string]bool{model: true}
	out := []string{model}
	for _, m := range c.cfg.FallbackModels {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	models, err := c.Models(ctx)
	if err != nil {
		pslog.Ctx(ctx).Debug("openrouter free model listing failed", "err", err)
		return out
	}
	for _, m := range models {
		if strings.HasSuffix(m.Name, freeSuffix) && !seen[m.Name] {
			seen[m.Name] = true
			out = append(out, m.Name)
		}
	}
	return out
}

// retryableError marks a candidate failure that moves on to the next model.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Chat asks model and streams the answer through emit, falling back to
// other candidates on rate limiting, unavailability or an empty answer.
// onFallback is called with each replacement model. A terminal chunk is
// emitted once an answer was produced.
func (c *Client) Chat(ctx context.Context, model, prompt string, emit backend.Emit, onFallback func(string)) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", ErrNoAPIKey
	}
	log := pslog.Ctx(ctx)
	var lastErr error
	for idx, candidate := range c.Candidates(ctx, model) {
		if idx > 0 {
			log.Warn("openrouter fallback", "to", candidate, "err", lastErr)
			if onFallback != nil {
				onFallback(candidate)
			}
		}
		answer, err := c.stream(ctx, candidate, prompt, emit)
		if err != nil {
			var retry retryableError
			if errors.As(err, &retry) {
				lastErr = err
				continue
			}
			return answer, err
		}
		if answer == "" {
			answer, err = c.complete(ctx, candidate, prompt)
			if err != nil {
				lastErr = err
			} else if answer != "" {
				emit(chunk(candidate, answer, false))
			}
		}
		if answer != "" {
			emit(chunk(candidate, "", true))
			log.Info("openrouter chat done", "model", candidate, "len", len(answer))
			return answer, nil
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("openrouter %s: empty answer", candidate)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("tüm modellerde rate-limit veya boş yanıt")
	}
	return "", lastErr
}

type completionRequest struct {
	Model    string            `json:"model"`
	Stream   bool              `json:"stream"`
	Messages []backend.Message `json:"messages"`
}

type completionChunk struct {
	Error   json.RawMessage `json:"error"`
	Choices []struct {
		Delta   *backend.Message `json:"delta"`
		Message *backend.Message `json:"message"`
	} `json:"choices"`
}

func (c completionChunk) text() string {
	if len(c.Choices) == 0 {
		return ""
	}
	first := c.Choices[0]
	if first.Delta != nil && first.Delta.Content != "" {
		return first.Delta.Content
	}
	if first.Message != nil {
		return first.Message.Content
	}
	return ""
}

func (c completionChunk) errorMessage() (string, bool) {
	if len(c.Error) == 0 || string(c.Error) == "null" {
		return "", false
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(c.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	var s string
	if err := json.Unmarshal(c.Error, &s); err == nil && s != "" {
		return s, true
	}
	return "Bilinmeyen hata", true
}

func (c *Client) stream(ctx context.Context, model, prompt string, emit backend.Emit) (string, error) {
	resp, err := c.post(ctx, model, prompt, true)
	if err != nil {
		return "", retryableError{err: fmt.Errorf("istek gönderilemedi: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("openrouter HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			return "", retryableError{err: err}
		}
		return "", err
	}
	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			break
		}
		if payload == "" {
			continue
		}
		var chunkData completionChunk
		if err := json.Unmarshal([]byte(payload), &chunkData); err != nil {
			continue
		}
		if msg, ok := chunkData.errorMessage(); ok {
			emit(chunk(model, "[HATA] "+msg, false))
		}
		if delta := chunkData.text(); delta != "" {
			answer.WriteString(delta)
			emit(chunk(model, delta, false))
		}
	}
	if err := scanner.Err(); err != nil {
		return answer.String(), fmt.Errorf("SSE chunk okunamadı: %w", err)
	}
	return answer.String(), nil
}

func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.post(ctx, model, prompt, false)
	if err != nil {
		return "", fmt.Errorf("fallback isteği hatası: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("[HATA] fallback HTTP %d: %s", resp.StatusCode, bodyError(body))
	}
	var decoded completionChunk
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLineSize)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("fallback yanıtı çözülemedi: %w", err)
	}
	if msg, ok := decoded.errorMessage(); ok {
		return "", fmt.Errorf("[HATA] %s", msg)
	}
	return decoded.text(), nil
}

// bodyError extracts the error message of a failed completion, falling back
// to the raw body.
func bodyError(body []byte) string {
	var decoded completionChunk
	if err := json.Unmarshal(body, &decoded); err == nil {
		if msg, ok := decoded.errorMessage(); ok {
			return msg
		}
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) post(ctx context.Context, model, prompt string, stream bool) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(completionRequest{
		Model:    model,
		Stream:   stream,
		Messages: []backend.Message{{Role: string(schema.RoleUser), Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	req.Header.Set("HTTP-Referer", appReferer)
	req.Header.Set("X-Title", appTitle)
	return c.http.Do(req)
}

func chunk(model, text string, done bool) schema.StreamChunk {
	return schema.StreamChunk{Model: model, CreatedAt: time.Now().UTC(), Response: text, Done: done}
}
