package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/nexus/core"
	"pkt.systems/nexus/internal/command"
	"pkt.systems/nexus/internal/directive"
	"pkt.systems/nexus/internal/reorder"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

const shutdownTimeout = 5 * time.Second

// Service is the shell surface exposed over HTTP.
type Service interface {
	command.Service
	Submit(ctx context.Context, input string) (schema.SubmitResponse, error)
	SetBounds(rect schema.Rect)
	// SessionStrip and ShortcutGrid drive pointer reordering of the two lists.
	SessionStrip() *reorder.Protocol[schema.SessionID, schema.SessionID]
	ShortcutGrid() *reorder.Protocol[schema.ShortcutID, schema.Shortcut]
}

// FromShell adapts a shell to Service.
func FromShell(s *core.Shell) Service {
	return shellService{Service: command.FromShell(s), shell: s}
}

type shellService struct {
	command.Service
	shell *core.Shell
}

func (a shellService) Submit(ctx context.Context, input string) (schema.SubmitResponse, error) {
	return a.shell.Submit(ctx, input)
}

func (a shellService) SetBounds(rect schema.Rect) { a.shell.Layout().SetBounds(rect) }

func (a shellService) SessionStrip() *reorder.Protocol[schema.SessionID, schema.SessionID] {
	return a.shell.Registry().Strip()
}

func (a shellService) ShortcutGrid() *reorder.Protocol[schema.ShortcutID, schema.Shortcut] {
	return a.shell.Shortcuts().Grid()
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	service  Service
	hub      *Hub
	basePath string
	log      pslog.Logger
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service Service, hub *Hub, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Server{
		cfg:      cfg,
		service:  service,
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
		log:      logger,
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/activate", s.handleActivate)
	mux.HandleFunc("/api/sessions/close", s.handleClose)
	mux.HandleFunc("/api/sessions/reorder", s.handleReorderSessions)
	mux.HandleFunc("/api/sessions/drag", s.handleDragSessions)
	mux.HandleFunc("/api/navigate", s.handleNavigate)
	mux.HandleFunc("/api/nav", s.handleNav)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/shortcuts", s.handleShortcuts)
	mux.HandleFunc("/api/shortcuts/reorder", s.handleReorderShortcuts)
	mux.HandleFunc("/api/shortcuts/drag", s.handleDragShortcuts)
	mux.HandleFunc("/api/suggest", s.handleSuggest)
	mux.HandleFunc("/api/suggest/accept", s.handleSuggestAccept)
	mux.HandleFunc("/api/settings/ollama", s.handleOllama)
	mux.HandleFunc("/api/settings/open", s.handleOpenSettings)
	mux.HandleFunc("/api/layout", s.handleLayout)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/forget", s.handleForget)
	mux.HandleFunc("/api/stream", s.handleStream)

	handler := withRequestLogging(mux, s.log)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"sessions": s.service.Sessions()})
	case http.MethodPost:
		var payload struct {
			Input string `json:"input"`
		}
		if !decodeOptionalJSON(w, r, &payload) {
			return
		}
		ctx := r.Context()
		id := s.service.NewSession(ctx)
		if input := strings.TrimSpace(payload.Input); input != "" {
			if err := s.service.Open(ctx, input); err != nil {
				writeFailure(w, r, "http session open failed", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type sessionPayload struct {
	ID schema.SessionID `json:"id"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var payload sessionPayload
	if !decodePost(w, r, &payload) {
		return
	}
	if !s.service.SwitchTo(r.Context(), payload.ID) {
		writeFailure(w, r, "http activate failed", schema.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var payload sessionPayload
	if !decodePost(w, r, &payload) {
		return
	}
	if !s.service.CloseSession(r.Context(), payload.ID) {
		writeFailure(w, r, "http close failed", schema.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReorderSessions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []schema.SessionID `json:"ids"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	if err := s.service.ReorderSessions(r.Context(), payload.IDs); err != nil {
		writeFailure(w, r, "http reorder failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.service.Sessions()})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Input string `json:"input"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Input) == "" {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidURL)
		return
	}
	if err := s.service.Open(r.Context(), payload.Input); err != nil {
		writeFailure(w, r, "http navigate failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
		URL    string `json:"url,omitempty"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	ctx := r.Context()
	var err error
	switch payload.Action {
	case "back":
		err = s.service.Back(ctx)
	case "forward":
		err = s.service.Forward(ctx)
	case "reload":
		err = s.service.Reload(ctx)
	case "home":
		s.service.Home(ctx)
	case "external":
		err = s.service.OpenExternal(ctx, payload.URL)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", payload.Action))
		return
	}
	if err != nil {
		writeFailure(w, r, "http nav failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Input string `json:"input"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	ctx := r.Context()
	if _, ok := command.Parse(payload.Input); ok {
		var out bytes.Buffer
		handler := command.NewHandler(s.service, &out, command.HandlerConfig{DisableAuditLogging: s.cfg.DisableAuditLogging})
		if _, err := handler.Handle(ctx, payload.Input); err != nil {
			pslog.Ctx(ctx).Warn("http command failed", "err", err)
			writeJSON(w, http.StatusBadRequest, map[string]any{"command": true, "error": err.Error(), "output": splitLines(out.String())})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"command": true, "output": splitLines(out.String())})
		return
	}
	resp, err := s.service.Submit(ctx, payload.Input)
	if err != nil {
		writeFailure(w, r, "http ask failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": resp.RequestID,
		"dispatched": resp.Dispatched,
		"prompt":     resp.Prompt,
		"rejected":   resp.Rejected,
	})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"mode": s.service.Models().Mode})
	case http.MethodPost:
		var payload struct {
			Mode string `json:"mode"`
		}
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		mode, err := schema.NormalizeMode(payload.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		snap, err := s.service.SetMode(mode)
		if err != nil {
			writeFailure(w, r, "http mode failed", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.Models())
	case http.MethodPost:
		var payload struct {
			Model string `json:"model"`
		}
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		snap, err := s.service.SelectModel(payload.Model)
		if err != nil {
			writeFailure(w, r, "http model select failed", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleShortcuts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"shortcuts": s.service.Shortcuts()})
	case http.MethodPost:
		var payload schema.Shortcut
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		saved, err := s.service.SaveShortcut(ctx, schema.SaveShortcutRequest{
			ID:        payload.ID,
			Title:     payload.Title,
			URL:       payload.URL,
			Color:     payload.Color,
			Icon:      payload.Icon,
			SortOrder: payload.SortOrder,
		})
		if err != nil {
			writeFailure(w, r, "http shortcut save failed", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	case http.MethodDelete:
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
			return
		}
		if err := s.service.DeleteShortcut(ctx, schema.ShortcutID(id)); err != nil {
			writeFailure(w, r, "http shortcut delete failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReorderShortcuts(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []schema.ShortcutID `json:"ids"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	if err := s.service.ReorderShortcuts(r.Context(), payload.IDs); err != nil {
		writeFailure(w, r, "http shortcut reorder failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shortcuts": s.service.Shortcuts()})
}

func (s *Server) handleDragSessions(w http.ResponseWriter, r *http.Request) {
	handleDrag(w, r, s.service.SessionStrip())
}

func (s *Server) handleDragShortcuts(w http.ResponseWriter, r *http.Request) {
	handleDrag(w, r, s.service.ShortcutGrid())
}

type dragPayload[K comparable] struct {
	Action string         `json:"action"`
	ID     K              `json:"id"`
	Rects  []reorder.Rect `json:"rects,omitempty"`
	At     reorder.Point  `json:"at"`
}

// handleDrag feeds one pointer event of a reorder gesture into list. A drop
// that changed the order is persisted before the response is written.
func handleDrag[K comparable, T any](w http.ResponseWriter, r *http.Request, list *reorder.Protocol[K, T]) {
	var payload dragPayload[K]
	if !decodePost(w, r, &payload) {
		return
	}
	switch payload.Action {
	case "start":
		if err := list.Start(payload.ID, payload.Rects); err != nil {
			writeFailure(w, r, "http drag start failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "strategy": list.Strategy().Name()})
	case "preview":
		order, dragging, err := list.Preview(payload.At)
		if err != nil {
			writeFailure(w, r, "http drag preview failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order, "dragging": dragging})
	case "drop":
		out, err := list.Drop(r.Context(), payload.At)
		if err != nil {
			writeFailure(w, r, "http drag drop failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": out.Order, "moved": out.Moved, "click": out.Click})
	case "cancel":
		list.Cancel()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", payload.Action))
	}
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, directive.NewSuggester().Update(r.URL.Query().Get("input")))
}

func (s *Server) handleSuggestAccept(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Input string `json:"input"`
		Index int    `json:"index"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	panel := directive.NewSuggester()
	panel.Update(payload.Input)
	input, accepted := panel.AcceptIndex(payload.Input, payload.Index)
	writeJSON(w, http.StatusOK, map[string]any{"input": input, "accepted": accepted})
}

func (s *Server) handleOllama(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		url, err := s.service.LocalBaseURL(ctx)
		if err != nil {
			writeFailure(w, r, "http ollama get failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"base_url": url})
	case http.MethodPost:
		var payload struct {
			BaseURL string `json:"base_url"`
		}
		if !decodeJSONBody(w, r, &payload) {
			return
		}
		if err := s.service.SetLocalBaseURL(ctx, payload.BaseURL); err != nil {
			writeFailure(w, r, "http ollama set failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"base_url": strings.TrimSpace(payload.BaseURL)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOpenSettings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	s.service.OpenSettings("http")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var rect schema.Rect
	if !decodePost(w, r, &rect) {
		return
	}
	s.service.SetBounds(rect)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.LoadHistory(r.Context()); err != nil {
		writeFailure(w, r, "http history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcript": s.service.Snapshot().Transcript})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.ForgetPage(r.Context()); err != nil {
		writeFailure(w, r, "http forget failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	// Subscribe first so nothing published after the snapshot is lost.
	ch, unsubscribe, seq := s.hub.Subscribe()
	defer unsubscribe()

	replayCount := 0
	resync := lastID == 0
	if lastID > 0 {
		replay, complete := s.hub.Replay(lastID)
		if complete {
			replayCount = len(replay)
			for _, event := range replay {
				if event.Seq > seq {
					break
				}
				_ = writeSSEvent(w, event)
			}
		} else {
			log.Warn("http stream resync", "last_id", lastID, "latest", seq)
			resync = true
		}
	}
	if resync {
		snapshot := s.service.Snapshot()
		_ = writeSSEvent(w, StreamEvent{
			Seq:       seq,
			Type:      "snapshot",
			Snapshot:  &snapshot,
			Timestamp: time.Now(),
		})
	}
	flusher.Flush()

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "resync", resync)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				log.Warn("http stream closed by hub", "reason", "lagging")
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodePost(w http.ResponseWriter, r *http.Request, target any) bool {
	if !allowMethod(w, r, http.MethodPost) {
		return false
	}
	return decodeJSONBody(w, r, target)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r.Body, target); err != nil {
		pslog.Ctx(r.Context()).Warn("http decode failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r.Body, target); err != nil && !errors.Is(err, io.EOF) {
		pslog.Ctx(r.Context()).Warn("http decode failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	log := pslog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(msg, "err", err)
	} else {
		log.Warn(msg, "err", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrSessionNotFound),
		errors.Is(err, schema.ErrSurfaceNotFound),
		errors.Is(err, schema.ErrShortcutNotFound),
		errors.Is(err, reorder.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, schema.ErrBridgeUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidMode),
		errors.Is(err, schema.ErrInvalidModel),
		errors.Is(err, schema.ErrInvalidURL),
		errors.Is(err, schema.ErrEmptyBaseURL),
		errors.Is(err, schema.ErrEmptyPrompt),
		errors.Is(err, schema.ErrNoActiveSession),
		errors.Is(err, schema.ErrNoURL),
		errors.Is(err, schema.ErrNoModel),
		errors.Is(err, reorder.ErrNoDrag),
		errors.Is(err, reorder.ErrLayoutMismatch),
		errors.Is(err, reorder.ErrOrderMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
