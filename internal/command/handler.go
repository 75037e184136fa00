// Package command implements the interactive shell's ":" commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pkt.systems/nexus/internal/directive"
	"pkt.systems/nexus/internal/version"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// HandlerConfig configures command behavior.
type HandlerConfig struct {
	DisableAuditLogging bool
}

// Handler routes shell commands to service operations and writes their
// output as plain lines.
type Handler struct {
	service Service
	out     io.Writer
	cfg     HandlerConfig
	suggest *directive.Suggester
}

// NewHandler constructs a command handler.
func NewHandler(service Service, out io.Writer, cfg HandlerConfig) *Handler {
	if out == nil {
		out = io.Discard
	}
	return &Handler{service: service, out: out, cfg: cfg, suggest: directive.NewSuggester()}
}

// Handle executes input when it is a command. It reports whether input was
// consumed; anything else is a question for the coordinator.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := pslog.Ctx(ctx).With("command", cmd.Name, "args", len(cmd.Args))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command", strings.TrimSpace(input))
	}
	log.Info("command request")
	var err error
	switch cmd.Name {
	case "":
		err = errors.New("invalid command")
	case "help", "h":
		h.writeLines(helpLines()...)
	case "new":
		err = h.handleNew(ctx, cmd)
	case "open", "o":
		err = h.handleOpen(ctx, cmd)
	case "tabs", "ls":
		h.handleTabs()
	case "switch", "s":
		err = h.handleSwitch(ctx, cmd)
	case "close":
		err = h.handleClose(ctx, cmd)
	case "move":
		err = h.handleMove(ctx, cmd)
	case "back":
		err = h.service.Back(ctx)
	case "forward":
		err = h.service.Forward(ctx)
	case "reload":
		err = h.service.Reload(ctx)
	case "home":
		h.service.Home(ctx)
	case "external":
		err = h.service.OpenExternal(ctx, cmd.Remainder)
	case "mode":
		err = h.handleMode(cmd)
	case "models":
		h.handleModels()
	case "model":
		err = h.handleModel(cmd)
	case "ollama":
		err = h.handleOllama(ctx, cmd)
	case "shortcuts", "sc":
		h.handleShortcuts()
	case "go":
		err = h.handleGo(ctx, cmd)
	case "pin":
		err = h.handlePin(ctx, cmd)
	case "unpin":
		err = h.handleUnpin(ctx, cmd)
	case "pinmove":
		err = h.handlePinMove(ctx, cmd)
	case "history":
		err = h.service.LoadHistory(ctx)
	case "forget":
		err = h.service.ForgetPage(ctx)
	case "settings":
		h.service.OpenSettings("command")
	case "status":
		h.handleStatus()
	case "suggest":
		err = h.handleSuggest(cmd)
	case "version":
		h.writeLines("nexus " + version.CurrentWithDirty())
	default:
		log.Warn("command rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: %s%s", Prefix, cmd.Name)
	}
	if err != nil {
		log.Warn("command failed", "err", err)
		return true, err
	}
	log.Debug("command completed")
	return true, nil
}

func (h *Handler) handleNew(ctx context.Context, cmd Command) error {
	h.service.NewSession(ctx)
	if cmd.Remainder == "" {
		return nil
	}
	return h.service.Open(ctx, cmd.Remainder)
}

func (h *Handler) handleOpen(ctx context.Context, cmd Command) error {
	if cmd.Remainder == "" {
		return fmt.Errorf("usage: %sopen <url|search terms>", Prefix)
	}
	return h.service.Open(ctx, cmd.Remainder)
}

func (h *Handler) handleTabs() {
	sessions := h.service.Sessions()
	if len(sessions) == 0 {
		h.writeLines("no tabs")
		return
	}
	lines := make([]string, 0, len(sessions))
	for i, s := range sessions {
		marker := " "
		if s.Active {
			marker = "*"
		}
		line := fmt.Sprintf("%s %d. %s", marker, i+1, s.Title)
		if s.URL != "" {
			line += " <" + s.URL + ">"
		}
		lines = append(lines, line)
	}
	h.writeLines(lines...)
}

func (h *Handler) handleSwitch(ctx context.Context, cmd Command) error {
	if cmd.Remainder == "" {
		return fmt.Errorf("usage: %sswitch <n|id|title>", Prefix)
	}
	id, err := h.resolveSession(cmd.Remainder)
	if err != nil {
		return err
	}
	if !h.service.SwitchTo(ctx, id) {
		return schema.ErrSessionNotFound
	}
	return nil
}

func (h *Handler) handleClose(ctx context.Context, cmd Command) error {
	var id schema.SessionID
	if cmd.Remainder == "" {
		id = h.service.Snapshot().ActiveSession
		if id == "" {
			return schema.ErrNoActiveSession
		}
	} else {
		var err error
		if id, err = h.resolveSession(cmd.Remainder); err != nil {
			return err
		}
	}
	if !h.service.CloseSession(ctx, id) {
		return schema.ErrSessionNotFound
	}
	return nil
}

func (h *Handler) handleMove(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 2 {
		return fmt.Errorf("usage: %smove <tab> <position>", Prefix)
	}
	id, err := h.resolveSession(cmd.Args[0])
	if err != nil {
		return err
	}
	sessions := h.service.Sessions()
	pos, err := parseIndex(cmd.Args[1], len(sessions))
	if err != nil {
		return err
	}
	ids := make([]schema.SessionID, 0, len(sessions))
	for _, s := range sessions {
		if s.ID != id {
			ids = append(ids, s.ID)
		}
	}
	ids = insertAt(ids, pos, id)
	return h.service.ReorderSessions(ctx, ids)
}

func (h *Handler) handleMode(cmd Command) error {
	if len(cmd.Args) == 0 {
		h.writeLines("mode: " + string(h.service.Models().Mode))
		return nil
	}
	mode, err := schema.NormalizeMode(cmd.Args[0])
	if err != nil {
		return fmt.Errorf("usage: %smode <local|online>", Prefix)
	}
	snap, err := h.service.SetMode(mode)
	if err != nil {
		return err
	}
	h.writeLines("mode set to: " + string(snap.Mode))
	return nil
}

func (h *Handler) handleModels() {
	snap := h.service.Models()
	if snap.Loading {
		h.writeLines(schema.MsgLoadingModels)
		return
	}
	lines := make([]string, 0, len(snap.Options))
	for i, opt := range snap.Options {
		marker := " "
		if opt.ID == snap.Selected {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %s", marker, i+1, opt.Label))
	}
	h.writeLines(lines...)
}

func (h *Handler) handleModel(cmd Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: %smodel <n|id>", Prefix)
	}
	model := cmd.Args[0]
	snap := h.service.Models()
	if idx, err := strconv.Atoi(model); err == nil {
		if idx <= 0 || idx > len(snap.Options) {
			return errors.New("model index out of range")
		}
		model = string(snap.Options[idx-1].ID)
	}
	snap, err := h.service.SelectModel(model)
	if err != nil {
		return err
	}
	h.writeLines("model set to: " + string(snap.Selected))
	return nil
}

func (h *Handler) handleOllama(ctx context.Context, cmd Command) error {
	if cmd.Remainder == "" {
		url, err := h.service.LocalBaseURL(ctx)
		if err != nil {
			return err
		}
		h.writeLines("ollama: " + url)
		return nil
	}
	if err := h.service.SetLocalBaseURL(ctx, cmd.Remainder); err != nil {
		return err
	}
	h.writeLines("ollama set to: " + cmd.Remainder)
	return nil
}

func (h *Handler) handleShortcuts() {
	shortcuts := h.service.Shortcuts()
	if len(shortcuts) == 0 {
		h.writeLines("no shortcuts")
		return
	}
	lines := make([]string, 0, len(shortcuts))
	for i, sc := range shortcuts {
		lines = append(lines, fmt.Sprintf("%d. %s <%s>", i+1, sc.Title, sc.URL))
	}
	h.writeLines(lines...)
}

func (h *Handler) handleGo(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: %sgo <shortcut>", Prefix)
	}
	sc, err := h.resolveShortcut(cmd.Args[0])
	if err != nil {
		return err
	}
	return h.service.Open(ctx, sc.URL)
}

func (h *Handler) handlePin(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 2 {
		return fmt.Errorf("usage: %spin <title> <url>", Prefix)
	}
	url := cmd.Args[len(cmd.Args)-1]
	title := strings.Join(cmd.Args[:len(cmd.Args)-1], " ")
	sc, err := h.service.SaveShortcut(ctx, schema.SaveShortcutRequest{Title: title, URL: url})
	if err != nil {
		return err
	}
	h.writeLines(fmt.Sprintf("pinned: %s <%s>", sc.Title, sc.URL))
	return nil
}

func (h *Handler) handleUnpin(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: %sunpin <shortcut>", Prefix)
	}
	sc, err := h.resolveShortcut(cmd.Args[0])
	if err != nil {
		return err
	}
	return h.service.DeleteShortcut(ctx, sc.ID)
}

func (h *Handler) handlePinMove(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 2 {
		return fmt.Errorf("usage: %spinmove <shortcut> <position>", Prefix)
	}
	sc, err := h.resolveShortcut(cmd.Args[0])
	if err != nil {
		return err
	}
	shortcuts := h.service.Shortcuts()
	pos, err := parseIndex(cmd.Args[1], len(shortcuts))
	if err != nil {
		return err
	}
	ids := make([]schema.ShortcutID, 0, len(shortcuts))
	for _, s := range shortcuts {
		if s.ID != sc.ID {
			ids = append(ids, s.ID)
		}
	}
	return h.service.ReorderShortcuts(ctx, insertAt(ids, pos, sc.ID))
}

// handleSuggest lists the directives matching the first token of the
// remainder. A single match also prints the completed input.
func (h *Handler) handleSuggest(cmd Command) error {
	if cmd.Remainder == "" {
		return fmt.Errorf("usage: %ssuggest %s<prefix> [question]", Prefix, directive.Sigil)
	}
	state := h.suggest.Update(cmd.Remainder)
	if !state.Visible {
		h.writeLines("no suggestions")
		return nil
	}
	lines := make([]string, 0, len(state.Items)+1)
	for i, item := range state.Items {
		marker := " "
		if i == state.Selected {
			marker = ">"
		}
		lines = append(lines, fmt.Sprintf("%s %-12s %s", marker, item.Command, item.Hint))
	}
	if len(state.Items) == 1 {
		if completed, ok := h.suggest.Accept(cmd.Remainder); ok {
			lines = append(lines, "complete: "+completed)
		}
	}
	h.writeLines(lines...)
	return nil
}

func (h *Handler) handleStatus() {
	snap := h.service.Snapshot()
	state := "ready"
	switch {
	case snap.Degraded:
		state = "degraded"
	case snap.Busy:
		state = "busy"
	}
	labels := []string{"state", "mode", "model", "tabs", "address"}
	values := []string{state, string(snap.Models.Mode), string(snap.Models.Selected), strconv.Itoa(len(snap.Sessions)), snap.Address}
	if snap.Status != "" {
		labels = append(labels, "status")
		values = append(values, snap.Status)
	}
	width := maxLabelWidth(labels)
	lines := make([]string, 0, len(labels))
	for i, label := range labels {
		lines = append(lines, formatStatusLine(label, values[i], width))
	}
	h.writeLines(lines...)
}

// resolveSession accepts a 1-based index, a session id or a title query.
func (h *Handler) resolveSession(ref string) (schema.SessionID, error) {
	sessions := h.service.Sessions()
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx <= 0 || idx > len(sessions) {
			return "", errors.New("tab index out of range")
		}
		return sessions[idx-1].ID, nil
	}
	for _, s := range sessions {
		if string(s.ID) == ref {
			return s.ID, nil
		}
	}
	if found := h.service.FindSessions(ref); len(found) > 0 {
		return found[0].ID, nil
	}
	return "", fmt.Errorf("tab not found: %s", ref)
}

// resolveShortcut accepts a 1-based index or a title.
func (h *Handler) resolveShortcut(ref string) (schema.Shortcut, error) {
	shortcuts := h.service.Shortcuts()
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx <= 0 || idx > len(shortcuts) {
			return schema.Shortcut{}, errors.New("shortcut index out of range")
		}
		return shortcuts[idx-1], nil
	}
	for _, sc := range shortcuts {
		if strings.EqualFold(sc.Title, ref) {
			return sc, nil
		}
	}
	return schema.Shortcut{}, fmt.Errorf("shortcut not found: %s", ref)
}

func (h *Handler) writeLines(lines ...string) {
	for _, line := range lines {
		_, _ = fmt.Fprintln(h.out, line)
	}
}

func helpLines() []string {
	return []string{
		"commands:",
		"  :new [url]             open a new tab",
		"  :open <url|terms>      load a page or search in the active tab",
		"  :tabs                  list tabs",
		"  :switch <n|title>      activate a tab",
		"  :close [n|title]       close a tab",
		"  :move <tab> <pos>      move a tab",
		"  :back :forward :reload :home",
		"  :external [url]        open in the system browser",
		"  :mode [local|online]   show or switch the answer source",
		"  :models  :model <n>    list or select models",
		"  :ollama [url]          show or set the ollama address",
		"  :shortcuts  :go <n>    list or open shortcuts",
		"  :pin <title> <url>  :unpin <n>  :pinmove <n> <pos>",
		"  :history               reload the chat for this page",
		"  :forget                clear cached page text and chat",
		"  :suggest /<prefix>     list answer styles matching a prefix",
		"  :settings :status :version",
		"questions are sent to the selected model; /ozetle, /acikla, /madde, /kaynakekle, /kisalt, /uzat set the answer style",
	}
}

// parseIndex converts a 1-based position into a 0-based index clamped to n.
func parseIndex(value string, n int) (int, error) {
	idx, err := strconv.Atoi(value)
	if err != nil || idx <= 0 {
		return 0, fmt.Errorf("invalid position: %s", value)
	}
	if idx > n {
		idx = n
	}
	return idx - 1, nil
}

func insertAt[T any](items []T, idx int, item T) []T {
	if idx >= len(items) {
		return append(items, item)
	}
	items = append(items, item)
	copy(items[idx+1:], items[idx:])
	items[idx] = item
	return items
}

func maxLabelWidth(labels []string) int {
	width := 0
	for _, label := range labels {
		if len(label) > width {
			width = len(label)
		}
	}
	return width
}

func formatStatusLine(label, value string, labelWidth int) string {
	return fmt.Sprintf("%-*s  %s", labelWidth+1, label+":", value)
}
