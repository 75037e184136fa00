package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/nexus/internal/directive"
	"pkt.systems/nexus/internal/logx"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// historyLimit bounds the persisted messages restored for a page.
const historyLimit = 50

type phase int

const (
	phaseDispatched phase = iota + 1
	phaseStreaming
	phaseTerminal
)

func (p phase) String() string {
	switch p {
	case phaseDispatched:
		return "dispatched"
	case phaseStreaming:
		return "streaming"
	case phaseTerminal:
		return "terminal"
	default:
		return "idle"
	}
}

// inflight is the single outstanding question.
type inflight struct {
	id         schema.RequestID
	session    schema.SessionID
	mode       schema.Mode
	generation uint64
	// turn is the transcript index of the assistant turn, -1 until the
	// first chunk arrives.
	turn  int
	text  strings.Builder
	phase phase
	log   pslog.Logger
	// cancel aborts the backend call once the request stops being current.
	cancel context.CancelFunc
}

// Coordinator turns submitted input into backend requests and folds the
// streamed answer into one growing assistant turn.
type Coordinator struct {
	backends   Backends
	registry   *Registry
	models     *ModelSelector
	transcript *transcript
	status     *status
	formatter  Formatter
	log        pslog.Logger
	ctx        context.Context

	mu      sync.Mutex
	current *inflight

	wg sync.WaitGroup
}

type coordinatorDeps struct {
	backends   Backends
	registry   *Registry
	models     *ModelSelector
	transcript *transcript
	status     *status
	formatter  Formatter
	logger     pslog.Logger
}

func newCoordinator(ctx context.Context, deps coordinatorDeps) *Coordinator {
	return &Coordinator{
		backends:   deps.backends,
		registry:   deps.registry,
		models:     deps.models,
		transcript: deps.transcript,
		status:     deps.status,
		formatter:  deps.formatter,
		log:        deps.logger,
		ctx:        ctx,
	}
}

// Submit validates input against the shell state and dispatches it. A
// failed precondition adds a system turn and is reported in Rejected with a
// nil error. The backend call runs in the background; its answer arrives
// through HandleChunk.
func (c *Coordinator) Submit(ctx context.Context, input string) (schema.SubmitResponse, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return schema.SubmitResponse{}, schema.ErrEmptyPrompt
	}
	sessionID, url := c.registry.ActiveTarget()
	if sessionID == "" || url == "" {
		return c.reject(ctx, schema.MsgOpenPageFirst), nil
	}
	mode, model, ok := c.models.Current()
	if !ok {
		return c.reject(ctx, schema.MsgSelectModel), nil
	}
	if c.status.Degraded() {
		return c.reject(ctx, schema.MsgBridgeUnavailable), nil
	}

	c.mu.Lock()
	if c.current != nil && c.current.phase != phaseTerminal {
		c.mu.Unlock()
		return schema.SubmitResponse{}, schema.ErrBusy
	}
	parsed := directive.Parse(text)
	requestID := newRequestID()
	log := logx.WithModel(logx.WithSessionRequest(ctx, sessionID, requestID), mode, model)
	askCtx, cancel := context.WithCancel(pslog.ContextWithLogger(c.ctx, log))
	fl := &inflight{
		id:         requestID,
		session:    sessionID,
		mode:       mode,
		generation: c.models.Generation(),
		turn:       -1,
		phase:      phaseDispatched,
		log:        log,
		cancel:     cancel,
	}
	c.current = fl
	c.mu.Unlock()

	c.transcript.Append(schema.RoleUser, text, text, true)
	c.status.SetBusy(true, schema.MsgThinking)

	_, name := schema.SplitModelID(model)
	req := schema.AskRequest{
		RequestID: requestID,
		SessionID: sessionID,
		URL:       url,
		Question:  parsed.Prompt(),
		Model:     name,
	}
	log.Info("coordinator dispatch", "url", url, "directive", parsed.Keyword(), "question_len", len(req.Question))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatch(askCtx, fl, req)
	}()
	return schema.SubmitResponse{RequestID: requestID, Dispatched: true, Prompt: req.Question}, nil
}

func (c *Coordinator) reject(ctx context.Context, msg string) schema.SubmitResponse {
	pslog.Ctx(ctx).Debug("coordinator submit rejected", "reason", msg)
	c.transcript.AppendSystem(msg)
	return schema.SubmitResponse{Rejected: msg}
}

func (c *Coordinator) dispatch(ctx context.Context, fl *inflight, req schema.AskRequest) {
	defer fl.cancel()
	var err error
	if fl.mode == schema.ModeLocal {
		err = c.backends.AskLocal(ctx, req)
	} else {
		err = c.backends.AskRemote(ctx, req)
	}
	if err == nil {
		fl.log.Debug("coordinator dispatched")
		return
	}
	c.mu.Lock()
	if c.current != fl || fl.phase == phaseTerminal {
		c.mu.Unlock()
		if ctx.Err() != nil {
			fl.log.Debug("coordinator dispatch cancelled", "err", err)
			return
		}
		fl.log.Warn("coordinator dispatch failed after completion", "err", err)
		return
	}
	fl.phase = phaseTerminal
	c.finalizeLocked(fl)
	c.mu.Unlock()
	fl.log.Warn("coordinator dispatch failed", "err", err)
	c.transcript.AppendSystem(fmt.Sprintf(schema.MsgDispatchFailedFmt, err))
	c.status.SetBusy(false, "")
}

// HandleChunk folds a stream event into the in-flight answer. Events for any
// other request, including a superseded one, are dropped.
func (c *Coordinator) HandleChunk(mode schema.Mode, chunk schema.StreamChunk) {
	c.mu.Lock()
	fl := c.current
	if fl == nil || fl.phase == phaseTerminal || fl.mode != mode || chunk.RequestID != fl.id {
		c.mu.Unlock()
		c.log.Trace("coordinator chunk ignored", "mode", mode, "request_id", chunk.RequestID, "done", chunk.Done)
		return
	}
	if gen := c.models.Generation(); gen != fl.generation {
		fl.phase = phaseTerminal
		c.finalizeLocked(fl)
		c.mu.Unlock()
		fl.cancel()
		fl.log.Info("coordinator request superseded", "generation", fl.generation, "current", gen)
		c.status.SetBusy(false, "")
		return
	}
	fl.text.WriteString(chunk.Response)
	fl.phase = phaseStreaming
	text := fl.text.String()
	if chunk.Done {
		fl.phase = phaseTerminal
		if text == "" {
			text = schema.EmptyAnswerText
		}
	}
	rendered := c.render(text)
	if fl.turn < 0 {
		fl.turn = c.transcript.Append(schema.RoleAssistant, text, rendered, chunk.Done)
	} else {
		c.transcript.Update(fl.turn, text, rendered, chunk.Done)
	}
	c.mu.Unlock()

	if chunk.Done {
		fl.log.Info("coordinator answer done", "len", len(text))
		c.status.SetBusy(false, "")
	}
}

// Supersede freezes the in-flight answer after a mode change and cancels its
// backend call. Its remaining chunks are ignored.
func (c *Coordinator) Supersede() {
	c.mu.Lock()
	fl := c.current
	if fl == nil || fl.phase == phaseTerminal {
		c.mu.Unlock()
		return
	}
	fl.phase = phaseTerminal
	c.finalizeLocked(fl)
	c.mu.Unlock()
	fl.cancel()
	fl.log.Info("coordinator request superseded", "generation", fl.generation)
	c.status.SetBusy(false, "")
}

// finalizeLocked marks a partial assistant turn final.
func (c *Coordinator) finalizeLocked(fl *inflight) {
	if fl.turn < 0 {
		return
	}
	text := fl.text.String()
	if text == "" {
		text = schema.EmptyAnswerText
	}
	c.transcript.Update(fl.turn, text, c.render(text), true)
}

// Busy reports whether a request is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.phase != phaseTerminal
}

// Phase reports the phase of the latest request ("idle" when none).
func (c *Coordinator) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "idle"
	}
	return c.current.phase.String()
}

// LoadHistory replaces the transcript with the persisted chat of the active page.
func (c *Coordinator) LoadHistory(ctx context.Context) error {
	id, url := c.registry.ActiveTarget()
	c.transcript.Reset()
	if url == "" {
		return nil
	}
	messages, err := c.backends.ChatHistory(ctx, url, historyLimit)
	if err != nil {
		logx.WithSession(ctx, id).Warn("coordinator history load failed", "url", url, "err", err)
		return err
	}
	c.transcript.Restore(messages, c.render)
	logx.WithSession(ctx, id).Debug("coordinator history loaded", "url", url, "messages", len(messages))
	return nil
}

func (c *Coordinator) render(text string) string {
	if c.formatter == nil {
		return text
	}
	out, err := c.formatter.Format(text)
	if err != nil {
		c.log.Debug("coordinator render failed", "err", err)
		return text
	}
	return out
}

func (c *Coordinator) wait() {
	c.wg.Wait()
}
