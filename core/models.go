package core

import (
	"context"
	"sync"

	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// ModelSelector owns the answer-source mode and the selectable model list.
// Every mode change bumps the generation; a local model-list fetch only
// applies its result when its generation is still current.
type ModelSelector struct {
	lister        ModelLister
	modes         ModeStore
	sink          EventSink
	log           pslog.Logger
	remoteDefault schema.ModelID
	ctx           context.Context

	mu             sync.Mutex
	mode           schema.Mode
	generation     uint64
	loading        bool
	options        []schema.ModelOption
	selected       schema.ModelID
	remoteSelected schema.ModelID
	remoteOptions  []schema.ModelOption
	cache          []schema.ModelInfo

	wg sync.WaitGroup
	// settleHook observes every fetch completion; tests use it to order
	// resolutions.
	settleHook func(gen uint64, applied bool)
}

func newModelSelector(ctx context.Context, cfg schema.ShellConfig, lister ModelLister, modes ModeStore, sink EventSink, logger pslog.Logger) *ModelSelector {
	return &ModelSelector{
		lister:        lister,
		modes:         modes,
		sink:          sink,
		log:           logger,
		remoteDefault: cfg.RemoteDefaultModel,
		ctx:           ctx,
		mode:          cfg.DefaultMode,
	}
}

// Init restores the persisted mode, falling back to fallback.
func (m *ModelSelector) Init(fallback schema.Mode) schema.ModelsSnapshot {
	mode := fallback
	if m.modes != nil {
		stored, ok, err := m.modes.LoadMode()
		if err != nil {
			m.log.Warn("models mode load failed", "err", err)
		}
		if ok {
			if normalized, err := schema.NormalizeMode(string(stored)); err == nil {
				mode = normalized
			}
		}
	}
	return m.apply(mode)
}

// SetMode switches the answer source and persists the preference.
func (m *ModelSelector) SetMode(mode schema.Mode) (schema.ModelsSnapshot, error) {
	normalized, err := schema.NormalizeMode(string(mode))
	if err != nil {
		return schema.ModelsSnapshot{}, err
	}
	if m.modes != nil {
		if err := m.modes.SaveMode(normalized); err != nil {
			m.log.Warn("models mode save failed", "mode", normalized, "err", err)
		}
	}
	return m.apply(normalized), nil
}

// Reload refetches the model list for the current mode.
func (m *ModelSelector) Reload() schema.ModelsSnapshot {
	m.mu.Lock()
	mode := m.mode
	m.mu.Unlock()
	return m.apply(mode)
}

func (m *ModelSelector) apply(mode schema.Mode) schema.ModelsSnapshot {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mode = mode
	if mode == schema.ModeRemote {
		m.loading = false
		m.options = m.remoteOptionsLocked()
		m.selected = m.remoteSelectedLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.log.Info("models mode set", "mode", mode, "generation", gen, "model", snap.Selected)
		m.sink.OnModels(schema.ModelsEvent{Models: snap})
		return snap
	}
	m.loading = true
	m.options = nil
	m.selected = ""
	snap := m.snapshotLocked()
	m.wg.Add(1)
	m.mu.Unlock()
	m.log.Info("models mode set", "mode", mode, "generation", gen)
	m.sink.OnModels(schema.ModelsEvent{Models: snap})
	go func() {
		defer m.wg.Done()
		models, err := m.lister.LocalModels(m.ctx)
		m.settleLocal(gen, models, err)
	}()
	return snap
}

func (m *ModelSelector) settleLocal(gen uint64, models []schema.ModelInfo, err error) {
	m.mu.Lock()
	if gen != m.generation || m.mode != schema.ModeLocal {
		current := m.generation
		m.mu.Unlock()
		m.log.Debug("models stale result discarded", "generation", gen, "current", current)
		m.settled(gen, false)
		return
	}
	if err != nil {
		m.log.Warn("models local fetch failed", "err", err)
	}
	list := models
	if len(list) == 0 && len(m.cache) > 0 {
		m.log.Warn("models local list empty, using cache", "cached", len(m.cache))
		list = m.cache
	}
	if len(list) > 0 {
		m.cache = append([]schema.ModelInfo(nil), list...)
		m.options = make([]schema.ModelOption, 0, len(list))
		for _, model := range list {
			m.options = append(m.options, schema.ModelOption{ID: schema.LocalModelID(model.Name), Label: model.Name})
		}
		m.selected = m.options[0].ID
	} else {
		m.options = []schema.ModelOption{{ID: schema.NoLocalModel, Label: schema.MsgNoLocalModels}}
		m.selected = schema.NoLocalModel
	}
	m.loading = false
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.log.Debug("models local list applied", "generation", gen, "models", len(snap.Options), "selected", snap.Selected)
	m.sink.OnModels(schema.ModelsEvent{Models: snap})
	m.settled(gen, true)
}

// LoadRemoteModels fetches the remote model list so the user can pick a
// model other than the default. The result is dropped when the mode changed
// while the fetch was outstanding.
func (m *ModelSelector) LoadRemoteModels(ctx context.Context) ([]schema.ModelOption, error) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	models, err := m.lister.RemoteModels(ctx)
	if err != nil {
		m.log.Warn("models remote fetch failed", "err", err)
		return nil, err
	}
	options := make([]schema.ModelOption, 0, len(models))
	for _, model := range models {
		options = append(options, schema.ModelOption{ID: schema.RemoteModelID(model.Name), Label: model.Name})
	}
	m.mu.Lock()
	m.remoteOptions = options
	if gen != m.generation || m.mode != schema.ModeRemote {
		m.mu.Unlock()
		return options, nil
	}
	m.options = m.remoteOptionsLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.sink.OnModels(schema.ModelsEvent{Models: snap})
	return options, nil
}

// Select chooses a model from the current mode's options. Remote mode also
// accepts any remote model id.
func (m *ModelSelector) Select(model string) (schema.ModelsSnapshot, error) {
	id, err := schema.NormalizeModelID(model)
	if err != nil {
		return schema.ModelsSnapshot{}, err
	}
	idMode, _ := schema.SplitModelID(id)
	m.mu.Lock()
	if idMode != m.mode {
		m.mu.Unlock()
		return schema.ModelsSnapshot{}, schema.ErrInvalidModel
	}
	if m.mode == schema.ModeLocal {
		if m.loading || !hasOption(m.options, id) {
			m.mu.Unlock()
			return schema.ModelsSnapshot{}, schema.ErrInvalidModel
		}
	} else {
		m.remoteSelected = id
		m.options = m.remoteOptionsLocked()
	}
	m.selected = id
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.log.Info("models selected", "model", id)
	m.sink.OnModels(schema.ModelsEvent{Models: snap})
	return snap, nil
}

// Current returns the mode and the usable selected model. ok is false while
// loading or when nothing (or the sentinel) is selected.
func (m *ModelSelector) Current() (schema.Mode, schema.ModelID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	usable := !m.loading && m.selected != "" && m.selected != schema.NoLocalModel
	return m.mode, m.selected, usable
}

// Generation returns the live generation token.
func (m *ModelSelector) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Snapshot returns the selector state.
func (m *ModelSelector) Snapshot() schema.ModelsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *ModelSelector) remoteSelectedLocked() schema.ModelID {
	if m.remoteSelected != "" {
		return m.remoteSelected
	}
	return m.remoteDefault
}

func (m *ModelSelector) remoteOptionsLocked() []schema.ModelOption {
	selected := m.remoteSelectedLocked()
	out := []schema.ModelOption{{ID: m.remoteDefault, Label: labelFor(m.remoteDefault)}}
	if selected != m.remoteDefault {
		out = append(out, schema.ModelOption{ID: selected, Label: labelFor(selected)})
	}
	for _, opt := range m.remoteOptions {
		if !hasOption(out, opt.ID) {
			out = append(out, opt)
		}
	}
	return out
}

func (m *ModelSelector) snapshotLocked() schema.ModelsSnapshot {
	return schema.ModelsSnapshot{
		Mode:       m.mode,
		Loading:    m.loading,
		Options:    append([]schema.ModelOption(nil), m.options...),
		Selected:   m.selected,
		Generation: m.generation,
	}
}

func (m *ModelSelector) settled(gen uint64, applied bool) {
	if m.settleHook != nil {
		m.settleHook(gen, applied)
	}
}

func (m *ModelSelector) wait() {
	m.wg.Wait()
}

func labelFor(id schema.ModelID) string {
	_, name := schema.SplitModelID(id)
	return name
}

func hasOption(options []schema.ModelOption, id schema.ModelID) bool {
	for _, opt := range options {
		if opt.ID == id {
			return true
		}
	}
	return false
}
