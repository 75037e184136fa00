package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

const prefsFile = "preferences.json"

// Preferences captures local shell preferences.
type Preferences struct {
	Mode schema.Mode `json:"ai_mode,omitempty"`
	// LiveDrag selects the drag-with-preview reorder strategy.
	LiveDrag *bool `json:"live_drag,omitempty"`
}

// LiveDragEnabled reports the live drag preference. It is on unless
// explicitly disabled.
func (p Preferences) LiveDragEnabled() bool {
	return p.LiveDrag == nil || *p.LiveDrag
}

// Store persists preferences to disk.
type Store struct {
	dir string
	log pslog.Logger
	mu  sync.Mutex
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads preferences from disk.
func (s *Store) Load() (Preferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes preferences to disk.
func (s *Store) Save(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(prefs)
}

// LoadMode returns the stored answer-source mode.
func (s *Store) LoadMode() (schema.Mode, bool, error) {
	prefs, ok, err := s.Load()
	if err != nil || !ok || prefs.Mode == "" {
		return "", false, err
	}
	return prefs.Mode, true, nil
}

// SaveMode stores the answer-source mode, keeping other preferences.
func (s *Store) SaveMode(mode schema.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, _, err := s.loadLocked()
	if err != nil {
		prefs = Preferences{}
	}
	prefs.Mode = mode
	return s.saveLocked(prefs)
}

func (s *Store) loadLocked() (Preferences, bool, error) {
	path := s.path()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("prefs load miss")
			}
			return Preferences{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("prefs load failed", "err", err)
		}
		return Preferences{}, false, err
	}
	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		if s.log != nil {
			s.log.Warn("prefs load failed", "err", err)
		}
		return Preferences{}, false, err
	}
	if s.log != nil {
		s.log.Debug("prefs load ok", "mode", prefs.Mode)
	}
	return prefs, true, nil
}

func (s *Store) saveLocked(prefs Preferences) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return s.fail(err)
	}
	if err := writeFileAtomic(s.path(), data); err != nil {
		return s.fail(err)
	}
	if s.log != nil {
		s.log.Trace("prefs save ok", "mode", prefs.Mode)
	}
	return nil
}

func (s *Store) fail(err error) error {
	if s.log != nil {
		s.log.Warn("prefs save failed", "err", err)
	}
	return err
}

func (s *Store) path() string {
	return filepath.Join(s.dir, prefsFile)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "prefs-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
