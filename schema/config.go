package schema

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ShellConfig defines defaults and timings for the coordination core.
type ShellConfig struct {
	StateDir           string
	DefaultMode        Mode
	RemoteDefaultModel ModelID
	// LayoutDebounce is the quiet period before geometry is pushed to the surface.
	LayoutDebounce time.Duration
	// MetadataRetryDelay is the delay before page metadata is fetched a second time.
	MetadataRetryDelay time.Duration
	// NavigationRefreshDelay is the delay before metadata is refreshed after a navigation event.
	NavigationRefreshDelay time.Duration
	ProbeAttempts          int
	ProbeInterval          time.Duration
	ShortcutAutosave       time.Duration
	TranscriptMaxTurns     int
}

// Defaults for ShellConfig.
const (
	DefaultRemoteModel            ModelID = "openrouter:google/gemini-2.0-flash-exp:free"
	DefaultLayoutDebounce                 = 50 * time.Millisecond
	DefaultMetadataRetryDelay             = 3 * time.Second
	DefaultNavigationRefreshDelay         = time.Second
	DefaultProbeAttempts                  = 20
	DefaultProbeInterval                  = 500 * time.Millisecond
	DefaultShortcutAutosave               = 400 * time.Millisecond
	DefaultTranscriptMaxTurns             = 500
)

// NormalizeShellConfig applies defaults and validates the config.
func NormalizeShellConfig(cfg ShellConfig) (ShellConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ShellConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".nexus", "state")
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeRemote
	}
	if _, err := NormalizeMode(string(cfg.DefaultMode)); err != nil {
		return ShellConfig{}, err
	}
	if cfg.RemoteDefaultModel == "" {
		cfg.RemoteDefaultModel = DefaultRemoteModel
	}
	if cfg.LayoutDebounce <= 0 {
		cfg.LayoutDebounce = DefaultLayoutDebounce
	}
	if cfg.MetadataRetryDelay <= 0 {
		cfg.MetadataRetryDelay = DefaultMetadataRetryDelay
	}
	if cfg.NavigationRefreshDelay <= 0 {
		cfg.NavigationRefreshDelay = DefaultNavigationRefreshDelay
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = DefaultProbeAttempts
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ShortcutAutosave <= 0 {
		cfg.ShortcutAutosave = DefaultShortcutAutosave
	}
	if cfg.TranscriptMaxTurns <= 0 {
		cfg.TranscriptMaxTurns = DefaultTranscriptMaxTurns
	}
	if cfg.ProbeAttempts > 10000 {
		return ShellConfig{}, errors.New("probe attempts out of range")
	}
	return cfg, nil
}
