package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/nexus/internal/backend/ollama"
	"pkt.systems/nexus/internal/backend/openrouter"
	"pkt.systems/nexus/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	DatabasePath  string           `mapstructure:"database_path" yaml:"database_path"`
	Mode          string           `mapstructure:"mode" yaml:"mode"`
	Models        ModelsConfig     `mapstructure:"models" yaml:"models"`
	Ollama        OllamaConfig     `mapstructure:"ollama" yaml:"ollama"`
	OpenRouter    OpenRouterConfig `mapstructure:"openrouter" yaml:"openrouter"`
	Surface       SurfaceConfig    `mapstructure:"surface" yaml:"surface"`
	HTTP          HTTPConfig       `mapstructure:"http" yaml:"http"`
	Timing        TimingConfig     `mapstructure:"timing" yaml:"timing"`
	PageCache     PageCacheConfig  `mapstructure:"pagecache" yaml:"pagecache"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// APIKeyEnv is consulted when openrouter.api_key is empty.
const APIKeyEnv = "OPENROUTER_API_KEY"

// ModelsConfig controls the default remote model.
type ModelsConfig struct {
	RemoteDefault string `mapstructure:"remote_default" yaml:"remote_default"`
}

// OllamaConfig configures the local model server.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// OpenRouterConfig configures the remote model API.
type OpenRouterConfig struct {
	BaseURL           string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string   `mapstructure:"api_key" yaml:"api_key"`
	FallbackModels    []string `mapstructure:"fallback_models" yaml:"fallback_models"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// SurfaceConfig configures the browser that renders pages.
type SurfaceConfig struct {
	Headless     bool   `mapstructure:"headless" yaml:"headless"`
	ChromePath   string `mapstructure:"chrome_path" yaml:"chrome_path"`
	NoSandbox    bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	WindowWidth  int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int    `mapstructure:"window_height" yaml:"window_height"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// TimingConfig tunes the coordination delays, in milliseconds unless noted.
type TimingConfig struct {
	LayoutDebounceMS      int `mapstructure:"layout_debounce_ms" yaml:"layout_debounce_ms"`
	MetadataRetryMS       int `mapstructure:"metadata_retry_ms" yaml:"metadata_retry_ms"`
	NavigationRefreshMS   int `mapstructure:"navigation_refresh_ms" yaml:"navigation_refresh_ms"`
	ProbeAttempts         int `mapstructure:"probe_attempts" yaml:"probe_attempts"`
	ProbeIntervalMS       int `mapstructure:"probe_interval_ms" yaml:"probe_interval_ms"`
	ShortcutAutosaveMS    int `mapstructure:"shortcut_autosave_ms" yaml:"shortcut_autosave_ms"`
	TranscriptMaxTurns    int `mapstructure:"transcript_max_turns" yaml:"transcript_max_turns"`
	FetchTimeoutSeconds   int `mapstructure:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	SurfaceTimeoutSeconds int `mapstructure:"surface_timeout_seconds" yaml:"surface_timeout_seconds"`
}

// PageCacheConfig bounds the extracted page text cache.
type PageCacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	File               string `mapstructure:"file" yaml:"file"`
	MaxSizeMB          int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups         int    `mapstructure:"max_backups" yaml:"max_backups"`
	DisableAuditTrails bool   `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	root := filepath.Join(home, ".nexus")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(root, "state"),
		DatabasePath:  filepath.Join(root, "state", "nexus.db"),
		Mode:          string(schema.ModeRemote),
		Models: ModelsConfig{
			RemoteDefault: string(schema.DefaultRemoteModel),
		},
		Ollama: OllamaConfig{
			BaseURL: ollama.DefaultBaseURL,
		},
		OpenRouter: OpenRouterConfig{
			BaseURL:           openrouter.DefaultBaseURL,
			APIKey:            "",
			FallbackModels:    append([]string(nil), openrouter.DefaultFallbackModels...),
			RequestsPerMinute: 20,
		},
		Surface: SurfaceConfig{
			Headless:     false,
			WindowWidth:  1280,
			WindowHeight: 800,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:27490",
		},
		Timing: TimingConfig{
			LayoutDebounceMS:      int(schema.DefaultLayoutDebounce / time.Millisecond),
			MetadataRetryMS:       int(schema.DefaultMetadataRetryDelay / time.Millisecond),
			NavigationRefreshMS:   int(schema.DefaultNavigationRefreshDelay / time.Millisecond),
			ProbeAttempts:         schema.DefaultProbeAttempts,
			ProbeIntervalMS:       int(schema.DefaultProbeInterval / time.Millisecond),
			ShortcutAutosaveMS:    int(schema.DefaultShortcutAutosave / time.Millisecond),
			TranscriptMaxTurns:    schema.DefaultTranscriptMaxTurns,
			FetchTimeoutSeconds:   10,
			SurfaceTimeoutSeconds: 15,
		},
		PageCache: PageCacheConfig{
			TTLSeconds: 300,
			MaxEntries: 16,
		},
		Logging: LoggingConfig{
			File:       filepath.Join(root, "logs", "nexus.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nexus", "config.yaml"), nil
}

// Shell maps the config onto the coordination core settings.
func (c Config) Shell() schema.ShellConfig {
	return schema.ShellConfig{
		StateDir:               c.StateDir,
		DefaultMode:            schema.Mode(c.Mode),
		RemoteDefaultModel:     schema.ModelID(c.Models.RemoteDefault),
		LayoutDebounce:         millis(c.Timing.LayoutDebounceMS),
		MetadataRetryDelay:     millis(c.Timing.MetadataRetryMS),
		NavigationRefreshDelay: millis(c.Timing.NavigationRefreshMS),
		ProbeAttempts:          c.Timing.ProbeAttempts,
		ProbeInterval:          millis(c.Timing.ProbeIntervalMS),
		ShortcutAutosave:       millis(c.Timing.ShortcutAutosaveMS),
		TranscriptMaxTurns:     c.Timing.TranscriptMaxTurns,
	}
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
