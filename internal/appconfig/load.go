package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/nexus/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("models.remote_default", cfg.Models.RemoteDefault)
	v.SetDefault("ollama.base_url", cfg.Ollama.BaseURL)
	v.SetDefault("openrouter.base_url", cfg.OpenRouter.BaseURL)
	v.SetDefault("openrouter.api_key", cfg.OpenRouter.APIKey)
	v.SetDefault("openrouter.fallback_models", cfg.OpenRouter.FallbackModels)
	v.SetDefault("openrouter.requests_per_minute", cfg.OpenRouter.RequestsPerMinute)
	v.SetDefault("surface.headless", cfg.Surface.Headless)
	v.SetDefault("surface.chrome_path", cfg.Surface.ChromePath)
	v.SetDefault("surface.no_sandbox", cfg.Surface.NoSandbox)
	v.SetDefault("surface.window_width", cfg.Surface.WindowWidth)
	v.SetDefault("surface.window_height", cfg.Surface.WindowHeight)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("timing.layout_debounce_ms", cfg.Timing.LayoutDebounceMS)
	v.SetDefault("timing.metadata_retry_ms", cfg.Timing.MetadataRetryMS)
	v.SetDefault("timing.navigation_refresh_ms", cfg.Timing.NavigationRefreshMS)
	v.SetDefault("timing.probe_attempts", cfg.Timing.ProbeAttempts)
	v.SetDefault("timing.probe_interval_ms", cfg.Timing.ProbeIntervalMS)
	v.SetDefault("timing.shortcut_autosave_ms", cfg.Timing.ShortcutAutosaveMS)
	v.SetDefault("timing.transcript_max_turns", cfg.Timing.TranscriptMaxTurns)
	v.SetDefault("timing.fetch_timeout_seconds", cfg.Timing.FetchTimeoutSeconds)
	v.SetDefault("timing.surface_timeout_seconds", cfg.Timing.SurfaceTimeoutSeconds)
	v.SetDefault("pagecache.ttl_seconds", cfg.PageCache.TTLSeconds)
	v.SetDefault("pagecache.max_entries", cfg.PageCache.MaxEntries)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if cfg.OpenRouter.APIKey == "" {
		cfg.OpenRouter.APIKey = os.Getenv(APIKeyEnv)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	mode, _ := schema.NormalizeMode(cfg.Mode)
	cfg.Mode = string(mode)
	return cfg, nil
}

func validate(cfg Config) error {
	if _, err := schema.NormalizeMode(cfg.Mode); err != nil {
		return fmt.Errorf("mode must be local or online, got %q", cfg.Mode)
	}
	if cfg.Models.RemoteDefault != "" {
		if _, err := schema.NormalizeModelID(cfg.Models.RemoteDefault); err != nil {
			return fmt.Errorf("models.remote_default: %w", err)
		}
	}
	for _, key := range []struct {
		name  string
		value string
	}{
		{"ollama.base_url", cfg.Ollama.BaseURL},
		{"openrouter.base_url", cfg.OpenRouter.BaseURL},
	} {
		value := strings.TrimSpace(key.value)
		if value == "" {
			return fmt.Errorf("%s is required", key.name)
		}
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%s must include scheme and host (e.g. http://localhost:11434)", key.name)
		}
	}
	if cfg.OpenRouter.RequestsPerMinute < 0 {
		return fmt.Errorf("openrouter.requests_per_minute must not be negative")
	}
	if cfg.PageCache.MaxEntries < 0 || cfg.PageCache.TTLSeconds < 0 {
		return fmt.Errorf("pagecache limits must not be negative")
	}
	basePath := strings.TrimSpace(cfg.HTTP.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.DatabasePath = expandEnv(cfg.DatabasePath)
	cfg.OpenRouter.APIKey = expandEnv(cfg.OpenRouter.APIKey)
	cfg.Surface.ChromePath = expandEnv(cfg.Surface.ChromePath)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
