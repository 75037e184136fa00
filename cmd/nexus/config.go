package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"pkt.systems/nexus"
	"pkt.systems/nexus/httpapi"
	"pkt.systems/nexus/internal/appconfig"
	"pkt.systems/nexus/internal/backend/openrouter"
	"pkt.systems/nexus/internal/bridge"
	"pkt.systems/nexus/internal/surface"
	"pkt.systems/pslog"
)

func serverConfig(cfg appconfig.Config) nexus.ServerConfig {
	return nexus.ServerConfig{
		Shell:  cfg.Shell(),
		Bridge: bridgeConfig(cfg),
		HTTP: httpapi.Config{
			Addr:                cfg.HTTP.Addr,
			BasePath:            cfg.HTTP.BasePath,
			HistorySize:         1000,
			DisableAuditLogging: cfg.Logging.DisableAuditTrails,
		},
		HubHistory: 1000,
	}
}

func bridgeConfig(cfg appconfig.Config) bridge.Config {
	return bridge.Config{
		DatabasePath: cfg.DatabasePath,
		Surface: surface.Config{
			Headless:     cfg.Surface.Headless,
			ChromePath:   cfg.Surface.ChromePath,
			NoSandbox:    cfg.Surface.NoSandbox,
			WindowWidth:  cfg.Surface.WindowWidth,
			WindowHeight: cfg.Surface.WindowHeight,
			OpTimeout:    time.Duration(cfg.Timing.SurfaceTimeoutSeconds) * time.Second,
		},
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenRouter: openrouter.Config{
			BaseURL:           cfg.OpenRouter.BaseURL,
			APIKey:            cfg.OpenRouter.APIKey,
			FallbackModels:    cfg.OpenRouter.FallbackModels,
			RequestsPerMinute: cfg.OpenRouter.RequestsPerMinute,
		},
		PageCacheTTL:     time.Duration(cfg.PageCache.TTLSeconds) * time.Second,
		PageCacheEntries: cfg.PageCache.MaxEntries,
		FetchTimeout:     time.Duration(cfg.Timing.FetchTimeoutSeconds) * time.Second,
	}
}

// fileLogger builds a logger that writes to the rotated log file, and to
// console as well when it is non-nil. The returned func closes the file.
func fileLogger(cfg appconfig.LoggingConfig, console io.Writer) (pslog.Logger, func(), error) {
	path := strings.TrimSpace(cfg.File)
	if path == "" {
		if console == nil {
			console = io.Discard
		}
		return pslog.LoggerFromEnv(
			pslog.WithEnvWriter(console),
			pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
		), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	var w io.Writer = rotator
	if console != nil {
		w = io.MultiWriter(console, rotator)
	}
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(w),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, NoColor: true}),
	)
	return logger, func() { _ = rotator.Close() }, nil
}
