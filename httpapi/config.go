package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr     string
	BasePath string
	// HistorySize bounds the events kept for Last-Event-ID replay.
	HistorySize int
	// DisableAuditLogging silences per-command audit lines.
	DisableAuditLogging bool
}
