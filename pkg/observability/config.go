// Package observability wires OpenTelemetry tracing and metrics and the
// structured logger shared by every verstree mode (CLI, LSP, MCP, watch).
package observability

import "log/slog"

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot CLI command.
	ModeCLI AppMode = "cli"
	// ModeLSP is the language server over stdio.
	ModeLSP AppMode = "lsp"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
	// ModeWatch is the long-running file watcher.
	ModeWatch AppMode = "watch"
)

const (
	defaultServiceName        = "verstree"
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment is the deployment environment, e.g. "dev".
	Environment string
	Mode        AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export
	// and every provider becomes a no-op.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio is the root sampling ratio. Zero samples everything.
	SampleRatio float64
	// TraceVerbose keeps per-node reconciliation spans.
	TraceVerbose bool

	LogLevel slog.Level
	LogJSON  bool

	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config usable without any setup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(s))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}
