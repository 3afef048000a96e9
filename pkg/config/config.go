// Package config loads verstree configuration from an optional YAML file and
// VERSTREE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
)

// Sentinel validation errors.
var (
	ErrInvalidCodec       = errors.New("unknown history codec")
	ErrInvalidBasename    = errors.New("history basename must not be empty")
	ErrInvalidQueueSize   = errors.New("parser queue size must be positive")
	ErrInvalidLogFormat   = errors.New("log format must be json or text")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidDebounce    = errors.New("watch debounce must not be negative")
)

// Default configuration values.
const (
	DefaultDir       = ".verstree"
	DefaultBasename  = "history"
	DefaultCodec     = persist.CodecJSON
	DefaultQueueSize = 64
	DefaultDebounce  = 200 * time.Millisecond
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VERSTREE"

// Config holds all verstree configuration.
type Config struct {
	History   HistoryConfig   `mapstructure:"history"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// HistoryConfig controls where and how the version log is stored.
type HistoryConfig struct {
	Dir            string `mapstructure:"dir"`
	Basename       string `mapstructure:"basename"`
	Codec          string `mapstructure:"codec"`
	ValidateOnLoad bool   `mapstructure:"validate_on_load"`
}

// ParserConfig selects the grammar and sizes the parse queue.
type ParserConfig struct {
	// Language overrides detection from the file name.
	Language  string `mapstructure:"language"`
	QueueSize int    `mapstructure:"queue_size"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	// TraceVerbose keeps the per-node reconciliation spans.
	TraceVerbose bool `mapstructure:"trace_verbose"`
	// MetricsAddr serves Prometheus metrics in watch mode when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
	Environment string `mapstructure:"environment"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoadConfig loads configuration from file and environment variables. An
// empty path looks for verstree.yaml in the working directory and in
// .verstree/.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("verstree")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./" + DefaultDir)
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("history.dir", DefaultDir)
	viperCfg.SetDefault("history.basename", DefaultBasename)
	viperCfg.SetDefault("history.codec", DefaultCodec)
	viperCfg.SetDefault("history.validate_on_load", true)

	viperCfg.SetDefault("parser.language", "")
	viperCfg.SetDefault("parser.queue_size", DefaultQueueSize)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.trace_verbose", false)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.environment", "")

	viperCfg.SetDefault("watch.debounce", DefaultDebounce.String())
}

func validateConfig(config *Config) error {
	if _, err := persist.CodecByName(config.History.Codec); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCodec, config.History.Codec)
	}

	if strings.TrimSpace(config.History.Basename) == "" {
		return ErrInvalidBasename
	}

	if config.Parser.QueueSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, config.Parser.QueueSize)
	}

	switch config.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, config.Watch.Debounce)
	}

	return nil
}

// Codec returns the configured history codec.
func (c *Config) Codec() persist.Codec {
	codec, err := persist.CodecByName(c.History.Codec)
	if err != nil {
		// validateConfig rejected this already.
		panic(err)
	}

	return codec
}

// Observability maps the logging and telemetry sections onto an
// observability configuration for the given mode.
func (c *Config) Observability(version string, mode observability.AppMode) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.Mode = mode
	obs.Environment = c.Telemetry.Environment
	obs.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = c.Telemetry.OTLPInsecure
	obs.SampleRatio = c.Telemetry.SampleRatio
	obs.TraceVerbose = c.Telemetry.TraceVerbose
	obs.LogLevel = observability.ParseLevel(c.Logging.Level)
	obs.LogJSON = c.Logging.Format == "json"

	return obs
}
