package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/config"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "verstree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultDir, cfg.History.Dir)
	assert.Equal(t, config.DefaultBasename, cfg.History.Basename)
	assert.Equal(t, persist.CodecJSON, cfg.History.Codec)
	assert.True(t, cfg.History.ValidateOnLoad)
	assert.Equal(t, config.DefaultQueueSize, cfg.Parser.QueueSize)
	assert.Empty(t, cfg.Parser.Language)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, config.DefaultDebounce, cfg.Watch.Debounce)
	assert.IsType(t, &persist.JSONCodec{}, cfg.Codec())
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
history:
  dir: /tmp/nb
  codec: lz4
  validate_on_load: false
parser:
  language: python
  queue_size: 8
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: localhost:4317
  otlp_headers: "team=nb, env=dev"
  sample_ratio: 0.25
watch:
  debounce: 1s
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/nb", cfg.History.Dir)
	assert.False(t, cfg.History.ValidateOnLoad)
	assert.IsType(t, &persist.LZ4Codec{}, cfg.Codec())
	assert.Equal(t, "python", cfg.Parser.Language)
	assert.Equal(t, 8, cfg.Parser.QueueSize)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)

	obs := cfg.Observability("1.2.3", observability.ModeWatch)
	assert.Equal(t, "1.2.3", obs.ServiceVersion)
	assert.Equal(t, observability.ModeWatch, obs.Mode)
	assert.Equal(t, slog.LevelDebug, obs.LogLevel)
	assert.True(t, obs.LogJSON)
	assert.Equal(t, "localhost:4317", obs.OTLPEndpoint)
	assert.Equal(t, map[string]string{"team": "nb", "env": "dev"}, obs.OTLPHeaders)
	assert.InDelta(t, 0.25, obs.SampleRatio, 1e-9)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("VERSTREE_HISTORY_CODEC", "gob")
	t.Setenv("VERSTREE_PARSER_QUEUE_SIZE", "3")
	t.Setenv("VERSTREE_WATCH_DEBOUNCE", "50ms")

	cfg, err := config.LoadConfig(writeConfig(t, "history:\n  codec: json\n"))
	require.NoError(t, err)

	assert.Equal(t, "gob", cfg.History.Codec)
	assert.Equal(t, 3, cfg.Parser.QueueSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"codec", "history:\n  codec: xml\n", config.ErrInvalidCodec},
		{"basename", "history:\n  basename: \" \"\n", config.ErrInvalidBasename},
		{"queue", "parser:\n  queue_size: 0\n", config.ErrInvalidQueueSize},
		{"format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"ratio", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
		{"debounce", "watch:\n  debounce: -1s\n", config.ErrInvalidDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "history: [\n"))
	require.Error(t, err)

	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
