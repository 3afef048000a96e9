package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
	"github.com/Sumatoshi-tech/verstree/pkg/session"
)

// writeTestLog saves a log with three checkpoints: the seed of "x = 1",
// a save after editing it to "x = 2", and a run that records an output.
func writeTestLog(tb testing.TB) string {
	tb.Helper()

	dir := tb.TempDir()
	ctx := context.Background()

	p, err := parser.NewTreeSitter("python")
	require.NoError(tb, err)

	s, err := session.New(ctx, p, "x = 1",
		session.WithPersistence(dir, session.Persister(defaultBasename, persist.NewJSONCodec()), false))
	require.NoError(tb, err)

	defer s.Close()

	_, err = s.Replace(ctx, nodey.Pos{Line: 0, Ch: 4}, nodey.Pos{Line: 0, Ch: 5}, "2")
	require.NoError(tb, err)

	_, err = s.Checkpoint(ctx, history.CheckpointSave)
	require.NoError(tb, err)

	_, err = s.Run(ctx, json.RawMessage(`{"text": "2"}`))
	require.NoError(tb, err)

	require.NoError(tb, s.Save())

	return dir
}

func resultText(tb testing.TB, result *mcpsdk.CallToolResult) string {
	tb.Helper()

	require.NotNil(tb, result)
	require.NotEmpty(tb, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(tb, ok)

	return text.Text
}

func TestHandleLog_BadLocation(t *testing.T) {
	t.Parallel()

	srv := NewServer(ServerDeps{})

	notALog := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notALog, "history.json"), []byte(`{"versions": 3}`), 0o600))

	tests := []struct {
		name  string
		input LogInput
		want  string
	}{
		{"empty dir", LogInput{}, "dir parameter is required"},
		{"relative dir", LogInput{Dir: "relative/path"}, "absolute path"},
		{"missing log", LogInput{Dir: t.TempDir()}, "does not exist"},
		{"unknown codec", LogInput{Dir: t.TempDir(), Codec: "xml"}, "unknown codec"},
		{"invalid log", LogInput{Dir: notALog}, "does not match schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, _, err := srv.handleLog(context.Background(), &mcpsdk.CallToolRequest{}, tt.input)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleLog(t *testing.T) {
	t.Parallel()

	dir := writeTestLog(t)
	srv := NewServer(ServerDeps{})

	result, out, err := srv.handleLog(context.Background(), &mcpsdk.CallToolRequest{}, LogInput{Dir: dir})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	rows, ok := out.Data.([]CheckpointRow)
	require.True(t, ok)
	require.Len(t, rows, 3)

	assert.Equal(t, "seed", rows[0].Kind)
	assert.Equal(t, "save", rows[1].Kind)
	assert.Equal(t, "run", rows[2].Kind)
	assert.Contains(t, rows[0].Created, "c.0.0")
	assert.Contains(t, rows[1].Created, "c.0.1")
	assert.Contains(t, rows[2].Created, "o.0.0")
	assert.Contains(t, rows[2].Cells, history.CellChange{Name: "c.0.2", Change: history.ChangeChanged})
	assert.Contains(t, resultText(t, result), `"kind": "run"`)
}

func TestHandleVersions(t *testing.T) {
	t.Parallel()

	dir := writeTestLog(t)
	srv := NewServer(ServerDeps{Defaults: LogInput{Dir: dir}})

	result, out, err := srv.handleVersions(context.Background(), &mcpsdk.CallToolRequest{}, VersionsInput{Key: "c.0"})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	rows, ok := out.Data.([]VersionRow)
	require.True(t, ok)
	require.Len(t, rows, 3)
	assert.Equal(t, VersionRow{Name: "c.0.0", Kind: "codecell", Checkpoint: 0, Text: "x = 1"}, rows[0])
	assert.Equal(t, "x = 2", rows[1].Text)
	assert.Equal(t, 2, rows[2].Checkpoint)

	result, _, err = srv.handleVersions(context.Background(), &mcpsdk.CallToolRequest{}, VersionsInput{Key: "o.0"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name": "o.0.0", "kind": "output", "checkpoint": 2, "text": "{\"text\":\"2\"}"}]`,
		resultText(t, result))

	for _, key := range []string{"", "c.99"} {
		result, _, err = srv.handleVersions(context.Background(), &mcpsdk.CallToolRequest{}, VersionsInput{Key: key})
		require.NoError(t, err)
		assert.True(t, result.IsError, key)
	}
}

func TestHandleDiff(t *testing.T) {
	t.Parallel()

	dir := writeTestLog(t)
	srv := NewServer(ServerDeps{})

	result, _, err := srv.handleDiff(context.Background(), &mcpsdk.CallToolRequest{},
		DiffInput{Dir: dir, From: "c.0.0", To: "c.0.1"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	diff := resultText(t, result)
	assert.Contains(t, diff, "--- c.0.0")
	assert.Contains(t, diff, "-x = 1")
	assert.Contains(t, diff, "+x = 2")

	result, _, err = srv.handleDiff(context.Background(), &mcpsdk.CallToolRequest{},
		DiffInput{Dir: dir, From: "c.0.1", To: "c.0.2"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "render the same text")

	result, _, err = srv.handleDiff(context.Background(), &mcpsdk.CallToolRequest{},
		DiffInput{Dir: dir, From: "c.0.0", To: "c.0.9"})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, _, err = srv.handleDiff(context.Background(), &mcpsdk.CallToolRequest{}, DiffInput{Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), ErrEmptyVersions.Error())
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	got := withDefaults(LogInput{Codec: "gob"}, LogInput{Dir: "/var/lib/verstree", Codec: "lz4"})
	assert.Equal(t, LogInput{Dir: "/var/lib/verstree", Basename: "history", Codec: "gob"}, got)
}
