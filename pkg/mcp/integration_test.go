package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/mcp"
)

// connect serves srv over in-memory transports and returns the client side.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	client, server := mcpsdk.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	done := make(chan error, 1)

	go func() { done <- srv.RunWithTransport(ctx, server) }()

	cs, err := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "verstree-test", Version: "0"}, nil).
		Connect(ctx, client, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cs.Close()

		cancel()
		<-done
	})

	return cs
}

func call(t *testing.T, cs *mcpsdk.ClientSession, tool string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := cs.CallTool(t.Context(), &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)

	return result
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)

	content, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return content.Text
}

func TestServer_ListsHistoryTools(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})

	tools, err := connect(t, srv).ListTools(t.Context(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(tools.Tools))

	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
		assert.NotNil(t, tool.InputSchema, tool.Name)
	}

	assert.ElementsMatch(t, srv.ListToolNames(), names)
	assert.Equal(t, []string{mcp.ToolNameDiff, mcp.ToolNameLog, mcp.ToolNameVersions}, srv.ListToolNames())
}

func TestServer_LogListsCheckpoints(t *testing.T) {
	t.Parallel()

	cs := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := call(t, cs, mcp.ToolNameLog, map[string]any{"dir": mcp.WriteTestLog(t)})
	require.False(t, result.IsError, text(t, result))

	var rows []mcp.CheckpointRow

	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &rows))
	require.Len(t, rows, 3)

	kinds := []string{rows[0].Kind, rows[1].Kind, rows[2].Kind}
	assert.Equal(t, []string{"seed", "save", "run"}, kinds)
	assert.NotEmpty(t, rows[0].Created)
	assert.NotEmpty(t, rows[1].Cells)
}

func TestServer_DefaultsLocateTheLog(t *testing.T) {
	t.Parallel()

	dir := mcp.WriteTestLog(t)
	cs := connect(t, mcp.NewServer(mcp.ServerDeps{Defaults: mcp.LogInput{Dir: dir}}))

	result := call(t, cs, mcp.ToolNameVersions, map[string]any{"key": "c.0"})
	require.False(t, result.IsError, text(t, result))

	var rows []mcp.VersionRow

	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "c.0.0", rows[0].Name)
	assert.Equal(t, "c.0.2", rows[2].Name)

	result = call(t, cs, mcp.ToolNameDiff, map[string]any{"from": "c.0.0", "to": "c.0.1"})
	require.False(t, result.IsError, text(t, result))
	assert.Contains(t, text(t, result), "-x = 1")
	assert.Contains(t, text(t, result), "+x = 2")
}

func TestServer_RejectsRelativeDir(t *testing.T) {
	t.Parallel()

	cs := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := call(t, cs, mcp.ToolNameVersions, map[string]any{"dir": "relative", "key": "c.0"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), mcp.ErrDirNotAbsolute.Error())
}
