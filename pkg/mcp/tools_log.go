package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/vdiff"
)

// CheckpointRow is one checkpoint of the verstree_log result.
type CheckpointRow struct {
	ID      int                  `json:"id"`
	Kind    string               `json:"kind"`
	Time    time.Time            `json:"time"`
	Cells   []history.CellChange `json:"cells,omitempty"`
	Created []string             `json:"created"`
}

// VersionRow is one version of the verstree_versions result.
type VersionRow struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Checkpoint int    `json:"checkpoint"`
	Text       string `json:"text"`
}

// handleLog processes verstree_log tool calls.
func (s *Server) handleLog(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input LogInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	store, err := LoadStore(withDefaults(input, s.defaults))
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(checkpointRows(store))
}

func checkpointRows(store *history.Store) []CheckpointRow {
	checkpoints := store.Checkpoints()
	rows := make([]CheckpointRow, 0, len(checkpoints))

	for _, cp := range checkpoints {
		rows = append(rows, CheckpointRow{
			ID:      cp.ID,
			Kind:    string(cp.Kind),
			Time:    cp.Time,
			Cells:   cp.Cells,
			Created: store.CreatedIn(cp.ID),
		})
	}

	return rows
}

// handleVersions processes verstree_versions tool calls.
func (s *Server) handleVersions(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input VersionsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Key == "" {
		return errorResult(ErrEmptyKey)
	}

	store, err := LoadStore(withDefaults(input.location(), s.defaults))
	if err != nil {
		return errorResult(err)
	}

	versions := store.VersionsOf(input.Key)
	if len(versions) == 0 {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownKey, input.Key))
	}

	rows := make([]VersionRow, 0, len(versions))

	for _, n := range versions {
		name := nodey.Name(n)
		rows = append(rows, VersionRow{
			Name:       name,
			Kind:       n.Kind().String(),
			Checkpoint: n.Common().Created,
			Text:       store.Text(name),
		})
	}

	return jsonResult(rows)
}

// handleDiff processes verstree_diff tool calls.
func (s *Server) handleDiff(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input DiffInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.From == "" || input.To == "" {
		return errorResult(ErrEmptyVersions)
	}

	store, err := LoadStore(withDefaults(input.location(), s.defaults))
	if err != nil {
		return errorResult(err)
	}

	diff, err := vdiff.Versions(store, input.From, input.To, input.Context)
	if err != nil {
		return errorResult(err)
	}

	if diff == "" {
		return textResult(fmt.Sprintf("%s and %s render the same text", input.From, input.To))
	}

	return textResult(diff)
}
