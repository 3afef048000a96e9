package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
)

// Tool name constants.
const (
	ToolNameLog      = "verstree_log"
	ToolNameVersions = "verstree_versions"
	ToolNameDiff     = "verstree_diff"
)

// Defaults for an unset log location.
const (
	defaultBasename = "history"
	defaultCodec    = persist.CodecJSON
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyDir indicates the dir parameter is empty.
	ErrEmptyDir = errors.New("dir parameter is required and must not be empty")
	// ErrDirNotAbsolute indicates the dir is not an absolute path.
	ErrDirNotAbsolute = errors.New("dir must be an absolute path")
	// ErrLogNotFound indicates no version log exists at the location.
	ErrLogNotFound = errors.New("version log does not exist")
	// ErrEmptyKey indicates the key parameter is empty.
	ErrEmptyKey = errors.New("key parameter is required and must not be empty")
	// ErrUnknownKey indicates the key has no versions in the log.
	ErrUnknownKey = errors.New("no versions for key")
	// ErrEmptyVersions indicates a diff endpoint is missing.
	ErrEmptyVersions = errors.New("from and to parameters are required")
)

// Input types (auto-generate JSON schemas via struct tags).

// LogInput locates a saved version log.
type LogInput struct {
	Dir      string `json:"dir,omitempty"      jsonschema:"absolute path to the directory holding the version log"`
	Basename string `json:"basename,omitempty" jsonschema:"log file name without extension (default: history)"`
	Codec    string `json:"codec,omitempty"    jsonschema:"log encoding: json gob or lz4 (default: json)"`
}

// VersionsInput is the input schema for the verstree_versions tool.
type VersionsInput struct {
	Dir      string `json:"dir,omitempty"      jsonschema:"absolute path to the directory holding the version log"`
	Basename string `json:"basename,omitempty" jsonschema:"log file name without extension (default: history)"`
	Codec    string `json:"codec,omitempty"    jsonschema:"log encoding: json gob or lz4 (default: json)"`
	Key      string `json:"key"                jsonschema:"identity key such as c.0 or n.0"`
}

func (in VersionsInput) location() LogInput {
	return LogInput{Dir: in.Dir, Basename: in.Basename, Codec: in.Codec}
}

// DiffInput is the input schema for the verstree_diff tool.
type DiffInput struct {
	Dir      string `json:"dir,omitempty"      jsonschema:"absolute path to the directory holding the version log"`
	Basename string `json:"basename,omitempty" jsonschema:"log file name without extension (default: history)"`
	Codec    string `json:"codec,omitempty"    jsonschema:"log encoding: json gob or lz4 (default: json)"`
	From     string `json:"from"               jsonschema:"older version name such as c.0.0"`
	To       string `json:"to"                 jsonschema:"newer version name such as c.0.2"`
	Context  int    `json:"context,omitempty"  jsonschema:"unchanged lines around each hunk (default: 3)"`
}

func (in DiffInput) location() LogInput {
	return LogInput{Dir: in.Dir, Basename: in.Basename, Codec: in.Codec}
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// textResult builds a CallToolResult with plain text content.
func textResult(text string) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: text},
		},
	}, ToolOutput{Data: text}, nil
}

// withDefaults fills empty fields of in from def.
func withDefaults(in, def LogInput) LogInput {
	if in.Dir == "" {
		in.Dir = def.Dir
	}

	if in.Basename == "" {
		in.Basename = def.Basename
	}

	if in.Codec == "" {
		in.Codec = def.Codec
	}

	if in.Basename == "" {
		in.Basename = defaultBasename
	}

	if in.Codec == "" {
		in.Codec = defaultCodec
	}

	return in
}

// validateLogInput checks the log location constraints.
func validateLogInput(in LogInput) error {
	if in.Dir == "" {
		return ErrEmptyDir
	}

	if !filepath.IsAbs(in.Dir) {
		return ErrDirNotAbsolute
	}

	return nil
}

// LoadStore validates and restores the log at in.
func LoadStore(in LogInput) (*history.Store, error) {
	if err := validateLogInput(in); err != nil {
		return nil, err
	}

	codec, err := persist.CodecByName(in.Codec)
	if err != nil {
		return nil, err
	}

	p := persist.NewPersister[history.Log](in.Basename, codec)

	path := p.Path(in.Dir)
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrLogNotFound, path)
	}

	data, ok, err := p.PlainJSON(in.Dir)
	if err != nil {
		return nil, err
	}

	if ok {
		if err := history.ValidateLog(data); err != nil {
			return nil, err
		}
	}

	var store *history.Store

	err = p.Load(in.Dir, func(log *history.Log) error {
		restored, restoreErr := history.Restore(log)
		store = restored

		return restoreErr
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return store, nil
}
