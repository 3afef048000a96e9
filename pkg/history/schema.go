package history

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidLog is returned when a JSON log does not satisfy the log schema.
var ErrInvalidLog = errors.New("version log does not match schema")

//go:embed schema/log.schema.json
var logSchema []byte

// LogSchema returns the JSON schema of the version log.
func LogSchema() []byte { return logSchema }

// ValidateLog checks a JSON encoded log against the embedded schema. The
// returned error lists every violation.
func ValidateLog(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(logSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLog, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.Field()+": "+verr.Description())
	}

	return fmt.Errorf("%w: %s", ErrInvalidLog, strings.Join(msgs, "; "))
}
