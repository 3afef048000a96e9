package nodey

import (
	"errors"
	"fmt"
)

// ErrEmptyEnvelope is returned when an envelope carries no variant.
var ErrEmptyEnvelope = errors.New("nodey: empty envelope")

// Envelope is the serialisable form of a Nodey. Exactly one field is set.
// It works with both encoding/json and encoding/gob without registering
// interface implementations.
type Envelope struct {
	Code     *Code     `json:"code,omitempty"`
	CodeCell *CodeCell `json:"codecell,omitempty"`
	Markdown *Markdown `json:"markdown,omitempty"`
	Output   *Output   `json:"output,omitempty"`
	Notebook *Notebook `json:"notebook,omitempty"`
}

// Wrap boxes n into an envelope. The envelope shares n's memory; clone first
// if n will be mutated later.
func Wrap(n Nodey) Envelope {
	switch v := n.(type) {
	case *Code:
		return Envelope{Code: v}
	case *CodeCell:
		return Envelope{CodeCell: v}
	case *Markdown:
		return Envelope{Markdown: v}
	case *Output:
		return Envelope{Output: v}
	case *Notebook:
		return Envelope{Notebook: v}
	default:
		panic(fmt.Sprintf("nodey: unknown variant %T", n))
	}
}

// Unwrap returns the boxed node.
func (e Envelope) Unwrap() (Nodey, error) {
	switch {
	case e.Code != nil:
		return e.Code, nil
	case e.CodeCell != nil:
		return e.CodeCell, nil
	case e.Markdown != nil:
		return e.Markdown, nil
	case e.Output != nil:
		return e.Output, nil
	case e.Notebook != nil:
		return e.Notebook, nil
	default:
		return nil, ErrEmptyEnvelope
	}
}
