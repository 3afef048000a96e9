package resolve

import (
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// Request asks the parser for a fresh tree of Text. Positions in the
// returned tree are relative to the start of Target. Anchor records that
// start when the request was issued; edits before Target may move it
// while the parse is outstanding.
type Request struct {
	// Cell names the cell the edit happened in.
	Cell   string
	Target string
	Token  string
	Text   string
	Anchor nodey.Pos
	// Type is the grammar type of Target, used to strip wrapper nodes off
	// the fresh tree.
	Type string
}

// Response carries the parser's answer to a Request.
type Response struct {
	Request

	Tree *parsetree.Node
	Err  error
}

// Result reports what became of a response.
type Result struct {
	// Stale is set when the response's token was superseded.
	Stale  bool
	Score  int
	Script Script
	// Retry is set when the fresh tree could not be aligned with the target
	// and the whole cell must be parsed again.
	Retry *Request
}
