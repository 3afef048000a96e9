// Package editor models the text side of an editing session: change events
// in the shape editors emit them, and an in-memory document that applies
// them.
package editor

import (
	"strings"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// Change replaces the text between From and To. Text holds the inserted
// lines and Removed the lines that were replaced; an insertion has Removed
// [""] and a deletion has Text [""]. Positions refer to the document before
// the change.
type Change struct {
	From    nodey.Pos `json:"from" yaml:"from"`
	To      nodey.Pos `json:"to" yaml:"to"`
	Text    []string  `json:"text" yaml:"text"`
	Removed []string  `json:"removed" yaml:"removed"`
}

// NewChange builds a change from strings, splitting them into lines.
func NewChange(from, to nodey.Pos, text, removed string) Change {
	return Change{From: from, To: to, Text: SplitLines(text), Removed: SplitLines(removed)}
}

// SplitLines splits s on newlines. The empty string is one empty line.
func SplitLines(s string) []string {
	return strings.Split(s, "\n")
}

// Inserted returns the inserted text.
func (c Change) Inserted() string { return strings.Join(c.Text, "\n") }

// RemovedText returns the replaced text.
func (c Change) RemovedText() string { return strings.Join(c.Removed, "\n") }

// DeltaLine is the number of lines added minus the number removed.
func (c Change) DeltaLine() int {
	return max(len(c.Text), 1) - max(len(c.Removed), 1)
}

// DeltaCh is the length of the last inserted line minus the length of the
// last removed line.
func (c Change) DeltaCh() int {
	return len(last(c.Text)) - len(last(c.Removed))
}

// Span returns the replaced range.
func (c Change) Span() nodey.Span { return nodey.Span{Start: c.From, End: c.To} }

// End returns the position just after the inserted text.
func (c Change) End() nodey.Pos {
	if len(c.Text) <= 1 {
		return nodey.Pos{Line: c.From.Line, Ch: c.From.Ch + len(last(c.Text))}
	}

	return nodey.Pos{Line: c.From.Line + len(c.Text) - 1, Ch: len(last(c.Text))}
}

// Shift maps a position at or after To to where the same character sits once
// the change is applied. Positions before To are returned unchanged.
func (c Change) Shift(p nodey.Pos) nodey.Pos {
	if p.Before(c.To) {
		return p
	}

	if p.Line == c.To.Line {
		end := c.End()

		return nodey.Pos{Line: end.Line, Ch: end.Ch + p.Ch - c.To.Ch}
	}

	return nodey.Pos{Line: p.Line + c.DeltaLine(), Ch: p.Ch}
}

func last(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return lines[len(lines)-1]
}
