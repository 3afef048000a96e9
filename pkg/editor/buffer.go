package editor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// ErrOutOfRange is returned for positions outside the document.
var ErrOutOfRange = errors.New("position out of range")

// ErrRemovedMismatch is returned when a change's removed text does not match
// the document.
var ErrRemovedMismatch = errors.New("removed text does not match document")

// Document is the read side of an editor.
type Document interface {
	Text() string
	Range(from, to nodey.Pos) string
}

// Buffer is an in-memory line-based document. Columns are byte offsets.
type Buffer struct {
	lines []string
}

// NewBuffer returns a buffer holding text.
func NewBuffer(text string) *Buffer {
	return &Buffer{lines: SplitLines(text)}
}

// Text returns the whole document.
func (b *Buffer) Text() string { return strings.Join(b.lines, "\n") }

// Lines returns the number of lines.
func (b *Buffer) Lines() int { return len(b.lines) }

// Range returns the text between from and to, clamped to the document.
func (b *Buffer) Range(from, to nodey.Pos) string {
	from, to = b.clamp(from), b.clamp(to)
	if to.Before(from) {
		return ""
	}

	if from.Line == to.Line {
		return b.lines[from.Line][from.Ch:to.Ch]
	}

	parts := make([]string, 0, to.Line-from.Line+1)
	parts = append(parts, b.lines[from.Line][from.Ch:])
	parts = append(parts, b.lines[from.Line+1:to.Line]...)
	parts = append(parts, b.lines[to.Line][:to.Ch])

	return strings.Join(parts, "\n")
}

// EndPos returns the position after the last character.
func (b *Buffer) EndPos() nodey.Pos {
	n := len(b.lines) - 1

	return nodey.Pos{Line: n, Ch: len(b.lines[n])}
}

// Replace applies an edit given as plain text and returns the change it
// made, with Removed filled in from the document.
func (b *Buffer) Replace(from, to nodey.Pos, text string) (Change, error) {
	if err := b.check(from); err != nil {
		return Change{}, err
	}

	if err := b.check(to); err != nil {
		return Change{}, err
	}

	c := NewChange(from, to, text, b.Range(from, to))

	return c, b.Apply(c)
}

// Apply performs c. When c carries removed lines, they must match the
// document.
func (b *Buffer) Apply(c Change) error {
	if err := b.check(c.From); err != nil {
		return err
	}

	if err := b.check(c.To); err != nil {
		return err
	}

	if c.To.Before(c.From) {
		return fmt.Errorf("%w: %v before %v", ErrOutOfRange, c.To, c.From)
	}

	if c.Removed != nil {
		if got := b.Range(c.From, c.To); got != c.RemovedText() {
			return fmt.Errorf("%w: have %q, change removes %q", ErrRemovedMismatch, got, c.RemovedText())
		}
	}

	text := c.Text
	if len(text) == 0 {
		text = []string{""}
	}

	head := b.lines[c.From.Line][:c.From.Ch]
	tail := b.lines[c.To.Line][c.To.Ch:]

	repl := make([]string, len(text))
	copy(repl, text)
	repl[0] = head + repl[0]
	repl[len(repl)-1] += tail

	lines := make([]string, 0, len(b.lines)-(c.To.Line-c.From.Line)+len(repl)-1)
	lines = append(lines, b.lines[:c.From.Line]...)
	lines = append(lines, repl...)
	lines = append(lines, b.lines[c.To.Line+1:]...)
	b.lines = lines

	return nil
}

func (b *Buffer) check(p nodey.Pos) error {
	if p.Line < 0 || p.Line >= len(b.lines) || p.Ch < 0 || p.Ch > len(b.lines[p.Line]) {
		return fmt.Errorf("%w: %d:%d", ErrOutOfRange, p.Line, p.Ch)
	}

	return nil
}

func (b *Buffer) clamp(p nodey.Pos) nodey.Pos {
	if p.Line < 0 {
		return nodey.Pos{}
	}

	if p.Line >= len(b.lines) {
		return b.EndPos()
	}

	p.Ch = min(max(p.Ch, 0), len(b.lines[p.Line]))

	return p
}
