// Package vdiff compares rendered versions of a node: line-oriented unified
// diffs for the log and inline character diffs for single literals.
package vdiff

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
)

// DefaultContext is the number of unchanged lines around a hunk.
const DefaultContext = 3

// ErrUnknownVersion is returned when a name does not resolve in the store.
var ErrUnknownVersion = errors.New("vdiff: unknown version")

// Unified returns a unified diff of a and b, or "" when they are equal.
func Unified(fromName, toName, a, b string, context int) (string, error) {
	if a == b {
		return "", nil
	}

	if context <= 0 {
		context = DefaultContext
	}

	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	})
	if err != nil {
		return "", fmt.Errorf("vdiff: unified: %w", err)
	}

	return out, nil
}

// Versions diffs the rendered text of two stored names.
func Versions(s *history.Store, from, to string, context int) (string, error) {
	for _, name := range []string{from, to} {
		if _, ok := s.Get(name); !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownVersion, name)
		}
	}

	return Unified(from, to, s.Text(from), s.Text(to), context)
}

// Op is the kind of an inline segment.
type Op int

// Segment kinds.
const (
	Equal Op = iota
	Insert
	Delete
)

// Segment is one run of an inline diff.
type Segment struct {
	Op   Op
	Text string
}

// Inline returns the character-level difference of a and b, cleaned up to
// word-ish boundaries.
func Inline(a, b string) []Segment {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(a, b, false))

	out := make([]Segment, 0, len(diffs))

	for _, d := range diffs {
		var op Op

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = Insert
		case diffmatchpatch.DiffDelete:
			op = Delete
		case diffmatchpatch.DiffEqual:
			op = Equal
		}

		out = append(out, Segment{Op: op, Text: d.Text})
	}

	return out
}

// WriteInline prints segments as one line: deletions in [-red-], insertions
// in {+green+}. Markers are kept when colour is disabled so the output
// still reads.
func WriteInline(w io.Writer, segs []Segment) error {
	del := color.New(color.FgRed)
	ins := color.New(color.FgGreen)

	var b strings.Builder

	for _, s := range segs {
		switch s.Op {
		case Insert:
			b.WriteString(ins.Sprint("{+" + s.Text + "+}"))
		case Delete:
			b.WriteString(del.Sprint("[-" + s.Text + "-]"))
		case Equal:
			b.WriteString(s.Text)
		}
	}

	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())

	return err
}

// WriteUnified prints a unified diff with added lines green, removed lines
// red, and hunk headers cyan.
func WriteUnified(w io.Writer, diff string) error {
	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)

	for line := range strings.Lines(diff) {
		var err error

		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			_, err = color.New(color.Bold).Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			_, err = hunk.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			_, err = add.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			_, err = del.Fprint(w, line)
		default:
			_, err = io.WriteString(w, line)
		}

		if err != nil {
			return err
		}
	}

	return nil
}
