package history

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// Render reconstructs the source text of the node named by name from
// literals, syntax tokens, and spans. Gaps between spans become newlines and
// spaces. A committed name renders with the spans frozen in its snapshots;
// a shadow name renders with the live spans.
func (s *Store) Render(name string) string {
	n, ok := s.Get(name)
	if !ok {
		return ""
	}

	switch v := n.(type) {
	case *nodey.Markdown:
		return v.Markdown
	case *nodey.Output:
		return string(v.Raw)
	case *nodey.Notebook:
		parts := make([]string, 0, len(v.Cells))
		for _, cell := range v.Cells {
			parts = append(parts, s.Text(cell))
		}

		return strings.Join(parts, "\n")
	}

	code, _ := nodey.AsCode(n)
	live := nodey.IsStarName(name) || nodey.IsUnsavedName(name)

	r := &renderer{store: s, live: live}
	start := r.span(name, code).Start
	r.line, r.ch = start.Line, start.Ch
	r.node(name, code)

	return r.buf.String()
}

// Text returns the text of a node as the user typed it when that was
// recorded, and the rendered text otherwise.
func (s *Store) Text(name string) string {
	n, ok := s.Get(name)
	if !ok {
		return ""
	}

	if cell, ok := n.(*nodey.CodeCell); ok && cell.Text != "" {
		return cell.Text
	}

	return s.Render(name)
}

type renderer struct {
	store *Store
	live  bool
	buf   strings.Builder
	line  int
	ch    int
	last  rune
}

func (r *renderer) span(name string, code *nodey.Code) nodey.Span {
	if r.live {
		return r.store.Live(name).Span
	}

	return code.Span()
}

func (r *renderer) node(name string, code *nodey.Code) {
	span := r.span(name, code)
	r.moveTo(span.Start)

	if code.IsLeaf() {
		r.write(code.LiteralString())

		return
	}

	var tokens []string

	for _, it := range code.Content {
		if it.IsToken() {
			tokens = append(tokens, it.Token.Tokens)

			continue
		}

		child, ok := r.store.Get(it.Ref)
		if !ok {
			continue
		}

		cc, ok := nodey.AsCode(child)
		if !ok {
			continue
		}

		r.flush(tokens, r.span(it.Ref, cc).Start)
		tokens = tokens[:0]
		r.node(it.Ref, cc)
	}

	r.flush(tokens, span.End)
}

// flush writes a run of syntax tokens. Tokens carry no position, so a run
// that fits before target on the current line is centred in the gap.
func (r *renderer) flush(tokens []string, target nodey.Pos) {
	if len(tokens) == 0 {
		return
	}

	var run strings.Builder

	var last rune

	for _, tok := range tokens {
		first, _ := utf8.DecodeRuneInString(tok)
		if isWordRune(last) && isWordRune(first) {
			run.WriteByte(' ')
		}

		run.WriteString(tok)
		last, _ = utf8.DecodeLastRuneInString(tok)
	}

	text := run.String()

	if target.Line == r.line && !strings.Contains(text, "\n") {
		if extra := target.Ch - r.ch - len(text); extra > 1 {
			r.moveTo(nodey.Pos{Line: r.line, Ch: r.ch + extra/2})
		}
	}

	r.write(text)
}

func (r *renderer) moveTo(p nodey.Pos) {
	if p.Line > r.line {
		r.buf.WriteString(strings.Repeat("\n", p.Line-r.line))
		r.line, r.ch = p.Line, 0
		r.last = '\n'
	}

	if p.Ch > r.ch {
		r.buf.WriteString(strings.Repeat(" ", p.Ch-r.ch))
		r.ch = p.Ch
		r.last = ' '
	}
}

func (r *renderer) write(text string) {
	if text == "" {
		return
	}

	first, _ := utf8.DecodeRuneInString(text)
	if isWordRune(r.last) && isWordRune(first) {
		r.buf.WriteByte(' ')
		r.ch++
	}

	r.buf.WriteString(text)

	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		r.line += strings.Count(text, "\n")
		r.ch = len(text) - i - 1
	} else {
		r.ch += len(text)
	}

	r.last, _ = utf8.DecodeLastRuneInString(text)
}

func isWordRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
