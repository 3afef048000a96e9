package nodey

import (
	"encoding/json"
	"slices"
)

// Code is a node of a parsed code tree. Leaf nodes carry a literal; inner
// nodes carry content, an ordered mix of child references and syntax tokens.
type Code struct {
	Base

	Type    string  `json:"type"`
	Literal *string `json:"literal,omitempty"`
	Start   Pos     `json:"start"`
	End     Pos     `json:"end"`
	Content []Item  `json:"content,omitempty"`
	Right   string  `json:"right,omitempty"`
	// Output names the output node produced by the enclosing cell's last run.
	Output string `json:"output,omitempty"`
}

// Kind implements Nodey.
func (c *Code) Kind() Kind { return KindCode }

// Common implements Nodey.
func (c *Code) Common() *Base { return &c.Base }

// Clone implements Nodey.
func (c *Code) Clone() Nodey {
	cp := *c
	cp.Content = cloneItems(c.Content)

	if c.Literal != nil {
		lit := *c.Literal
		cp.Literal = &lit
	}

	return &cp
}

func (c *Code) sealed() {}

// IsLeaf reports whether the node carries a literal instead of content.
func (c *Code) IsLeaf() bool { return c.Literal != nil }

// LiteralString returns the literal, or "" for inner nodes.
func (c *Code) LiteralString() string {
	if c.Literal == nil {
		return ""
	}

	return *c.Literal
}

// SetLiteral replaces the literal payload.
func (c *Code) SetLiteral(s string) {
	c.Literal = &s
}

// Span returns the node's stored span.
func (c *Code) Span() Span { return Span{Start: c.Start, End: c.End} }

// Children returns the names of child references in content order.
func (c *Code) Children() []string {
	var out []string

	for _, it := range c.Content {
		if !it.IsToken() {
			out = append(out, it.Ref)
		}
	}

	return out
}

// ReplaceChild swaps the reference named from for to. It reports whether a
// reference was found.
func (c *Code) ReplaceChild(from, to string) bool {
	for i, it := range c.Content {
		if !it.IsToken() && it.Ref == from {
			c.Content[i].Ref = to

			return true
		}
	}

	return false
}

// CodeCell is the root code node of one notebook cell. It shares the code id
// space and additionally records the output of its last execution.
type CodeCell struct {
	Code

	OutputID  int `json:"outputId"`
	OutputVer int `json:"outputVer"`
	// Text is the cell source as typed, when the editor supplied it.
	Text string `json:"text,omitempty"`
}

// Kind implements Nodey.
func (c *CodeCell) Kind() Kind { return KindCodeCell }

// Clone implements Nodey.
func (c *CodeCell) Clone() Nodey {
	code, _ := c.Code.Clone().(*Code)

	return &CodeCell{Code: *code, OutputID: c.OutputID, OutputVer: c.OutputVer, Text: c.Text}
}

func (c *CodeCell) sealed() {}

// Markdown is a prose cell.
type Markdown struct {
	Base

	Markdown string `json:"markdown"`
}

// Kind implements Nodey.
func (m *Markdown) Kind() Kind { return KindMarkdown }

// Common implements Nodey.
func (m *Markdown) Common() *Base { return &m.Base }

// Clone implements Nodey.
func (m *Markdown) Clone() Nodey {
	cp := *m

	return &cp
}

func (m *Markdown) sealed() {}

// Output is the raw result of running a code cell.
type Output struct {
	Base

	Raw json.RawMessage `json:"raw"`
}

// Kind implements Nodey.
func (o *Output) Kind() Kind { return KindOutput }

// Common implements Nodey.
func (o *Output) Common() *Base { return &o.Base }

// Clone implements Nodey.
func (o *Output) Clone() Nodey {
	cp := *o
	cp.Raw = slices.Clone(o.Raw)

	return &cp
}

func (o *Output) sealed() {}

// Notebook is the root of the tree. Cells lists cell names in display order.
type Notebook struct {
	Base

	Cells []string `json:"cells"`
}

// Kind implements Nodey.
func (n *Notebook) Kind() Kind { return KindNotebook }

// Common implements Nodey.
func (n *Notebook) Common() *Base { return &n.Base }

// Clone implements Nodey.
func (n *Notebook) Clone() Nodey {
	cp := *n
	cp.Cells = slices.Clone(n.Cells)

	return &cp
}

func (n *Notebook) sealed() {}

// ReplaceCell swaps the cell named from for to.
func (n *Notebook) ReplaceCell(from, to string) bool {
	i := slices.Index(n.Cells, from)
	if i < 0 {
		return false
	}

	n.Cells[i] = to

	return true
}

// AsCode returns the code view of a code node or code cell.
func AsCode(n Nodey) (*Code, bool) {
	switch v := n.(type) {
	case *Code:
		return v, true
	case *CodeCell:
		return &v.Code, true
	default:
		return nil, false
	}
}

// ChildNames lists the names a node refers to as children: content
// references for code, cells for the notebook, nothing for the rest.
func ChildNames(n Nodey) []string {
	switch v := n.(type) {
	case *Notebook:
		return slices.Clone(v.Cells)
	default:
		if code, ok := AsCode(n); ok {
			return code.Children()
		}

		return nil
	}
}

// ReplaceChildName rewrites one child reference of a node in place.
func ReplaceChildName(n Nodey, from, to string) bool {
	if nb, ok := n.(*Notebook); ok {
		return nb.ReplaceCell(from, to)
	}

	if code, ok := AsCode(n); ok {
		return code.ReplaceChild(from, to)
	}

	return false
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}

	out := make([]Item, len(items))
	copy(out, items)

	return out
}
