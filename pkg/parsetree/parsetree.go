// Package parsetree is the wire form of a fresh parse: the tree a parser
// returns for a span of text before it is reconciled with stored history.
//
// A node is {"type", "literal"?, "line", "col", "endLine"?, "endCol"?,
// "content": [...]}. Lines are one-based, columns zero-based. Content
// entries are nested nodes or syntax tokens written as {"syntok": "..."}.
package parsetree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// ErrEmptyTree is returned when a parse response carries no root node.
var ErrEmptyTree = errors.New("parsetree: empty tree")

// Node is one parser node.
type Node struct {
	Type    string  `json:"type"`
	Literal *string `json:"literal,omitempty"`
	Line    int     `json:"line"`
	Col     int     `json:"col"`
	EndLine int     `json:"endLine,omitempty"`
	EndCol  int     `json:"endCol,omitempty"`
	Content []Item  `json:"content"`
}

// Item is a content entry: a nested node or a syntax token.
type Item struct {
	Node  *Node
	Token *string
}

// NodeItem wraps a node as a content entry.
func NodeItem(n *Node) Item { return Item{Node: n} }

// TokenItem wraps token text as a content entry.
func TokenItem(text string) Item { return Item{Token: &text} }

// IsToken reports whether the entry is a syntax token.
func (it Item) IsToken() bool { return it.Token != nil }

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	if it.Token != nil {
		return json.Marshal(map[string]string{nodey.TokenKey: *it.Token})
	}

	return json.Marshal(it.Node)
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage

	err := json.Unmarshal(data, &probe)
	if err != nil {
		return fmt.Errorf("content entry: %w", err)
	}

	if raw, ok := probe[nodey.TokenKey]; ok {
		var text string

		err = json.Unmarshal(raw, &text)
		if err != nil {
			return fmt.Errorf("syntax token: %w", err)
		}

		*it = Item{Token: &text}

		return nil
	}

	var n Node

	err = json.Unmarshal(data, &n)
	if err != nil {
		return err
	}

	*it = Item{Node: &n}

	return nil
}

// UnmarshalJSON accepts literals of any scalar JSON type. Numbers and
// booleans keep their textual form, so 10 and "10" compare equal.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node

	var aux struct {
		plain
		Literal json.RawMessage `json:"literal,omitempty"`
	}

	err := json.Unmarshal(data, &aux)
	if err != nil {
		return fmt.Errorf("parse node: %w", err)
	}

	*n = Node(aux.plain)
	n.Literal = nil

	lit := bytes.TrimSpace(aux.Literal)
	if len(lit) == 0 || bytes.Equal(lit, []byte("null")) {
		return nil
	}

	var s string
	if json.Unmarshal(lit, &s) != nil {
		s = string(lit)
	}

	n.Literal = &s

	return nil
}

// Decode reads one tree from r.
func Decode(r io.Reader) (*Node, error) {
	var root *Node

	err := json.NewDecoder(r).Decode(&root)
	if err != nil {
		return nil, fmt.Errorf("decode parse tree: %w", err)
	}

	if root == nil {
		return nil, ErrEmptyTree
	}

	return root, nil
}

// Parse decodes one tree from data.
func Parse(data []byte) (*Node, error) {
	return Decode(bytes.NewReader(data))
}

// IsLeaf reports whether the node carries a literal.
func (n *Node) IsLeaf() bool { return n.Literal != nil }

// Start converts the start position to zero-based lines.
func (n *Node) Start() nodey.Pos { return nodey.Pos{Line: n.Line - 1, Ch: n.Col} }

// End converts the end position to zero-based lines.
func (n *Node) End() nodey.Pos { return nodey.Pos{Line: n.EndLine - 1, Ch: n.EndCol} }

// Nodes returns the nested nodes of content, skipping tokens.
func (n *Node) Nodes() []*Node {
	var out []*Node

	for _, it := range n.Content {
		if it.Node != nil {
			out = append(out, it.Node)
		}
	}

	return out
}

// FillSpans derives missing positions bottom-up. A node without a line takes
// its first child's start. A node without an end takes its last child's end,
// or its start plus the literal width for leaves.
func FillSpans(n *Node) {
	children := n.Nodes()
	for _, c := range children {
		FillSpans(c)
	}

	if n.Line == 0 && len(children) > 0 {
		n.Line, n.Col = children[0].Line, children[0].Col
	}

	if n.EndLine != 0 {
		return
	}

	switch {
	case len(children) > 0:
		last := children[len(children)-1]
		n.EndLine, n.EndCol = last.EndLine, last.EndCol
	case n.Literal != nil:
		n.EndLine, n.EndCol = n.Line, n.Col+len(*n.Literal)
	default:
		n.EndLine, n.EndCol = n.Line, n.Col
	}
}

// Reduce strips single-child wrappers, such as the module and statement
// nodes a parser puts around a re-parsed fragment, until a node of type want
// is reached. The root is returned unchanged when no such node exists.
func Reduce(root *Node, want string) *Node {
	for n := root; n != nil; {
		if n.Type == want {
			return n
		}

		children := n.Nodes()
		if len(children) != 1 {
			break
		}

		n = children[0]
	}

	return root
}

// Count returns the number of nodes in the tree.
func Count(n *Node) int {
	total := 1
	for _, c := range n.Nodes() {
		total += Count(c)
	}

	return total
}
