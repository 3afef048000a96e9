package parser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

var errNoRootNode = errors.New("parser: no root node")

// Parser produces a fresh tree for a piece of text. Positions are relative
// to the text: lines one-based, columns zero-based bytes.
type Parser interface {
	Parse(ctx context.Context, text string) (*parsetree.Node, error)
}

// TreeSitter parses with a tree-sitter grammar. Named leaves become literal
// nodes and anonymous nodes become syntax tokens. It is safe for concurrent
// use.
type TreeSitter struct {
	name string
	pool sync.Pool
}

// NewTreeSitter creates a parser for the named language.
func NewTreeSitter(name string) (*TreeSitter, error) {
	lang, err := Language(name)
	if err != nil {
		return nil, err
	}

	ts := &TreeSitter{name: normalize(name)}
	ts.pool.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(lang)

		return p
	}

	return ts, nil
}

// Name returns the grammar name.
func (ts *TreeSitter) Name() string { return ts.name }

// Parse implements Parser.
func (ts *TreeSitter) Parse(ctx context.Context, text string) (*parsetree.Node, error) {
	p, ok := ts.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("parser: %s: pool returned unexpected type", ts.name)
	}

	defer ts.pool.Put(p)

	src := []byte(text)

	tree, err := p.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", ts.name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, errNoRootNode
	}

	return convert(root, src), nil
}

func convert(n sitter.Node, src []byte) *parsetree.Node {
	start, end := n.StartPoint(), n.EndPoint()

	out := &parsetree.Node{
		Type:    n.Type(),
		Line:    toInt(start.Row) + 1,
		Col:     toInt(start.Column),
		EndLine: toInt(end.Row) + 1,
		EndCol:  toInt(end.Column),
	}

	count := n.ChildCount()
	if count == 0 {
		lit := text(n, src)
		out.Literal = &lit

		return out
	}

	out.Content = make([]parsetree.Item, 0, count)

	for i := range count {
		child := n.Child(i)
		if child.IsNull() {
			continue
		}

		if child.IsNamed() {
			out.Content = append(out.Content, parsetree.NodeItem(convert(child, src)))
		} else {
			out.Content = append(out.Content, parsetree.TokenItem(text(child, src)))
		}
	}

	return out
}

func text(n sitter.Node, src []byte) string {
	start, end := toInt(n.StartByte()), toInt(n.EndByte())
	if end > len(src) || start > end {
		return ""
	}

	return string(src[start:end])
}

func toInt(v uint) int {
	if v > math.MaxInt {
		panic("parser: position overflows int")
	}

	return int(v)
}
