package parser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

func find(n *parsetree.Node, typ string) *parsetree.Node {
	if n.Type == typ {
		return n
	}

	for _, c := range n.Nodes() {
		if got := find(c, typ); got != nil {
			return got
		}
	}

	return nil
}

func TestTreeSitter_Python(t *testing.T) {
	t.Parallel()

	p, err := parser.NewTreeSitter("python")
	require.NoError(t, err)

	root, err := p.Parse(context.Background(), "x = 1\ny = 2")
	require.NoError(t, err)
	assert.Equal(t, "module", root.Type)
	assert.Equal(t, 1, root.Line)

	as := find(root, "assignment")
	require.NotNil(t, as)
	require.Len(t, as.Content, 3)
	assert.True(t, as.Content[1].IsToken())
	assert.Equal(t, "=", *as.Content[1].Token)

	lhs := as.Content[0].Node
	require.NotNil(t, lhs)
	require.True(t, lhs.IsLeaf())
	assert.Equal(t, "x", *lhs.Literal)
	assert.Equal(t, 1, lhs.Line)
	assert.Equal(t, 0, lhs.Col)

	rhs := as.Content[2].Node
	require.NotNil(t, rhs)
	assert.Equal(t, "1", *rhs.Literal)
	assert.Equal(t, 4, rhs.Col)
	assert.Equal(t, 5, rhs.EndCol)
}

func TestTreeSitter_Go(t *testing.T) {
	t.Parallel()

	p, err := parser.NewTreeSitter("Go")
	require.NoError(t, err)
	assert.Equal(t, "go", p.Name())

	root, err := p.Parse(context.Background(), "package main\n")
	require.NoError(t, err)

	pkg := find(root, "package_identifier")
	require.NotNil(t, pkg)
	assert.Equal(t, "main", *pkg.Literal)
	assert.Equal(t, 8, pkg.Col)
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	_, err := parser.Language("no-such-grammar")
	require.ErrorIs(t, err, parser.ErrUnsupportedLanguage)

	_, err = parser.NewTreeSitter("no-such-grammar")
	require.ErrorIs(t, err, parser.ErrUnsupportedLanguage)

	lang, err := parser.Language("golang")
	require.NoError(t, err)
	assert.NotNil(t, lang)
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file string
		want string
	}{
		{"main.go", "go"},
		{"/tmp/notebook/cell.py", "python"},
		{"cells.zzz", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parser.Detect(tt.file, nil), tt.file)
	}
}

func TestForFile(t *testing.T) {
	t.Parallel()

	p, err := parser.ForFile("cell.py", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "python", p.Name())

	p, err = parser.ForFile("cell.txt", nil, "go")
	require.NoError(t, err)
	assert.Equal(t, "go", p.Name())

	_, err = parser.ForFile("cells.zzz", nil, "")
	require.ErrorIs(t, err, parser.ErrUnsupportedLanguage)
}

var errBroken = errors.New("broken")

type fakeParser struct{}

func (fakeParser) Parse(_ context.Context, text string) (*parsetree.Node, error) {
	if text == "" {
		return nil, errBroken
	}

	lit := text

	return &parsetree.Node{Type: "word", Literal: &lit, Line: 1}, nil
}
