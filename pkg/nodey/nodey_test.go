package nodey_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

func TestName(t *testing.T) {
	t.Parallel()

	code := &nodey.Code{Base: nodey.Base{ID: 4, Version: 2}}
	cell := &nodey.CodeCell{Code: nodey.Code{Base: nodey.Base{ID: 1, Version: 0}}}
	nb := &nodey.Notebook{Base: nodey.Base{ID: 0, Version: 3}}

	assert.Equal(t, "c.4.2", nodey.Name(code))
	assert.Equal(t, "c.1.0", nodey.Name(cell))
	assert.Equal(t, "n.0.3", nodey.Name(nb))
	assert.Equal(t, "c.4", nodey.Key(code))
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		typeChar string
		id       int
		version  int
		ok       bool
	}{
		{"c.4.2", "c", 4, 2, true},
		{"*.m.7", "m", 7, nodey.NoVersion, true},
		{"TEMP.3.1", "", 0, 0, false},
		{"c.x.1", "", 0, 0, false},
		{"c.4", "", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			typeChar, id, version, ok := nodey.SplitName(tt.name)

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.typeChar, typeChar)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.version, version)
		})
	}
}

func TestKeyFromName(t *testing.T) {
	t.Parallel()

	key, ok := nodey.KeyFromName("*.c.9")
	require.True(t, ok)
	assert.Equal(t, "c.9", key)

	key, ok = nodey.KeyFromName("o.2.5")
	require.True(t, ok)
	assert.Equal(t, "o.2", key)

	assert.True(t, nodey.IsStarName("*.c.9"))
	assert.True(t, nodey.IsUnsavedName("TEMP.1.0"))
	assert.False(t, nodey.IsStarName("c.9.0"))
}

func TestCode_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := &nodey.Code{
		Type:    "call",
		Content: []nodey.Item{nodey.RefItem("c.2.0"), nodey.TokenItem("(")},
	}
	orig.SetLiteral("x")

	cp, ok := orig.Clone().(*nodey.Code)
	require.True(t, ok)

	cp.Content[0].Ref = "*.c.2"
	cp.SetLiteral("y")
	cp.Content = append(cp.Content, nodey.TokenItem(")"))

	assert.Equal(t, "c.2.0", orig.Content[0].Ref)
	assert.Equal(t, "x", orig.LiteralString())
	assert.Len(t, orig.Content, 2)
	assert.Same(t, orig.Content[1].Token, cp.Content[1].Token)
}

func TestReplaceChildName(t *testing.T) {
	t.Parallel()

	nb := &nodey.Notebook{Cells: []string{"c.1.0", "m.2.0"}}
	assert.True(t, nodey.ReplaceChildName(nb, "m.2.0", "*.m.2"))
	assert.Equal(t, []string{"c.1.0", "*.m.2"}, nb.Cells)
	assert.False(t, nodey.ReplaceChildName(nb, "c.9.0", "*.c.9"))

	cell := &nodey.CodeCell{Code: nodey.Code{Content: []nodey.Item{nodey.TokenItem("c.3.0"), nodey.RefItem("c.3.0")}}}
	assert.True(t, nodey.ReplaceChildName(cell, "c.3.0", "*.c.3"))
	assert.Equal(t, "c.3.0", cell.Content[0].Token.Tokens)
	assert.Equal(t, "*.c.3", cell.Content[1].Ref)
	assert.Equal(t, []string{"*.c.3"}, nodey.ChildNames(cell))
}

func TestItem_JSON(t *testing.T) {
	t.Parallel()

	items := []nodey.Item{nodey.RefItem("c.1.0"), nodey.TokenItem("+")}

	data, err := json.Marshal(items)
	require.NoError(t, err)
	assert.JSONEq(t, `["c.1.0", {"syntok": "+"}]`, string(data))

	var back []nodey.Item

	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 2)
	assert.Equal(t, "c.1.0", back[0].Ref)
	assert.True(t, back[1].IsToken())
	assert.Equal(t, "+", back[1].Token.Tokens)
}

func TestEnvelope(t *testing.T) {
	t.Parallel()

	nodes := []nodey.Nodey{
		&nodey.Code{Type: "name"},
		&nodey.CodeCell{},
		&nodey.Markdown{Markdown: "# hi"},
		&nodey.Output{Raw: json.RawMessage(`{"text":"1"}`)},
		&nodey.Notebook{Cells: []string{"c.1.0"}},
	}

	for _, n := range nodes {
		back, err := nodey.Wrap(n).Unwrap()
		require.NoError(t, err)
		assert.Equal(t, n.Kind(), back.Kind())
		assert.Same(t, n, back)
	}

	_, err := nodey.Envelope{}.Unwrap()
	require.ErrorIs(t, err, nodey.ErrEmptyEnvelope)
}

func TestSpan_Contains(t *testing.T) {
	t.Parallel()

	outer := nodey.Span{Start: nodey.Pos{Line: 0, Ch: 0}, End: nodey.Pos{Line: 2, Ch: 5}}

	assert.True(t, outer.Contains(nodey.Span{Start: nodey.Pos{Line: 1, Ch: 3}, End: nodey.Pos{Line: 2, Ch: 5}}))
	assert.False(t, outer.Contains(nodey.Span{Start: nodey.Pos{Line: 1, Ch: 3}, End: nodey.Pos{Line: 2, Ch: 6}}))
	assert.Equal(t, "codecell", nodey.KindCodeCell.String())

	kind, ok := nodey.ParseKind("markdown")
	require.True(t, ok)
	assert.Equal(t, nodey.KindMarkdown, kind)
}
