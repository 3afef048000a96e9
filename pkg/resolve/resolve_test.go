package resolve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/editor"
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
	"github.com/Sumatoshi-tech/verstree/pkg/resolve"
)

func TestSeed(t *testing.T) {
	t.Parallel()

	e := seeded(t)

	assert.Equal(t, "n.0.0", e.store.Notebook())
	assert.Equal(t, []string{"c.0.0"}, e.store.MustGet("n.0.0").(*nodey.Notebook).Cells)
	assert.Equal(t, source, e.store.Render("c.0.0"))
	assert.Equal(t, source, e.store.Text("c.0.0"))

	cell := e.store.MustGet("c.0.0").(*nodey.CodeCell)
	assert.Equal(t, "n.0.0", cell.Parent)
	assert.Equal(t, nodey.NoID, cell.OutputID)
	assert.Equal(t, nodey.Span{Start: pos(0, 0), End: pos(1, 5)}, cell.Span())

	first := e.code(t, "c.1.0")
	assert.Equal(t, "c.4.0", first.Right)
	assert.Equal(t, "c.0.0", first.Parent)
	assert.Equal(t, []string{"c.2.0", "c.3.0"}, first.Children())
	assert.Equal(t, "c.3.0", e.code(t, "c.2.0").Right)
	assert.Empty(t, e.code(t, "c.3.0").Right)
	assert.Empty(t, e.code(t, "c.4.0").Right)
	assert.Equal(t, nodey.Span{Start: pos(1, 4), End: pos(1, 5)}, e.code(t, "c.6.0").Span())
}

func TestFindNodeAtRange(t *testing.T) {
	t.Parallel()

	e := seeded(t)

	tests := []struct {
		name string
		r    nodey.Span
		want string
	}{
		{"inside literal", nodey.Span{Start: pos(0, 4), End: pos(0, 4)}, "c.3.0"},
		{"end of literal", nodey.Span{Start: pos(1, 5), End: pos(1, 5)}, "c.6.0"},
		{"around token", nodey.Span{Start: pos(0, 2), End: pos(0, 3)}, "c.1.0"},
		{"across statements", nodey.Span{Start: pos(0, 2), End: pos(1, 2)}, "c.0.0"},
		{"past the end", nodey.Span{Start: pos(4, 0), End: pos(4, 0)}, "c.0.0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resolve.FindNodeAtRange(e.store, "c.0.0", tt.r), tt.name)
	}

	e.stage.MarkAsEdited("c.3.0")
	assert.Equal(t, "*.c.3", resolve.FindNodeAtRange(e.store, "c.0.0", nodey.Span{Start: pos(0, 4), End: pos(0, 4)}))
}

func TestMatch_IdenticalTreeScoresZero(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	fresh := module(assign(1, "x", "1"), assign(2, "y", "2"))
	parsetree.FillSpans(fresh)

	got := m.Match(fresh, "c.0.0", pos(0, 0))
	assert.Zero(t, got.Score)
	assert.Empty(t, got.Script)
	assert.Len(t, got.Spans, 7)

	sub := assign(1, "y", "2")
	parsetree.FillSpans(sub)

	got = m.Match(sub, "c.4.0", pos(1, 0))
	assert.Zero(t, got.Score)
	assert.Empty(t, got.Script)
	assert.Equal(t, nodey.Span{Start: pos(1, 4), End: pos(1, 5)}, got.Spans["c.6.0"])
}

func TestMatch_LiteralRelabel(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	fresh := assign(1, "xy", "1")
	fresh.Content[2].Node.Col = 5
	parsetree.FillSpans(fresh)

	got := m.Match(fresh, "c.1.0", pos(0, 0))
	require.Equal(t, 1, got.Score)
	require.Equal(t, resolve.Script{resolve.Relabel{Target: "c.2.0", Literal: "xy"}}, got.Script)

	before := e.store.MustGet("c.2.0").Clone()
	got.Script.Apply(e.stage)

	star, ok := e.store.StarOf("c.2.0")
	require.True(t, ok)

	want, _ := before.(*nodey.Code)
	want.SetLiteral("xy")
	want.Version = nodey.NoVersion
	assert.Equal(t, want, star.Value)

	assert.Equal(t, "x", e.code(t, "c.2.0").LiteralString())
	_, starred := e.store.StarOf("c.3.0")
	assert.False(t, starred)
}

func TestMatch_TokenRelabel(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	fresh := node("assignment",
		parsetree.NodeItem(lit("identifier", "x", 1, 0)),
		parsetree.TokenItem("+="),
		parsetree.NodeItem(lit("integer", "1", 1, 5)),
	)
	parsetree.FillSpans(fresh)

	got := m.Match(fresh, "c.1.0", pos(0, 0))
	assert.Equal(t, 1, got.Score)
	assert.Equal(t, []string{`relabel-token c.1.0 "="->"+="`}, got.Script.Strings())

	got.Script.Apply(e.stage)

	assert.Equal(t, "+=", e.code(t, "*.c.1").Content[1].Token.Tokens)
	assert.Equal(t, "=", e.code(t, "c.1.0").Content[1].Token.Tokens)
}

func TestMatch_Mismatch(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	got := m.Match(lit("identifier", "a", 1, 0), "c.3.0", pos(0, 4))
	assert.Equal(t, resolve.Mismatch, got.Score)

	got = m.Match(node("integer"), "c.3.0", pos(0, 4))
	assert.Equal(t, resolve.Mismatch, got.Score, "leaf against inner node")
}

func TestMatch_ScriptOrder(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	// "y = 2\n3": the first statement is dropped and a bare expression
	// inserted after the one that survives.
	fresh := module(assign(1, "y", "2"), node("expression_statement", parsetree.NodeItem(lit("integer", "3", 2, 0))))
	parsetree.FillSpans(fresh)

	got := m.Match(fresh, "c.0.0", pos(0, 0))
	assert.Equal(t, 2, got.Score)
	assert.Equal(t, []string{
		"remove c.0.0 c.1.0",
		"insert c.0.0[1] expression_statement",
	}, got.Script.Strings())
}

func TestMatch_PrefersCheapestCandidate(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	// Neither statement survives untouched. "y = 5" is closest to c.4, which
	// leaves c.1 for "z = 3". The pairs cross, so the script swaps them back
	// into source order.
	fresh := module(assign(1, "y", "5"), assign(2, "z", "3"))
	parsetree.FillSpans(fresh)

	got := m.Match(fresh, "c.0.0", pos(0, 0))
	assert.Equal(t, 4, got.Score)
	assert.Equal(t, []string{
		`relabel c.6.0 "5"`,
		`relabel c.2.0 "z"`,
		`relabel c.3.0 "3"`,
		"reorder c.0.0 [c.4.0 c.1.0]",
	}, got.Script.Strings())

	got.Script.Apply(e.stage)

	assert.Equal(t, []string{"*.c.4", "*.c.1"}, e.code(t, "*.c.0").Children())
	assert.Equal(t, "*.c.1", e.store.Live("*.c.4").Right)
	assert.Empty(t, e.store.Live("*.c.1").Right)
}

func TestMatch_CrossedTokensAndNodes(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	m := resolve.NewMatcher(e.store)

	// "1 = x" against "x = 1": the literals swap places around the token.
	fresh := node("assignment",
		parsetree.NodeItem(lit("integer", "1", 1, 0)),
		parsetree.TokenItem("="),
		parsetree.NodeItem(lit("identifier", "x", 1, 4)),
	)
	parsetree.FillSpans(fresh)

	got := m.Match(fresh, "c.1.0", pos(0, 0))
	require.Equal(t, 1, got.Score)
	assert.Equal(t, []string{`reorder c.1.0 [c.3.0 "=" c.2.0]`}, got.Script.Strings())

	got.Script.Apply(e.stage)

	content := e.code(t, "*.c.1").Content
	require.Len(t, content, 3)
	assert.Equal(t, "c.3.0", content[0].Ref)
	assert.Equal(t, "=", content[1].Token.Tokens)
	assert.Equal(t, "c.2.0", content[2].Ref)
	assert.Equal(t, "c.2.0", e.store.Live("c.3.0").Right)
	assert.Empty(t, e.store.Live("c.2.0").Right)
	assert.Equal(t, nodey.Span{Start: pos(0, 0), End: pos(0, 1)}, got.Spans["c.3.0"])
}

func TestTracker_SequentialEditsMatchCombined(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sequential [][2]any
		combined   [2]any
	}{
		{
			name:       "adjacent inserts",
			sequential: [][2]any{{pos(0, 5), "1"}, {pos(0, 6), "2"}},
			combined:   [2]any{pos(0, 5), "12"},
		},
		{
			name:       "line breaks",
			sequential: [][2]any{{pos(0, 5), "\n"}, {pos(1, 0), "\n"}},
			combined:   [2]any{pos(0, 5), "\n\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			apply := func(e *env, at nodey.Pos, text string) {
				c, err := e.buf.Replace(at, at, text)
				require.NoError(t, err)
				e.rec.Edit(context.Background(), "c.0.0", c, e.buf)
			}

			seq, one := seeded(t), seeded(t)

			for _, step := range tt.sequential {
				apply(seq, step[0].(nodey.Pos), step[1].(string))
			}

			apply(one, tt.combined[0].(nodey.Pos), tt.combined[1].(string))

			require.Equal(t, one.buf.Text(), seq.buf.Text())

			for _, key := range one.store.Keys() {
				name := key + ".0"
				assert.Equal(t, one.store.Live(name).Span, seq.store.Live(name).Span, key)
			}
		})
	}
}

func TestTracker_ShiftsTrailingSpans(t *testing.T) {
	t.Parallel()

	e := seeded(t)

	c, err := e.buf.Replace(pos(0, 0), pos(0, 0), "\n")
	require.NoError(t, err)

	req := e.rec.Edit(context.Background(), "c.0.0", c, e.buf)
	assert.Equal(t, "c.2.0", req.Target)

	assert.Equal(t, nodey.Span{Start: pos(0, 0), End: pos(1, 1)}, e.store.Live("c.2.0").Span)
	assert.Equal(t, nodey.Span{Start: pos(1, 4), End: pos(1, 5)}, e.store.Live("c.3.0").Span)
	assert.Equal(t, nodey.Span{Start: pos(2, 0), End: pos(2, 5)}, e.store.Live("c.4.0").Span)
	assert.Equal(t, nodey.Span{Start: pos(2, 4), End: pos(2, 5)}, e.store.Live("c.6.0").Span)
	assert.Equal(t, pos(2, 5), e.store.Live("c.0.0").Span.End)

	// Snapshots keep their spans.
	assert.Equal(t, pos(1, 4), e.code(t, "c.6.0").Start)
}

func TestReconciler_LocalEdit(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	ctx := context.Background()

	c, err := e.buf.Replace(pos(0, 4), pos(0, 5), "42")
	require.NoError(t, err)

	req := e.rec.Edit(ctx, "c.0.0", c, e.buf)
	assert.Equal(t, "c.3.0", req.Target)
	assert.Equal(t, "42", req.Text)
	assert.Equal(t, "integer", req.Type)
	assert.Equal(t, pos(0, 4), req.Anchor)
	assert.Equal(t, "c.0.0", req.Cell)
	assert.NotEmpty(t, req.Token)

	res, err := e.rec.Receive(ctx, resolve.Response{Request: req, Tree: fragment(lit("integer", "42", 1, 0))}, e.buf)
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, []string{`relabel c.3.0 "42"`}, res.Script.Strings())
	assert.Equal(t, nodey.Span{Start: pos(0, 4), End: pos(0, 6)}, e.store.Live("c.3.0").Span)

	sum := e.stage.Checkpoint(ctx, history.CheckpointEdit)
	assert.Equal(t, "n.0.1", sum.Notebook)
	assert.Equal(t, e.buf.Text(), e.store.Render("c.0.1"))
	assert.Len(t, e.store.VersionsOf("c.4"), 1)
}

func TestReconciler_LateResponseIsDropped(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	ctx := context.Background()

	c, err := e.buf.Replace(pos(0, 4), pos(0, 5), "7")
	require.NoError(t, err)
	first := e.rec.Edit(ctx, "c.0.0", c, e.buf)

	c, err = e.buf.Replace(pos(0, 4), pos(0, 5), "8")
	require.NoError(t, err)
	second := e.rec.Edit(ctx, "c.0.0", c, e.buf)

	require.NotEqual(t, first.Token, second.Token)

	res, err := e.rec.Receive(ctx, resolve.Response{Request: first, Tree: fragment(lit("integer", "7", 1, 0))}, e.buf)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Empty(t, e.store.Stars())
	assert.Equal(t, second.Token, e.store.Live("c.3.0").Pending)

	res, err = e.rec.Receive(ctx, resolve.Response{Request: second, Tree: fragment(lit("integer", "8", 1, 0))}, e.buf)
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Equal(t, "8", e.code(t, "*.c.3").LiteralString())

	// A replayed response is stale too once its token was consumed.
	res, err = e.rec.Receive(ctx, resolve.Response{Request: second, Tree: fragment(lit("integer", "9", 1, 0))}, e.buf)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, "8", e.code(t, "*.c.3").LiteralString())
}

func TestReconciler_RetriesWholeCell(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	ctx := context.Background()

	c, err := e.buf.Replace(pos(1, 5), pos(1, 5), "\nz = 3")
	require.NoError(t, err)

	req := e.rec.Edit(ctx, "c.0.0", c, e.buf)
	require.Equal(t, "c.6.0", req.Target)
	assert.Equal(t, "2\nz = 3", req.Text)

	partial := module(node("expression_statement", parsetree.NodeItem(lit("integer", "2", 1, 0))), assign(2, "z", "3"))

	res, err := e.rec.Receive(ctx, resolve.Response{Request: req, Tree: partial}, e.buf)
	require.NoError(t, err)
	require.NotNil(t, res.Retry)
	assert.Equal(t, resolve.Mismatch, res.Score)
	assert.Equal(t, "c.0.0", res.Retry.Target)
	assert.Equal(t, e.buf.Text(), res.Retry.Text)
	assert.Empty(t, e.store.Live("c.6.0").Pending)

	full := module(assign(1, "x", "1"), assign(2, "y", "2"), assign(3, "z", "3"))

	res, err = e.rec.Receive(ctx, resolve.Response{Request: *res.Retry, Tree: full}, e.buf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, []string{"insert c.0.0[2] assignment"}, res.Script.Strings())

	e.stage.Checkpoint(ctx, history.CheckpointSave)

	assert.Equal(t, "x = 1\ny = 2\nz = 3", e.store.Render("c.0.1"))
	assert.Equal(t, []string{"c.1.0", "c.4.0", "c.7.0"}, e.code(t, "c.0.1").Children())
	assert.Equal(t, "c.7.0", e.store.Live("c.4.0").Right)
	assert.Equal(t, nodey.Span{Start: pos(1, 4), End: pos(1, 5)}, e.store.Live("c.6.0").Span)
	assert.Equal(t, "3", e.code(t, "c.9.0").LiteralString())
	assert.Empty(t, e.store.Stars())
}

func TestReconciler_RemoveStatement(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	ctx := context.Background()

	_, err := e.buf.Replace(pos(0, 5), pos(1, 5), "")
	require.NoError(t, err)

	req := e.rec.Tracker().RepairCell(ctx, "c.0.0", e.buf)

	res, err := e.rec.Receive(ctx, resolve.Response{Request: req, Tree: module(assign(1, "x", "1"))}, e.buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"remove c.0.0 c.4.0"}, res.Script.Strings())

	e.stage.Checkpoint(ctx, history.CheckpointSave)

	assert.Equal(t, []string{"c.1.0"}, e.code(t, "c.0.1").Children())
	assert.Equal(t, "x = 1", e.store.Render("c.0.1"))
	assert.Empty(t, e.store.Live("c.1.0").Right)
}

func TestReconciler_ParseError(t *testing.T) {
	t.Parallel()

	e := seeded(t)
	ctx := context.Background()

	req := e.rec.Tracker().RepairCell(ctx, "c.0.0", e.buf)

	_, err := e.rec.Receive(ctx, resolve.Response{Request: req}, e.buf)
	require.ErrorIs(t, err, parsetree.ErrEmptyTree)

	req = e.rec.Tracker().RepairCell(ctx, "c.0.0", editor.NewBuffer(source))
	_, err = e.rec.Receive(ctx, resolve.Response{Request: req, Err: assert.AnError}, e.buf)
	require.ErrorIs(t, err, assert.AnError)
}
