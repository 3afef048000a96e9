package resolve_test

import (
	"testing"

	"github.com/Sumatoshi-tech/verstree/pkg/editor"
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
	"github.com/Sumatoshi-tech/verstree/pkg/resolve"
)

const source = "x = 1\ny = 2"

func pos(line, ch int) nodey.Pos { return nodey.Pos{Line: line, Ch: ch} }

func lit(typ, text string, line, col int) *parsetree.Node {
	return &parsetree.Node{Type: typ, Literal: &text, Line: line, Col: col}
}

func node(typ string, items ...parsetree.Item) *parsetree.Node {
	return &parsetree.Node{Type: typ, Content: items}
}

// assign builds "name = value" on a one-based line, with single character
// names.
func assign(line int, name, value string) *parsetree.Node {
	return node("assignment",
		parsetree.NodeItem(lit("identifier", name, line, 0)),
		parsetree.TokenItem("="),
		parsetree.NodeItem(lit("integer", value, line, 4)),
	)
}

func module(stmts ...*parsetree.Node) *parsetree.Node {
	items := make([]parsetree.Item, len(stmts))
	for i, s := range stmts {
		items[i] = parsetree.NodeItem(s)
	}

	return node("module", items...)
}

// fragment wraps a reparsed node the way a parser does for a snippet.
func fragment(n *parsetree.Node) *parsetree.Node {
	return node("module", parsetree.NodeItem(node("expression_statement", parsetree.NodeItem(n))))
}

type env struct {
	store *history.Store
	stage *history.Stage
	rec   *resolve.Reconciler
	buf   *editor.Buffer
}

// seeded stores source as c.0 -> [c.1 "x = 1" -> [c.2, "=", c.3],
// c.4 "y = 2" -> [c.5, "=", c.6]] under notebook n.0.
func seeded(t *testing.T) *env {
	t.Helper()

	s := history.NewStore()
	cp := s.NewCheckpoint(history.CheckpointSeed)
	resolve.Seed(s, cp.ID, module(assign(1, "x", "1"), assign(2, "y", "2")), source)

	st := history.NewStage(s)

	return &env{store: s, stage: st, rec: resolve.NewReconciler(st), buf: editor.NewBuffer(source)}
}

func (e *env) code(t *testing.T, name string) *nodey.Code {
	t.Helper()

	n, ok := e.store.Get(name)
	if !ok {
		t.Fatalf("no node %s", name)
	}

	c, ok := nodey.AsCode(n)
	if !ok {
		t.Fatalf("%s is not code", name)
	}

	return c
}
