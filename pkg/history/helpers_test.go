package history_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pos(line, ch int) nodey.Pos { return nodey.Pos{Line: line, Ch: ch} }

func leaf(id int, typ, lit, parent, right string, start, end nodey.Pos) *nodey.Code {
	c := &nodey.Code{
		Base:  nodey.Base{ID: id, Parent: parent},
		Type:  typ,
		Start: start,
		End:   end,
		Right: right,
	}
	c.SetLiteral(lit)

	return c
}

// newFixture stores the notebook
//
//	n.0 -> [c.0 (code cell), m.0 (markdown)]
//	c.0 "x = 1\ny = 2" -> [c.1 "x = 1", c.4 "y = 2"]
//	c.1 -> [c.2 "x", "=", c.3 "1"]
//	c.4 -> [c.5 "y", "=", c.6 "2"]
//
// at checkpoint 0.
func newFixture(t *testing.T) *history.Store {
	t.Helper()

	s := history.NewStore()
	s.SetClock(func() time.Time { return fixedTime })

	cp := s.NewCheckpoint(history.CheckpointSeed).ID

	nodes := []nodey.Nodey{
		&nodey.Notebook{Base: nodey.Base{ID: 0}, Cells: []string{"c.0.0", "m.0.0"}},
		&nodey.CodeCell{
			Code: nodey.Code{
				Base:    nodey.Base{ID: 0, Parent: "n.0.0"},
				Type:    "module",
				Start:   pos(0, 0),
				End:     pos(1, 5),
				Content: []nodey.Item{nodey.RefItem("c.1.0"), nodey.RefItem("c.4.0")},
			},
			OutputID:  nodey.NoID,
			OutputVer: nodey.NoVersion,
		},
		&nodey.Code{
			Base:    nodey.Base{ID: 1, Parent: "c.0.0"},
			Type:    "assignment",
			Start:   pos(0, 0),
			End:     pos(0, 5),
			Right:   "c.4.0",
			Content: []nodey.Item{nodey.RefItem("c.2.0"), nodey.TokenItem("="), nodey.RefItem("c.3.0")},
		},
		leaf(2, "identifier", "x", "c.1.0", "c.3.0", pos(0, 0), pos(0, 1)),
		leaf(3, "integer", "1", "c.1.0", "", pos(0, 4), pos(0, 5)),
		&nodey.Code{
			Base:    nodey.Base{ID: 4, Parent: "c.0.0"},
			Type:    "assignment",
			Start:   pos(1, 0),
			End:     pos(1, 5),
			Content: []nodey.Item{nodey.RefItem("c.5.0"), nodey.TokenItem("="), nodey.RefItem("c.6.0")},
		},
		leaf(5, "identifier", "y", "c.4.0", "c.6.0", pos(1, 0), pos(1, 1)),
		leaf(6, "integer", "2", "c.4.0", "", pos(1, 4), pos(1, 5)),
		&nodey.Markdown{Base: nodey.Base{ID: 0, Parent: "n.0.0"}, Markdown: "# title"},
	}

	for _, n := range nodes {
		s.Create(n, cp)
	}

	return s
}

// cells is an in-memory CellSource.
type cells struct {
	text   map[string]string
	output map[string]json.RawMessage
}

func newCells() *cells {
	return &cells{text: map[string]string{}, output: map[string]json.RawMessage{}}
}

func (c *cells) CellText(key string) (string, bool) {
	text, ok := c.text[key]

	return text, ok
}

func (c *cells) CellOutput(key string) (json.RawMessage, bool) {
	raw, ok := c.output[key]

	return raw, ok
}
