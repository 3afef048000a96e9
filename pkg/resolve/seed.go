package resolve

import (
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// Seed stores an initial parse as version 0 of a notebook holding a single
// code cell, all stamped with checkpoint cp. It returns the notebook name.
func Seed(s *history.Store, cp int, tree *parsetree.Node, text string) string {
	nb := &nodey.Notebook{Base: nodey.Base{ID: s.NextID(nodey.CharNotebook)}}
	nbName := nodey.Name(nb)

	nb.Cells = []string{SeedCell(s, cp, tree, text, nbName)}
	s.Create(nb, cp)

	return nbName
}

// SeedCell stores an initial parse as version 0 of a new code cell under
// parent and returns the cell name. The caller adds the name to the
// notebook.
func SeedCell(s *history.Store, cp int, tree *parsetree.Node, text, parent string) string {
	parsetree.FillSpans(tree)

	sd := &seeder{store: s, cp: cp, ids: map[*parsetree.Node]int{}}
	sd.reserve(tree)

	cell := &nodey.CodeCell{
		Code:      sd.code(tree, parent, ""),
		OutputID:  nodey.NoID,
		OutputVer: nodey.NoVersion,
		Text:      text,
	}

	name := nodey.Name(cell)
	s.Create(cell, cp)
	sd.children(tree, name)

	return name
}

type seeder struct {
	store *history.Store
	cp    int
	ids   map[*parsetree.Node]int
}

func (sd *seeder) reserve(n *parsetree.Node) {
	sd.ids[n] = sd.store.NextID(nodey.CharCode)
	for _, c := range n.Nodes() {
		sd.reserve(c)
	}
}

func (sd *seeder) name(n *parsetree.Node) string {
	return nodey.KeyOf(nodey.CharCode, sd.ids[n]) + ".0"
}

func (sd *seeder) code(n *parsetree.Node, parent, right string) nodey.Code {
	code := nodey.Code{
		Base:  nodey.Base{ID: sd.ids[n], Parent: parent},
		Type:  n.Type,
		Start: n.Start(),
		End:   n.End(),
		Right: right,
	}

	if n.Literal != nil {
		code.SetLiteral(*n.Literal)
	}

	for _, it := range n.Content {
		if it.IsToken() {
			code.Content = append(code.Content, nodey.TokenItem(*it.Token))
		} else {
			code.Content = append(code.Content, nodey.RefItem(sd.name(it.Node)))
		}
	}

	return code
}

// children stores the descendants of n, whose own name is parent.
func (sd *seeder) children(n *parsetree.Node, parent string) {
	kids := n.Nodes()

	for i, c := range kids {
		right := ""
		if i+1 < len(kids) {
			right = sd.name(kids[i+1])
		}

		code := sd.code(c, parent, right)
		sd.store.Create(&code, sd.cp)
		sd.children(c, sd.name(c))
	}
}
