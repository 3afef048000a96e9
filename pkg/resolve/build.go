package resolve

import (
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// Build registers fresh and its descendants as unsaved shadows under
// parent and returns the placeholder name of fresh. Positions are moved
// from fragment coordinates to the live text using anchor.
func Build(st *history.Stage, fresh *parsetree.Node, parent string, anchor nodey.Pos) string {
	n := &nodey.Code{
		Type:  fresh.Type,
		Start: absPos(fresh.Start(), anchor),
		End:   absPos(fresh.End(), anchor),
	}

	if fresh.Literal != nil {
		n.SetLiteral(*fresh.Literal)
	}

	star := st.MarkPendingNewNode(n, parent)
	name := star.Name()

	prior := ""

	for _, it := range fresh.Content {
		if it.IsToken() {
			n.Content = append(n.Content, nodey.TokenItem(*it.Token))

			continue
		}

		child := Build(st, it.Node, name, anchor)
		n.Content = append(n.Content, nodey.RefItem(child))

		if prior != "" {
			st.Store().Live(prior).Right = child
		}

		prior = child
	}

	return name
}
