package resolve

import (
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// FindNodeAtRange returns the head name of the deepest node under cell whose
// live span contains r. The cell itself is returned when no descendant does.
func FindNodeAtRange(s *history.Store, cell string, r nodey.Span) string {
	name := s.HeadName(cell)

	for {
		next := ""

		for _, child := range childNames(s, name) {
			if s.Live(child).Span.Contains(r) {
				next = child

				break
			}
		}

		if next == "" {
			return name
		}

		name = next
	}
}

// childNames lists the children of the newest state of name.
func childNames(s *history.Store, name string) []string {
	n, ok := s.Latest(name)
	if !ok {
		return nil
	}

	return nodey.ChildNames(n)
}

// cellOf walks live parents up from name to the enclosing code cell.
func cellOf(s *history.Store, name string) string {
	for name != "" {
		if n, ok := s.Latest(name); ok && n.Kind() == nodey.KindCodeCell {
			return name
		}

		name = s.Live(name).Parent
	}

	return ""
}
