package resolve

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// Command is one edit script entry. Targets are names of stale nodes as
// seen when the script was built; applying marks them as edited.
type Command interface {
	Apply(st *history.Stage)
	String() string
}

// Script is an ordered list of commands.
type Script []Command

// Apply runs every command in order.
func (s Script) Apply(st *history.Stage) {
	for _, c := range s {
		c.Apply(st)
	}
}

// Strings renders the script for logs and tests.
func (s Script) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.String()
	}

	return out
}

// Relabel replaces the literal of a leaf.
type Relabel struct {
	Target  string
	Literal string
}

// Apply implements Command.
func (c Relabel) Apply(st *history.Stage) {
	edited(st, c.Target).SetLiteral(c.Literal)
}

func (c Relabel) String() string { return fmt.Sprintf("relabel %s %q", c.Target, c.Literal) }

// RelabelToken replaces one syntax token of Target with a new token.
type RelabelToken struct {
	Target string
	Token  *nodey.SyntaxToken
	Text   string
}

// Apply implements Command.
func (c RelabelToken) Apply(st *history.Stage) {
	code := edited(st, c.Target)

	i := tokenIndex(code, c.Token)
	if i < 0 {
		panic(fmt.Sprintf("resolve: %s lost token %q", c.Target, c.Token.Tokens))
	}

	code.Content[i] = nodey.TokenItem(c.Text)
}

func (c RelabelToken) String() string {
	return fmt.Sprintf("relabel-token %s %q->%q", c.Target, c.Token.Tokens, c.Text)
}

// Insert adds a fresh content entry to Target at Index, building a new
// subtree for a node entry. Fresh positions are relative to Anchor.
type Insert struct {
	Target string
	Index  int
	Fresh  parsetree.Item
	Anchor nodey.Pos
}

// Apply implements Command.
func (c Insert) Apply(st *history.Stage) {
	star := st.MarkAsEdited(c.Target)
	code, _ := nodey.AsCode(star.Value)

	var item nodey.Item
	if c.Fresh.IsToken() {
		item = nodey.TokenItem(*c.Fresh.Token)
	} else {
		item = nodey.RefItem(Build(st, c.Fresh.Node, star.Name(), c.Anchor))
	}

	index := min(max(c.Index, 0), len(code.Content))
	code.Content = slices.Insert(code.Content, index, item)

	link(st.Store(), star.Name(), code)
}

func (c Insert) String() string {
	if c.Fresh.IsToken() {
		return fmt.Sprintf("insert %s[%d] token %q", c.Target, c.Index, *c.Fresh.Token)
	}

	return fmt.Sprintf("insert %s[%d] %s", c.Target, c.Index, c.Fresh.Node.Type)
}

// Reorder puts the listed items of Target into the listed order. Items
// are the stale entries paired by the matcher; a node entry also matches
// any shadow of the node it names.
type Reorder struct {
	Target string
	Order  []nodey.Item
}

// Apply implements Command.
func (c Reorder) Apply(st *history.Stage) {
	star := st.MarkAsEdited(c.Target)
	code, _ := nodey.AsCode(star.Value)

	slots := make([]int, 0, len(c.Order))
	current := make([]nodey.Item, 0, len(c.Order))

	for _, want := range c.Order {
		i := slices.IndexFunc(code.Content, func(it nodey.Item) bool { return sameItem(it, want) })
		if i < 0 {
			panic(fmt.Sprintf("resolve: %s lost an item to reorder", c.Target))
		}

		slots = append(slots, i)
		current = append(current, code.Content[i])
	}

	sorted := slices.Clone(slots)
	slices.Sort(sorted)

	for i, slot := range sorted {
		code.Content[slot] = current[i]
	}

	link(st.Store(), star.Name(), code)
}

func (c Reorder) String() string {
	names := make([]string, len(c.Order))
	for i, it := range c.Order {
		if it.IsToken() {
			names[i] = fmt.Sprintf("%q", it.Token.Tokens)
		} else {
			names[i] = it.Ref
		}
	}

	return fmt.Sprintf("reorder %s %v", c.Target, names)
}

// Remove drops the child Child from Target. A shadow of the child is
// discarded.
type Remove struct {
	Target string
	Child  string
}

// Apply implements Command.
func (c Remove) Apply(st *history.Stage) {
	star := st.MarkAsEdited(c.Target)

	if _, ok := st.Store().StarOf(c.Child); ok {
		st.Discard(c.Child)
	}

	code, _ := nodey.AsCode(star.Value)
	code.Content = slices.DeleteFunc(code.Content, func(it nodey.Item) bool {
		return !it.IsToken() && sameNode(it.Ref, c.Child)
	})

	link(st.Store(), star.Name(), code)
}

func (c Remove) String() string { return fmt.Sprintf("remove %s %s", c.Target, c.Child) }

// RemoveToken drops one syntax token from Target.
type RemoveToken struct {
	Target string
	Token  *nodey.SyntaxToken
}

// Apply implements Command.
func (c RemoveToken) Apply(st *history.Stage) {
	code := edited(st, c.Target)

	if i := tokenIndex(code, c.Token); i >= 0 {
		code.Content = slices.Delete(code.Content, i, i+1)
	}
}

func (c RemoveToken) String() string {
	return fmt.Sprintf("remove-token %s %q", c.Target, c.Token.Tokens)
}

func edited(st *history.Stage, name string) *nodey.Code {
	code, ok := nodey.AsCode(st.MarkAsEdited(name).Value)
	if !ok {
		panic(fmt.Sprintf("resolve: %s is not a code node", name))
	}

	return code
}

func tokenIndex(code *nodey.Code, tok *nodey.SyntaxToken) int {
	return slices.IndexFunc(code.Content, func(it nodey.Item) bool { return it.Token == tok })
}

func sameItem(a, b nodey.Item) bool {
	if a.IsToken() || b.IsToken() {
		return a.Token == b.Token
	}

	return sameNode(a.Ref, b.Ref)
}

// sameNode reports whether two names denote the same node, whichever
// version or shadow each one names.
func sameNode(a, b string) bool {
	if a == b {
		return true
	}

	ka, okA := nodey.KeyFromName(a)
	kb, okB := nodey.KeyFromName(b)

	return okA && okB && ka == kb
}

// link points the live parent of every child of code at parent and chains
// their right siblings in content order.
func link(s *history.Store, parent string, code *nodey.Code) {
	children := code.Children()

	for i, child := range children {
		l := s.Live(child)
		l.Parent = parent
		l.Right = ""

		if i+1 < len(children) {
			l.Right = children[i+1]
		}
	}
}
