package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Sumatoshi-tech/verstree/pkg/levenshtein"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
)

// CellSource supplies the live state of cells at commit time. It is keyed
// by identity key ("c.3", "m.1").
type CellSource interface {
	CellText(key string) (string, bool)
	CellOutput(key string) (json.RawMessage, bool)
}

// Stage marks nodes as edited and commits or discards their shadows.
type Stage struct {
	store   *Store
	cells   CellSource
	logger  *slog.Logger
	metrics *observability.HistoryMetrics
	lev     levenshtein.Context
}

// Option configures a Stage.
type Option func(*Stage)

// WithCellSource sets the live cell collaborator.
func WithCellSource(cs CellSource) Option {
	return func(st *Stage) { st.cells = cs }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(st *Stage) { st.logger = logger }
}

// WithMetrics sets the commit counters.
func WithMetrics(m *observability.HistoryMetrics) Option {
	return func(st *Stage) { st.metrics = m }
}

// NewStage creates a stage over store.
func NewStage(store *Store, opts ...Option) *Stage {
	st := &Stage{store: store}
	for _, opt := range opts {
		opt(st)
	}

	st.logger = observability.OrDefault(st.logger)

	return st
}

// Store returns the underlying store.
func (st *Stage) Store() *Store { return st.store }

// MarkAsEdited returns the shadow of name's identity, creating it from the
// last snapshot when none exists. Creating a shadow shadows every ancestor
// up to the root and points each ancestor's child list at the new name.
func (st *Stage) MarkAsEdited(name string) *Star {
	if star, ok := st.store.StarOf(name); ok {
		return star
	}

	h, ok := st.store.HistoryOf(name)
	if !ok || h.Len() == 0 {
		panic(fmt.Sprintf("history: mark as edited: %v: %s", ErrUnknownName, name))
	}

	last := h.LastSaved()
	if last.Kind() == nodey.KindOutput {
		panic("history: outputs are committed through CommitOutput")
	}

	star := &Star{Value: last.Clone()}
	star.Value.Common().Version = nodey.NoVersion
	h.SetLatestToStar(star)

	if parent := st.store.Live(name).Parent; parent != "" {
		st.markParentAsEdited(star, nodey.Name(last), parent)
	}

	return star
}

func (st *Stage) markParentAsEdited(star *Star, oldName, parentName string) {
	parent := st.MarkAsEdited(parentName)

	st.store.Live(star.Name()).Parent = parent.Name()
	rewriteChild(parent.Value, oldName, star.Name())
}

// MarkPendingNewNode registers n as an unsaved shadow under parent. The
// caller links the returned star's name into the parent's content.
func (st *Stage) MarkPendingNewNode(n *nodey.Code, parent string) *Star {
	n.ID = nodey.NoID
	n.Version = nodey.NoVersion

	star := &Star{Value: n, Unsaved: true, CellID: st.cellIDOf(parent)}
	st.store.storeUnsaved(star, &Live{Span: n.Span(), Parent: parent, Right: n.Right})

	return star
}

// cellIDOf walks up from name to the enclosing code cell.
func (st *Stage) cellIDOf(name string) int {
	for range maxDepth {
		if star, ok := st.store.unsaved[name]; ok {
			return star.CellID
		}

		n, ok := st.store.Latest(name)
		if !ok {
			panic(fmt.Sprintf("history: %v: %s", ErrUnknownName, name))
		}

		if cell, ok := n.(*nodey.CodeCell); ok {
			return cell.ID
		}

		name = st.store.Live(name).Parent
		if name == "" {
			break
		}
	}

	panic("history: code node outside of any cell")
}

// maxDepth bounds parent walks so a corrupted parent cycle fails loudly.
const maxDepth = 1 << 12

// commitRun accumulates one commit pass.
type commitRun struct {
	ctx       context.Context
	cp        int
	fresh     map[string]bool
	promoted  map[string]string
	cells     []CellChange
	appended  int
	discarded int
}

func (st *Stage) newRun(ctx context.Context, cp int) *commitRun {
	return &commitRun{
		ctx:      ctx,
		cp:       cp,
		fresh:    make(map[string]bool),
		promoted: make(map[string]string),
	}
}

// Summary describes the outcome of a commit pass.
type Summary struct {
	Checkpoint int
	Notebook   string
	Appended   int
	Discarded  int
	Cells      []CellChange
}

// Commit commits the shadow named by name at checkpoint cp and returns the
// resulting node: the new version when something changed, the prior snapshot
// otherwise. A name without a shadow returns its latest node unchanged.
func (st *Stage) Commit(cp int, name string) nodey.Nodey {
	run := st.newRun(context.Background(), cp)
	n := st.commit(run, name)
	st.finish(run)

	return n
}

// CommitAll commits every outstanding shadow reachable from the notebook.
func (st *Stage) CommitAll(ctx context.Context, cp int) Summary {
	run := st.newRun(ctx, cp)

	nb := st.store.Notebook()
	if nb != "" {
		committed := st.commit(run, nb)
		nb = nodey.Name(committed)
	}

	st.finish(run)

	return Summary{
		Checkpoint: cp,
		Notebook:   nb,
		Appended:   run.appended,
		Discarded:  run.discarded,
		Cells:      run.cells,
	}
}

func (st *Stage) finish(run *commitRun) {
	st.logger.InfoContext(run.ctx, "commit",
		"checkpoint", run.cp,
		"appended", run.appended,
		"discarded", run.discarded,
	)
}

func (st *Stage) commit(run *commitRun, name string) nodey.Nodey {
	star, ok := st.store.StarOf(name)
	if !ok {
		if promoted, ok := run.promoted[name]; ok {
			return st.store.MustGet(promoted)
		}

		n, found := st.store.Latest(name)
		if !found {
			panic(fmt.Sprintf("history: commit: %v: %s", ErrUnknownName, name))
		}

		return n
	}

	switch star.Value.(type) {
	case *nodey.Notebook:
		return st.commitNotebook(run, star)
	case *nodey.CodeCell:
		return st.commitCodeCell(run, star)
	case *nodey.Markdown:
		return st.commitMarkdown(run, star)
	case *nodey.Code:
		return st.commitEnclosing(run, star)
	default:
		panic(fmt.Sprintf("history: cannot commit shadow %s", star.Name()))
	}
}

// commitEnclosing commits a bare code shadow through the cell that owns it.
func (st *Stage) commitEnclosing(run *commitRun, star *Star) nodey.Nodey {
	name := star.Name()
	cell := name

	for range maxDepth {
		if n, ok := st.store.Latest(cell); ok && n.Kind() == nodey.KindCodeCell {
			break
		}

		cell = st.store.Live(cell).Parent
		if cell == "" {
			panic("history: code node outside of any cell")
		}
	}

	st.commit(run, cell)

	if promoted, ok := run.promoted[name]; ok {
		return st.store.MustGet(promoted)
	}

	n, _ := st.store.Latest(name)

	return n
}

func (st *Stage) commitNotebook(run *commitRun, star *Star) nodey.Nodey {
	value, _ := star.Value.(*nodey.Notebook)

	for _, cell := range slices.Clone(value.Cells) {
		st.recordCell(run, cell)
	}

	if !st.changed(star) {
		return st.discard(run, star)
	}

	nb := st.deStar(run, star)
	name := nodey.Name(nb)

	for _, cell := range value.Cells {
		st.setParent(run, cell, name)
	}

	return nb
}

// recordCell commits a starred cell and notes what happened to it.
func (st *Stage) recordCell(run *commitRun, cell string) {
	change := CellChange{Name: cell, Change: ChangeUnchanged}

	if _, starred := st.store.StarOf(cell); starred {
		before := run.appended
		n := st.commit(run, cell)

		change.Name = nodey.Name(n)
		if run.appended > before {
			change.Change = ChangeChanged
		}
	}

	if n, ok := st.store.Get(change.Name); ok && n.Common().Created == run.cp {
		change.Change = ChangeChanged
		if n.Common().Version == 0 {
			change.Change = ChangeAdded
		}
	}

	run.cells = append(run.cells, change)
}

func (st *Stage) commitCodeCell(run *commitRun, star *Star) nodey.Nodey {
	starName := star.Name()
	parent := st.store.Live(starName).Parent
	value, _ := star.Value.(*nodey.CodeCell)
	key := nodey.Key(value)

	raw, hasOutput := st.cellOutput(key)

	var cell nodey.Nodey

	if st.changed(star) || (hasOutput && !st.sameOutput(value, raw)) {
		if text, ok := st.cellText(key); ok {
			value.Text = text
		}

		committed, _ := st.deStar(run, star).(*nodey.CodeCell)
		output := ""

		if hasOutput {
			out := st.commitOutput(run, committed, raw)
			committed.OutputID, committed.OutputVer = out.ID, out.Version
			output = nodey.Name(out)
		} else if committed.OutputID != nodey.NoID {
			output = nodey.KeyOf(nodey.CharOutput, committed.OutputID) + "." + fmt.Sprint(committed.OutputVer)
		}

		st.commitCode(run, &committed.Code, nodey.Name(committed), output)
		st.store.cleanOutStars(committed.ID)

		cell = committed
	} else {
		cell = st.discard(run, star)
	}

	st.updateParent(cell, starName, parent)

	return cell
}

func (st *Stage) commitMarkdown(run *commitRun, star *Star) nodey.Nodey {
	starName := star.Name()
	parent := st.store.Live(starName).Parent
	value, _ := star.Value.(*nodey.Markdown)

	if text, ok := st.cellText(nodey.Key(value)); ok {
		value.Markdown = text
	}

	var n nodey.Nodey
	if st.changed(star) {
		n = st.deStar(run, star)
	} else {
		n = st.discard(run, star)
	}

	st.updateParent(n, starName, parent)

	return n
}

// commitCode promotes the shadowed descendants of a freshly committed code
// node depth first, then rewrites parent and right-sibling links of every
// child and threads the output name through the new versions.
func (st *Stage) commitCode(run *commitRun, parent *nodey.Code, parentName, output string) {
	prior := ""

	for i := range parent.Content {
		if parent.Content[i].IsToken() {
			continue
		}

		child := parent.Content[i].Ref

		if star, ok := st.store.StarOf(child); ok {
			n := st.deStar(run, star)

			code, ok := nodey.AsCode(n)
			if !ok {
				panic(fmt.Sprintf("history: %s holds a non-code child %s", parentName, child))
			}

			code.Output = output
			child = nodey.Name(n)
			st.setParent(run, child, parentName)
			st.commitCode(run, code, child, output)
		} else {
			if nodey.IsUnsavedName(child) {
				panic(fmt.Sprintf("history: %s references dropped node %s", parentName, child))
			}

			child = st.store.HeadName(child)
			st.setParent(run, child, parentName)
		}

		parent.Content[i].Ref = child

		if prior != "" {
			st.setRight(run, prior, child)
		}

		prior = child
	}

	if prior != "" {
		st.setRight(run, prior, "")
	}
}

func (st *Stage) deStar(run *commitRun, star *Star) nodey.Nodey {
	before := star.Name()

	var n nodey.Nodey

	if star.Unsaved {
		n = st.store.promote(star, run.cp)
		run.promoted[before] = nodey.Name(n)
	} else {
		h, _ := st.store.HistoryOf(before)
		n = h.DeStar(run.cp)
	}

	name := nodey.Name(n)
	l := st.store.Live(name)

	n.Common().Parent = l.Parent
	if code, ok := nodey.AsCode(n); ok {
		code.Start, code.End = l.Span.Start, l.Span.End
		code.Right = l.Right
	}

	run.fresh[name] = true
	run.appended++
	st.metrics.RecordAppended(run.ctx, n.Kind().String())

	return n
}

// Discard drops the shadow of name's identity and every shadow below it
// without leaving a version. It returns the prior snapshot, or nil for a
// node that was never committed.
func (st *Stage) Discard(name string) nodey.Nodey {
	star, ok := st.store.StarOf(name)
	if !ok {
		n, _ := st.store.Latest(name)

		return n
	}

	run := st.newRun(context.Background(), -1)
	starName := star.Name()
	parent := st.store.Live(starName).Parent

	n := st.discard(run, star)
	st.updateParent(n, starName, parent)

	return n
}

func (st *Stage) discard(run *commitRun, star *Star) nodey.Nodey {
	for _, child := range nodey.ChildNames(star.Value) {
		if cs, ok := st.store.StarOf(child); ok {
			st.discard(run, cs)
		}
	}

	run.discarded++
	st.metrics.RecordDiscarded(run.ctx, star.Value.Kind().String())

	if star.Unsaved {
		st.store.dropUnsaved(star.Name())

		return nil
	}

	h, _ := st.store.HistoryOf(star.Name())
	prior := h.DiscardStar()
	st.relink(run, prior)

	return prior
}

// updateParent points a shadowed parent at the committed or restored name
// of a child that just left the shadow state. A nil n removes the
// reference. MarkAsEdited shadows every ancestor of a shadow and children
// leave the shadow state before their parent, so the parent is always
// shadowed here.
func (st *Stage) updateParent(n nodey.Nodey, starName, parentName string) {
	if parentName == "" {
		return
	}

	pstar, ok := st.store.StarOf(parentName)
	if !ok {
		panic(fmt.Sprintf("history: %s left the shadow state under unshadowed parent %s", starName, parentName))
	}

	if n == nil {
		removeChild(pstar.Value, starName)

		return
	}

	nodey.ReplaceChildName(pstar.Value, starName, nodey.Name(n))
}

// relink resets the live parent and sibling links of n's children to
// match its content order.
func (st *Stage) relink(run *commitRun, n nodey.Nodey) {
	name := nodey.Name(n)

	if nb, ok := n.(*nodey.Notebook); ok {
		for _, cell := range nb.Cells {
			st.setParent(run, cell, name)
		}

		return
	}

	prior := ""

	for _, child := range nodey.ChildNames(n) {
		st.setParent(run, child, name)

		if prior != "" {
			st.setRight(run, prior, child)
		}

		prior = child
	}

	if prior != "" {
		st.setRight(run, prior, "")
	}
}

func (st *Stage) setParent(run *commitRun, name, parent string) {
	st.store.Live(name).Parent = parent

	// A snapshot may only carry a placeholder parent until its parent commits.
	base := st.store.MustGet(name).Common()
	if run.fresh[name] || nodey.IsStarName(base.Parent) || nodey.IsUnsavedName(base.Parent) {
		if !nodey.IsStarName(parent) && !nodey.IsUnsavedName(parent) {
			base.Parent = parent
		}
	}
}

func (st *Stage) setRight(run *commitRun, name, right string) {
	st.store.Live(name).Right = right

	if run.fresh[name] {
		if code, ok := nodey.AsCode(st.store.MustGet(name)); ok {
			code.Right = right
		}
	}
}

// changed reports whether a shadow differs from the last snapshot of its
// identity. Notebooks compare cell lists; text nodes compare text.
func (st *Stage) changed(star *Star) bool {
	if star.Unsaved {
		return true
	}

	h, _ := st.store.HistoryOf(star.Name())
	last := h.LastSaved()

	switch v := star.Value.(type) {
	case *nodey.Notebook:
		prior, _ := last.(*nodey.Notebook)

		return !slices.Equal(prior.Cells, v.Cells)
	case *nodey.Markdown:
		prior, _ := last.(*nodey.Markdown)

		return st.textDiffers(prior.Markdown, v.Markdown)
	case *nodey.CodeCell:
		if cur, ok := st.cellText(nodey.Key(v)); ok {
			return st.textDiffers(st.store.Text(nodey.Name(last)), cur)
		}

		return st.textDiffers(st.store.Render(nodey.Name(last)), st.store.Render(star.Name()))
	default:
		return st.textDiffers(st.store.Render(nodey.Name(last)), st.store.Render(star.Name()))
	}
}

func (st *Stage) textDiffers(prior, cur string) bool {
	if prior != "" && cur != "" {
		return st.lev.Distance(prior, cur) > 0
	}

	return prior != cur
}

func (st *Stage) cellText(key string) (string, bool) {
	if st.cells == nil {
		return "", false
	}

	return st.cells.CellText(key)
}

func (st *Stage) cellOutput(key string) (json.RawMessage, bool) {
	if st.cells == nil {
		return nil, false
	}

	return st.cells.CellOutput(key)
}

// rewriteChild replaces the reference to from in parent with to. A
// reference to another version of the same identity also matches. A parent
// without any such reference breaks the shadow chain and panics.
func rewriteChild(parent nodey.Nodey, from, to string) {
	if nodey.ReplaceChildName(parent, from, to) {
		return
	}

	if key, ok := nodey.KeyFromName(from); ok {
		for _, child := range nodey.ChildNames(parent) {
			if k, ok := nodey.KeyFromName(child); ok && k == key {
				nodey.ReplaceChildName(parent, child, to)

				return
			}
		}
	}

	panic(fmt.Sprintf("history: %s is not a child of %s", from, nodey.Key(parent)))
}

func removeChild(parent nodey.Nodey, name string) {
	switch v := parent.(type) {
	case *nodey.Notebook:
		v.Cells = slices.DeleteFunc(v.Cells, func(c string) bool { return c == name })
	default:
		if code, ok := nodey.AsCode(parent); ok {
			code.Content = slices.DeleteFunc(code.Content, func(it nodey.Item) bool {
				return !it.IsToken() && it.Ref == name
			})
		}
	}
}
