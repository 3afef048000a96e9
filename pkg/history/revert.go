package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// ErrNotRevertible is returned when Revert is asked to roll back a node that
// is not a cell or the notebook.
var ErrNotRevertible = errors.New("only cells and the notebook can be reverted")

// Revert rolls the identity behind name back to the snapshot name denotes.
// History stays append-only: every identity in the subtree whose latest
// snapshot differs from the target gets a new version at checkpoint cp with
// the old content. Outstanding shadows in the subtree are discarded. When the
// reverted node has a parent, the parent is marked as edited so the next
// commit picks up the new reference.
func (st *Stage) Revert(cp int, name string) (nodey.Nodey, error) {
	if err := st.revertible(name); err != nil {
		return nil, err
	}

	run := st.newRun(context.Background(), cp)

	reverted := st.revertTree(run, name)
	if parent := st.store.Live(reverted).Parent; parent != "" {
		pstar := st.MarkAsEdited(parent)
		rewriteChild(pstar.Value, reverted, reverted)
		st.store.Live(reverted).Parent = pstar.Name()
	}

	st.finish(run)

	return st.store.MustGet(reverted), nil
}

func (st *Stage) revertible(name string) error {
	if nodey.IsStarName(name) || nodey.IsUnsavedName(name) {
		return fmt.Errorf("revert %s: %w: not a committed version", name, ErrUnknownName)
	}

	target, ok := st.store.Get(name)
	if !ok {
		return fmt.Errorf("revert %s: %w", name, ErrUnknownName)
	}

	switch target.Kind() {
	case nodey.KindCodeCell, nodey.KindMarkdown, nodey.KindNotebook:
		return nil
	default:
		return fmt.Errorf("revert %s: %w", name, ErrNotRevertible)
	}
}

// revertTree makes the snapshot named by name the head of its chain again
// and returns the head's name.
func (st *Stage) revertTree(run *commitRun, name string) string {
	h, _ := st.store.HistoryOf(name)
	if star := h.Star(); star != nil {
		st.discard(run, star)
	}

	old := st.store.MustGet(name)
	cp := old.Clone()
	changed := name != nodey.Name(h.LastSaved())

	if nb, ok := cp.(*nodey.Notebook); ok {
		for i, cell := range nb.Cells {
			if head := st.revertTree(run, cell); head != cell {
				nb.Cells[i] = head
				changed = true
			}
		}
	} else if code, ok := nodey.AsCode(cp); ok {
		for i := range code.Content {
			if code.Content[i].IsToken() {
				continue
			}

			child := code.Content[i].Ref
			if head := st.revertTree(run, child); head != child {
				code.Content[i].Ref = head
				changed = true
			}
		}
	}

	if !changed {
		st.resetLive(run, old)

		return name
	}

	if parent := st.store.Live(name).Parent; parent != "" && !nodey.IsStarName(parent) {
		cp.Common().Parent = parent
	}

	st.store.appendVersion(cp, run.cp)

	head := nodey.Name(cp)
	run.fresh[head] = true
	run.appended++
	st.metrics.RecordAppended(run.ctx, cp.Kind().String())
	st.resetLive(run, cp)

	return head
}

// resetLive restores the live state of n's identity from n itself and
// relinks n's children.
func (st *Stage) resetLive(run *commitRun, n nodey.Nodey) {
	l := st.store.Live(nodey.Name(n))
	l.Pending = ""

	if code, ok := nodey.AsCode(n); ok {
		l.Span = code.Span()
	}

	st.relink(run, n)
}

// CommitOutput stores raw as the output of cell at checkpoint cp. A payload
// structurally equal to the cell's current output reuses that version; a
// different payload is appended to the cell's output chain, or starts a new
// one. The cell itself is not modified.
func (st *Stage) CommitOutput(cp int, cell *nodey.CodeCell, raw json.RawMessage) *nodey.Output {
	run := st.newRun(context.Background(), cp)

	return st.commitOutput(run, cell, raw)
}

func (st *Stage) commitOutput(run *commitRun, cell *nodey.CodeCell, raw json.RawMessage) *nodey.Output {
	raw = compactJSON(raw)
	parent := nodey.Name(cell)

	if cell.OutputID != nodey.NoID {
		if h, ok := st.store.History(nodey.KeyOf(nodey.CharOutput, cell.OutputID)); ok && h.Len() > 0 {
			old, _ := h.LastSaved().(*nodey.Output)
			if jsonEqual(old.Raw, raw) {
				return old
			}

			out := &nodey.Output{Base: nodey.Base{ID: old.ID, Parent: parent}, Raw: raw}
			st.store.appendVersion(out, run.cp)
			st.recordOutput(run)

			return out
		}
	}

	out := &nodey.Output{Base: nodey.Base{ID: nodey.NoID, Parent: parent}, Raw: raw}
	st.store.Create(out, run.cp)
	st.recordOutput(run)

	return out
}

func (st *Stage) recordOutput(run *commitRun) {
	run.appended++
	st.metrics.RecordAppended(run.ctx, nodey.KindOutput.String())
}

// sameOutput reports whether raw equals the output cell currently points at.
func (st *Stage) sameOutput(cell *nodey.CodeCell, raw json.RawMessage) bool {
	if cell.OutputID == nodey.NoID {
		return false
	}

	n, ok := st.store.Get(nodey.KeyOf(nodey.CharOutput, cell.OutputID) + "." + fmt.Sprint(cell.OutputVer))
	if !ok {
		return false
	}

	out, _ := n.(*nodey.Output)

	return jsonEqual(out.Raw, raw)
}

func compactJSON(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}

	return buf.Bytes()
}

// jsonEqual compares two payloads as decoded values so key order and
// whitespace do not matter. Undecodable payloads compare byte-wise.
func jsonEqual(a, b json.RawMessage) bool {
	var va, vb any

	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return bytes.Equal(a, b)
	}

	return reflect.DeepEqual(va, vb)
}
