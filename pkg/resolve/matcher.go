package resolve

import (
	"slices"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/levenshtein"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// Mismatch is the score of a fresh node that cannot stand in for a stale one.
const Mismatch = -1

// Match is the alignment of a fresh tree with a stale subtree.
type Match struct {
	// Score is the number of edits the script performs, or Mismatch.
	Score  int
	Script Script
	// Spans holds the absolute span of every stale node that was paired
	// with a fresh node.
	Spans map[string]nodey.Span
}

// Matcher aligns fresh parser trees with stored subtrees. It greedily pairs
// children left to right and never looks for a globally optimal alignment.
type Matcher struct {
	store  *history.Store
	lev    levenshtein.Context
	anchor nodey.Pos
}

// NewMatcher creates a matcher over store.
func NewMatcher(store *history.Store) *Matcher {
	return &Matcher{store: store}
}

// Match aligns fresh against the newest state of the node named stale.
// Fresh positions are relative to anchor.
func (m *Matcher) Match(fresh *parsetree.Node, stale string, anchor nodey.Pos) Match {
	m.anchor = anchor

	res := m.node(fresh, stale)
	if res.score < 0 {
		return Match{Score: Mismatch}
	}

	spans := make(map[string]nodey.Span, len(res.pairs))
	for _, p := range res.pairs {
		spans[p.name] = p.span
	}

	return Match{Score: res.score, Script: res.script, Spans: spans}
}

// ReplaceAll is the script that swaps every child of the stale node for the
// fresh children. It is the fallback for cells whose fresh tree does not
// align at all.
func (m *Matcher) ReplaceAll(fresh *parsetree.Node, stale string, anchor nodey.Pos) Script {
	m.anchor = anchor

	n, _ := m.store.Latest(stale)
	code, _ := nodey.AsCode(n)

	script := Script{}
	if code == nil {
		return script
	}

	for _, it := range code.Content {
		script = append(script, removal(stale, it))
	}

	if fresh.IsLeaf() {
		return append(script, Relabel{Target: stale, Literal: *fresh.Literal})
	}

	for i, it := range fresh.Content {
		script = append(script, m.insert(stale, i, it))
	}

	return script
}

type pair struct {
	name string
	span nodey.Span
}

type result struct {
	score  int
	script Script
	pairs  []pair
}

func (r result) then(next result) result {
	return result{
		score:  r.score + next.score,
		script: append(slices.Clip(r.script), next.script...),
		pairs:  append(slices.Clip(r.pairs), next.pairs...),
	}
}

var mismatch = result{score: Mismatch}

func (m *Matcher) node(fresh *parsetree.Node, name string) result {
	n, ok := m.store.Latest(name)
	if !ok {
		return mismatch
	}

	stale, ok := nodey.AsCode(n)
	if !ok || fresh.Type != stale.Type || fresh.IsLeaf() != stale.IsLeaf() {
		return mismatch
	}

	res := result{pairs: []pair{{name: name, span: m.abs(fresh)}}}

	if fresh.IsLeaf() {
		res.score = m.lev.Distance(*fresh.Literal, stale.LiteralString())
		if res.score > 0 {
			res.script = Script{Relabel{Target: name, Literal: *fresh.Literal}}
		}

		return res
	}

	return res.then(m.children(name, fresh.Content, stale.Content))
}

type candidate struct {
	item     nodey.Item
	consumed bool
	// fresh is the index of the fresh item paired with a consumed candidate.
	fresh int
}

// children aligns content lists. The script removes unmatched stale items
// first, then applies nested edits, then puts the paired items in fresh
// order, then relabels tokens, then inserts at ascending indexes, so each
// insert index is final.
func (m *Matcher) children(target string, fresh []parsetree.Item, stale []nodey.Item) result {
	pool := make([]*candidate, len(stale))
	for i, it := range stale {
		pool[i] = &candidate{item: it}
	}

	res := m.assign(target, fresh, 0, pool)

	var removes, nested, relabels, inserts Script

	for _, c := range pool {
		if !c.consumed {
			res.score++
			removes = append(removes, removal(target, c.item))
		}
	}

	for _, cmd := range res.script {
		switch cmd := cmd.(type) {
		case Insert:
			if cmd.Target == target {
				inserts = append(inserts, cmd)

				continue
			}
		case RelabelToken:
			if cmd.Target == target {
				relabels = append(relabels, cmd)

				continue
			}
		}

		nested = append(nested, cmd)
	}

	slices.SortStableFunc(inserts, func(a, b Command) int {
		return a.(Insert).Index - b.(Insert).Index
	})

	var reorder Script
	if order, crossed := freshOrder(pool); crossed {
		res.score++
		reorder = Script{Reorder{Target: target, Order: order}}
	}

	res.script = slices.Concat(removes, nested, reorder, relabels, inserts)

	return res
}

// freshOrder lists the consumed stale items in the order of their fresh
// partners. crossed is false when that is already their stale order.
func freshOrder(pool []*candidate) (order []nodey.Item, crossed bool) {
	var paired []*candidate

	for _, c := range pool {
		if !c.consumed {
			continue
		}

		if len(paired) > 0 && paired[len(paired)-1].fresh > c.fresh {
			crossed = true
		}

		paired = append(paired, c)
	}

	if !crossed {
		return nil, false
	}

	slices.SortStableFunc(paired, func(a, b *candidate) int { return a.fresh - b.fresh })

	order = make([]nodey.Item, len(paired))
	for i, c := range paired {
		order[i] = c.item
	}

	return order, true
}

// assign pairs fresh[i:] with the unconsumed candidates. A perfect match
// is taken on sight. Otherwise the tail is settled first and the item takes
// the cheapest candidate left, the first one on ties, or is inserted.
func (m *Matcher) assign(target string, fresh []parsetree.Item, i int, pool []*candidate) result {
	if i == len(fresh) {
		return result{}
	}

	type scored struct {
		c   *candidate
		res result
	}

	var options []scored

	for _, c := range pool {
		if c.consumed {
			continue
		}

		res := m.item(target, fresh[i], c.item)
		if res.score < 0 {
			continue
		}

		if res.score == 0 {
			c.consumed = true
			c.fresh = i

			return res.then(m.assign(target, fresh, i+1, pool))
		}

		options = append(options, scored{c: c, res: res})
	}

	rest := m.assign(target, fresh, i+1, pool)

	var best *scored

	for j := range options {
		if options[j].c.consumed {
			continue
		}

		if best == nil || options[j].res.score < best.res.score {
			best = &options[j]
		}
	}

	if best == nil {
		ins := result{score: 1, script: Script{m.insert(target, i, fresh[i])}}

		return ins.then(rest)
	}

	best.c.consumed = true
	best.c.fresh = i

	return best.res.then(rest)
}

// item scores one fresh content entry against one stale entry. Tokens only
// match tokens and nodes only match nodes.
func (m *Matcher) item(target string, fresh parsetree.Item, stale nodey.Item) result {
	switch {
	case fresh.IsToken() && stale.IsToken():
		d := m.lev.Distance(*fresh.Token, stale.Token.Tokens)
		if d == 0 {
			return result{}
		}

		return result{score: d, script: Script{RelabelToken{Target: target, Token: stale.Token, Text: *fresh.Token}}}
	case fresh.IsToken() || stale.IsToken():
		return mismatch
	default:
		return m.node(fresh.Node, stale.Ref)
	}
}

func (m *Matcher) insert(target string, index int, fresh parsetree.Item) Insert {
	return Insert{Target: target, Index: index, Fresh: fresh, Anchor: m.anchor}
}

func removal(target string, it nodey.Item) Command {
	if it.IsToken() {
		return RemoveToken{Target: target, Token: it.Token}
	}

	return Remove{Target: target, Child: it.Ref}
}

func (m *Matcher) abs(fresh *parsetree.Node) nodey.Span {
	return nodey.Span{Start: absPos(fresh.Start(), m.anchor), End: absPos(fresh.End(), m.anchor)}
}

// absPos moves a fragment-relative position to the live text.
func absPos(p, anchor nodey.Pos) nodey.Pos {
	if p.Line == 0 {
		p.Ch += anchor.Ch
	}

	p.Line += anchor.Line

	return p
}
