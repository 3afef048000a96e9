package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/verstree/pkg/editor"
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
)

// Tracker localises edits and keeps live spans in step with the text.
type Tracker struct {
	store    *history.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.HistoryMetrics
	newToken func() string
}

// NewTracker creates a tracker over store.
func NewTracker(store *history.Store, opts ...Option) *Tracker {
	o := newOptions(opts)

	return &Tracker{
		store:    store,
		logger:   o.logger,
		tracer:   o.tracer,
		metrics:  o.metrics,
		newToken: o.newToken,
	}
}

// Repair applies change to the live spans of cell and issues a parse
// request for the smallest node containing the edit. The change's
// positions refer to the text before the edit; doc must already hold the
// text after it.
func (t *Tracker) Repair(ctx context.Context, cell string, change editor.Change, doc editor.Document) Request {
	ctx, span := t.tracer.Start(ctx, "verstree.resolve.repair")
	defer span.End()

	target := FindNodeAtRange(t.store, cell, change.Span())
	l := t.store.Live(target)

	t.shiftChildren(ctx, target, change)

	if l.Span.End.Before(change.To) {
		l.Span.End = change.End()
	} else {
		l.Span.End = change.Shift(l.Span.End)
	}

	t.ascend(ctx, target, change)

	// An ancestor still waiting for its parse read its text before this
	// edit. Asking again for the ancestor covers both edits.
	target = t.widen(target)
	l = t.store.Live(target)

	req := t.issue(ctx, target, doc.Range(l.Span.Start, l.Span.End))

	span.SetAttributes(
		attribute.String("resolve.target", target),
		attribute.Int("resolve.delta_line", change.DeltaLine()),
		attribute.Int("resolve.delta_ch", change.DeltaCh()),
	)
	t.logger.DebugContext(ctx, "repair",
		"target", target,
		"delta_line", change.DeltaLine(),
		"delta_ch", change.DeltaCh(),
	)

	return req
}

// RepairCell issues a parse request for the whole cell, resetting its live
// span to cover doc.
func (t *Tracker) RepairCell(ctx context.Context, cell string, doc editor.Document) Request {
	head := t.store.HeadName(cell)
	text := doc.Text()

	l := t.store.Live(head)
	l.Span = nodey.Span{End: endOf(text)}

	return t.issue(ctx, head, text)
}

func (t *Tracker) issue(ctx context.Context, target, text string) Request {
	token := t.newToken()
	t.invalidate(target)
	t.store.Live(target).Pending = token
	t.metrics.RecordParseRequest(ctx)

	req := Request{
		Target: target,
		Token:  token,
		Text:   text,
		Anchor: t.store.Live(target).Span.Start,
	}

	if n, ok := t.store.Latest(target); ok {
		if code, ok := nodey.AsCode(n); ok {
			req.Type = code.Type
		}
	}

	req.Cell = cellOf(t.store, target)

	return req
}

// widen returns the outermost ancestor of name inside its cell with a
// parse outstanding, or name when there is none.
func (t *Tracker) widen(name string) string {
	out := name

	for cur := name; ; {
		if n, ok := t.store.Latest(cur); !ok || n.Kind() == nodey.KindCodeCell {
			return out
		}

		parent := t.store.Live(cur).Parent
		if parent == "" {
			return out
		}

		if t.store.Live(parent).Pending != "" {
			out = parent
		}

		cur = parent
	}
}

// invalidate drops the pending tokens of every descendant of name. The
// request for name covers their text.
func (t *Tracker) invalidate(name string) {
	for _, child := range childNames(t.store, name) {
		t.store.Live(child).Pending = ""
		t.invalidate(child)
	}
}

// shiftChildren moves the children of target that start after the edit.
func (t *Tracker) shiftChildren(ctx context.Context, target string, change editor.Change) {
	for _, child := range childNames(t.store, target) {
		if !t.store.Live(child).Span.Start.Before(change.To) {
			t.shiftTree(ctx, child, change)
		}
	}
}

// ascend widens every ancestor of name up to the cell and moves the right
// siblings met on the way.
func (t *Tracker) ascend(ctx context.Context, name string, change editor.Change) {
	for {
		if n, ok := t.store.Latest(name); !ok || n.Kind() == nodey.KindCodeCell {
			return
		}

		t.shiftRight(ctx, name, change)

		parent := t.store.Live(name).Parent
		if parent == "" {
			return
		}

		pl := t.store.Live(parent)
		pl.Span.End = change.Shift(pl.Span.End)
		name = parent
	}
}

// shiftRight moves the right siblings of name. Once a sibling starts on a
// later line than the edit and no lines were added or removed, nothing
// after it can move either.
func (t *Tracker) shiftRight(ctx context.Context, name string, change editor.Change) {
	for sib := t.store.Live(name).Right; sib != ""; sib = t.store.Live(sib).Right {
		_, span := t.tracer.Start(ctx, observability.SpanShift)
		moved := t.shiftTree(ctx, sib, change)
		span.End()

		if !moved && change.DeltaLine() == 0 {
			return
		}
	}
}

// shiftTree moves name and all its descendants. It reports whether the
// start of name moved.
func (t *Tracker) shiftTree(ctx context.Context, name string, change editor.Change) bool {
	l := t.store.Live(name)
	before := l.Span.Start

	l.Span.Start = change.Shift(l.Span.Start)
	l.Span.End = change.Shift(l.Span.End)

	for _, child := range childNames(t.store, name) {
		t.shiftTree(ctx, child, change)
	}

	return l.Span.Start != before
}

func endOf(text string) nodey.Pos {
	line := strings.Count(text, "\n")
	if line == 0 {
		return nodey.Pos{Ch: len(text)}
	}

	return nodey.Pos{Line: line, Ch: len(text) - strings.LastIndexByte(text, '\n') - 1}
}

func defaultToken() string { return uuid.NewString() }
