package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/verstree/pkg/editor"
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// Reconciler drives edits through the tracker and applies parse responses
// whose token is still current. It must be used from a single goroutine.
type Reconciler struct {
	store   *history.Store
	stage   *history.Stage
	tracker *Tracker
	matcher *Matcher
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.HistoryMetrics
}

// NewReconciler creates a reconciler over the stage's store.
func NewReconciler(stage *history.Stage, opts ...Option) *Reconciler {
	o := newOptions(opts)

	return &Reconciler{
		store:   stage.Store(),
		stage:   stage,
		tracker: NewTracker(stage.Store(), opts...),
		matcher: NewMatcher(stage.Store()),
		logger:  o.logger,
		tracer:  o.tracer,
		metrics: o.metrics,
	}
}

// Tracker returns the reconciler's tracker.
func (r *Reconciler) Tracker() *Tracker { return r.tracker }

// Edit records change in cell and returns the parse request for it.
func (r *Reconciler) Edit(ctx context.Context, cell string, change editor.Change, doc editor.Document) Request {
	return r.tracker.Repair(ctx, cell, change, doc)
}

// Receive applies a parse response. A response whose token was superseded
// by a later edit is dropped without effect. doc is the cell's document,
// read only when the whole cell has to be parsed again.
func (r *Reconciler) Receive(ctx context.Context, resp Response, doc editor.Document) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "verstree.resolve.receive",
		trace.WithAttributes(attribute.String("resolve.target", resp.Target)))
	defer span.End()

	l, ok := r.store.LookupLive(resp.Target)
	if !ok || l.Pending == "" || l.Pending != resp.Token {
		r.metrics.RecordStale(ctx)
		r.logger.DebugContext(ctx, "stale parse dropped", "target", resp.Target)

		return Result{Stale: true}, nil
	}

	l.Pending = ""
	anchor := l.Span.Start

	if resp.Err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", resp.Target, resp.Err)
	}

	if resp.Tree == nil {
		return Result{}, fmt.Errorf("parse %s: %w", resp.Target, parsetree.ErrEmptyTree)
	}

	head := r.store.HeadName(resp.Target)

	n, _ := r.store.Latest(head)
	stale, ok := nodey.AsCode(n)
	if !ok {
		return Result{}, fmt.Errorf("parse %s: %w", resp.Target, history.ErrUnknownName)
	}

	isCell := n.Kind() == nodey.KindCodeCell

	fresh := resp.Tree
	parsetree.FillSpans(fresh)
	fresh = parsetree.Reduce(fresh, stale.Type)

	if isCell {
		fresh.Type = stale.Type
	}

	_, mspan := r.tracer.Start(ctx, observability.SpanMatchNode)
	match := r.matcher.Match(fresh, head, anchor)
	mspan.End()

	if match.Score == Mismatch {
		if !isCell {
			retry := r.tracker.RepairCell(ctx, resp.Cell, doc)
			r.logger.DebugContext(ctx, "fresh tree does not align, parsing cell", "target", head)

			return Result{Score: Mismatch, Retry: &retry}, nil
		}

		match.Script = r.matcher.ReplaceAll(fresh, head, anchor)
		match.Score = len(match.Script)
		match.Spans = map[string]nodey.Span{head: r.matcher.abs(fresh)}
	}

	match.Script.Apply(r.stage)

	for name, sp := range match.Spans {
		if live, ok := r.store.LookupLive(name); ok {
			live.Span = sp
		}
	}

	r.metrics.RecordMatch(ctx, match.Score)
	span.SetAttributes(attribute.Int("resolve.score", match.Score))
	r.logger.DebugContext(ctx, "parse applied",
		"target", head,
		"score", match.Score,
		"commands", len(match.Script),
	)

	return Result{Score: match.Score, Script: match.Script}, nil
}
