package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricParseRequests    = "verstree.resolve.parse_requests.total"
	metricStaleResponses   = "verstree.resolve.stale_responses.total"
	metricMatchScore       = "verstree.resolve.match_score"
	metricVersionsAppended = "verstree.history.versions_appended.total"
	metricShadowsDiscarded = "verstree.history.shadows_discarded.total"
	metricCheckpointsTotal = "verstree.history.checkpoints.total"

	attrCheckpointKind = "kind"
	attrNodeKind       = "node_kind"
)

// scoreBuckets spans exact matches up to rewrites of a few dozen nodes.
var scoreBuckets = []float64{0, 1, 2, 4, 8, 16, 32, 64}

// HistoryMetrics counts reconciliation and commit activity. Every method
// is safe on a nil receiver, so callers that skip telemetry pass nil.
type HistoryMetrics struct {
	parseRequests    metric.Int64Counter
	staleResponses   metric.Int64Counter
	matchScore       metric.Float64Histogram
	versionsAppended metric.Int64Counter
	shadowsDiscarded metric.Int64Counter
	checkpoints      metric.Int64Counter
}

// NewHistoryMetrics creates the instruments from mt.
func NewHistoryMetrics(mt metric.Meter) (*HistoryMetrics, error) {
	b := newMetricBuilder(mt)

	hm := &HistoryMetrics{
		parseRequests:    b.counter(metricParseRequests, "Fresh parses requested after an edit", "{request}"),
		staleResponses:   b.counter(metricStaleResponses, "Parse responses dropped for a superseded token", "{response}"),
		matchScore:       b.histogram(metricMatchScore, "Tree match score of applied parse responses", "{edit}", scoreBuckets...),
		versionsAppended: b.counter(metricVersionsAppended, "Immutable versions appended by commits", "{version}"),
		shadowsDiscarded: b.counter(metricShadowsDiscarded, "Shadows discarded because nothing changed", "{shadow}"),
		checkpoints:      b.counter(metricCheckpointsTotal, "Checkpoints created", "{checkpoint}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return hm, nil
}

// RecordParseRequest counts one issued pending-update token.
func (hm *HistoryMetrics) RecordParseRequest(ctx context.Context) {
	if hm == nil {
		return
	}

	hm.parseRequests.Add(ctx, 1)
}

// RecordStale counts one dropped parse response.
func (hm *HistoryMetrics) RecordStale(ctx context.Context) {
	if hm == nil {
		return
	}

	hm.staleResponses.Add(ctx, 1)
}

// RecordMatch records the score of an applied match.
func (hm *HistoryMetrics) RecordMatch(ctx context.Context, score int) {
	if hm == nil {
		return
	}

	hm.matchScore.Record(ctx, float64(score))
}

// RecordAppended counts one new version of a node of the given kind.
func (hm *HistoryMetrics) RecordAppended(ctx context.Context, nodeKind string) {
	if hm == nil {
		return
	}

	hm.versionsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String(attrNodeKind, nodeKind)))
}

// RecordDiscarded counts one discarded shadow of the given kind.
func (hm *HistoryMetrics) RecordDiscarded(ctx context.Context, nodeKind string) {
	if hm == nil {
		return
	}

	hm.shadowsDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String(attrNodeKind, nodeKind)))
}

// RecordCheckpoint counts one checkpoint of the given kind.
func (hm *HistoryMetrics) RecordCheckpoint(ctx context.Context, kind string) {
	if hm == nil {
		return
	}

	hm.checkpoints.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCheckpointKind, kind)))
}
