package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const curationScope = "catalog-backoffice/curation"

// curationInstruments is populated once Init succeeds. Until then every
// recorder is a no-op.
var curationInstruments struct {
	tracer trace.Tracer

	jobDuration     metric.Float64Histogram
	jobOutcomes     metric.Int64Counter
	jobsInFlight    metric.Int64UpDownCounter
	classifications metric.Int64Counter
	bulkActions     metric.Int64Counter
	bulkProducts    metric.Int64Counter
}

func registerCurationInstruments(tp trace.TracerProvider, mp metric.MeterProvider) error {
	curationInstruments.tracer = tp.Tracer(curationScope)
	meter := mp.Meter(curationScope)

	var errs [6]error
	curationInstruments.jobDuration, errs[0] = meter.Float64Histogram(
		"catalog.curation.job.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time of one curation job from claim to write-back"),
	)
	curationInstruments.jobOutcomes, errs[1] = meter.Int64Counter(
		"catalog.curation.job.total",
		metric.WithDescription("Finished curation jobs by status"),
	)
	curationInstruments.jobsInFlight, errs[2] = meter.Int64UpDownCounter(
		"catalog.curation.job.in_flight",
		metric.WithDescription("Curation jobs currently held by a worker"),
	)
	curationInstruments.classifications, errs[3] = meter.Int64Counter(
		"catalog.curation.classification.total",
		metric.WithDescription("Per-product classifier results by outcome"),
	)
	curationInstruments.bulkActions, errs[4] = meter.Int64Counter(
		"catalog.curation.bulk_action.total",
		metric.WithDescription("Bulk curation actions by action and mode"),
	)
	curationInstruments.bulkProducts, errs[5] = meter.Int64Counter(
		"catalog.curation.bulk_action.products",
		metric.WithDescription("Products touched by bulk actions by result"),
	)
	return errors.Join(errs[:]...)
}

// CurationJobSpanInfo describes the attributes used when starting a curation job span.
type CurationJobSpanInfo struct {
	JobID    string
	Products int
}

// CurationJobMetrics describes a finished curation job.
type CurationJobMetrics struct {
	JobID    string
	Status   string
	Products int
	Duration time.Duration
}

// BulkActionMetrics describes one bulk action.
type BulkActionMetrics struct {
	Action     string
	Mode       string
	Successful int
	Failed     int
}

// StartCurationJobSpan starts a span for a worker processing one curation job
// and counts the job as in flight until the returned span ends.
func StartCurationJobSpan(ctx context.Context, info CurationJobSpanInfo) (context.Context, trace.Span) {
	tracer := curationInstruments.tracer
	if tracer == nil {
		tracer = otel.Tracer(curationScope)
	}

	ctx, span := tracer.Start(ctx, "worker.process_curation_job", trace.WithAttributes(
		attribute.String("job.id", info.JobID),
		attribute.Int("job.products", info.Products),
	))

	if c := curationInstruments.jobsInFlight; c != nil {
		c.Add(ctx, 1)
		return ctx, inFlightSpan{Span: span, ctx: ctx, counter: c}
	}
	return ctx, span
}

// inFlightSpan decrements the in-flight gauge when the span ends.
type inFlightSpan struct {
	trace.Span
	ctx     context.Context
	counter metric.Int64UpDownCounter
}

func (s inFlightSpan) End(opts ...trace.SpanEndOption) {
	s.counter.Add(context.WithoutCancel(s.ctx), -1)
	s.Span.End(opts...)
}

// RecordCurationJob records the outcome and duration of a finished job.
func RecordCurationJob(ctx context.Context, m CurationJobMetrics) {
	attrs := metric.WithAttributes(attribute.String("job.status", m.Status))
	if h := curationInstruments.jobDuration; h != nil {
		h.Record(ctx, float64(m.Duration.Milliseconds()), attrs)
	}
	if c := curationInstruments.jobOutcomes; c != nil {
		c.Add(ctx, 1, attrs)
	}
}

// RecordClassification counts one classifier call. outcome is the resulting
// product status, or "error" when the call failed.
func RecordClassification(ctx context.Context, outcome string) {
	if c := curationInstruments.classifications; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// RecordBulkAction counts one bulk action and the products it touched.
func RecordBulkAction(ctx context.Context, m BulkActionMetrics) {
	c := curationInstruments.bulkActions
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", m.Action),
		attribute.String("mode", m.Mode),
	))

	products := curationInstruments.bulkProducts
	if products == nil {
		return
	}
	products.Add(ctx, int64(m.Successful), metric.WithAttributes(
		attribute.String("action", m.Action),
		attribute.String("result", "successful"),
	))
	products.Add(ctx, int64(m.Failed), metric.WithAttributes(
		attribute.String("action", m.Action),
		attribute.String("result", "failed"),
	))
}
