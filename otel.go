package message

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/message"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the message service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Message operations
	composeLatency metric.Float64Histogram
	composeCount   metric.Int64Counter
	composeErrors  metric.Int64Counter
	getLatency     metric.Float64Histogram
	getCount       metric.Int64Counter
	getErrors      metric.Int64Counter
	listLatency    metric.Float64Histogram
	listCount      metric.Int64Counter
	listErrors     metric.Int64Counter

	// Message actions
	transitionLatency metric.Float64Histogram
	transitionCount   metric.Int64Counter
	transitionErrors  metric.Int64Counter
	notifyLatency     metric.Float64Histogram
	notifyCount       metric.Int64Counter
	notifyErrors      metric.Int64Counter
	autoReplyCount    metric.Int64Counter
	autoReplySkipped  metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	// Initialize tracer
	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	// Initialize metrics
	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	// Compose metrics
	o.composeLatency, err = meter.Float64Histogram(
		"message.compose.duration",
		metric.WithDescription("Duration of compose operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.composeCount, err = meter.Int64Counter(
		"message.compose.count",
		metric.WithDescription("Number of messages composed"),
	)
	if err != nil {
		return err
	}

	o.composeErrors, err = meter.Int64Counter(
		"message.compose.errors",
		metric.WithDescription("Number of compose errors"),
	)
	if err != nil {
		return err
	}

	// Get metrics
	o.getLatency, err = meter.Float64Histogram(
		"message.get.duration",
		metric.WithDescription("Duration of get operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.getCount, err = meter.Int64Counter(
		"message.get.count",
		metric.WithDescription("Number of get operations"),
	)
	if err != nil {
		return err
	}

	o.getErrors, err = meter.Int64Counter(
		"message.get.errors",
		metric.WithDescription("Number of get errors"),
	)
	if err != nil {
		return err
	}

	// List metrics
	o.listLatency, err = meter.Float64Histogram(
		"message.list.duration",
		metric.WithDescription("Duration of list operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.listCount, err = meter.Int64Counter(
		"message.list.count",
		metric.WithDescription("Number of list operations"),
	)
	if err != nil {
		return err
	}

	o.listErrors, err = meter.Int64Counter(
		"message.list.errors",
		metric.WithDescription("Number of list errors"),
	)
	if err != nil {
		return err
	}

	// Transition metrics
	o.transitionLatency, err = meter.Float64Histogram(
		"message.transition.duration",
		metric.WithDescription("Duration of status transitions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.transitionCount, err = meter.Int64Counter(
		"message.transition.count",
		metric.WithDescription("Number of status transitions"),
	)
	if err != nil {
		return err
	}

	o.transitionErrors, err = meter.Int64Counter(
		"message.transition.errors",
		metric.WithDescription("Number of status transition errors"),
	)
	if err != nil {
		return err
	}

	// Notify metrics
	o.notifyLatency, err = meter.Float64Histogram(
		"message.notify.duration",
		metric.WithDescription("Duration of notification dispatch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.notifyCount, err = meter.Int64Counter(
		"message.notify.count",
		metric.WithDescription("Number of notifications dispatched"),
	)
	if err != nil {
		return err
	}

	o.notifyErrors, err = meter.Int64Counter(
		"message.notify.errors",
		metric.WithDescription("Number of notification errors"),
	)
	if err != nil {
		return err
	}

	// Auto-reply metrics
	o.autoReplyCount, err = meter.Int64Counter(
		"message.autoreply.count",
		metric.WithDescription("Number of out-of-office auto-replies sent"),
	)
	if err != nil {
		return err
	}

	o.autoReplySkipped, err = meter.Int64Counter(
		"message.autoreply.skipped",
		metric.WithDescription("Number of out-of-office auto-replies suppressed by a guard"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller should call the returned closure with the operation's error.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordCompose records compose operation metrics.
func (o *otelInstrumentation) recordCompose(ctx context.Context, duration time.Duration, status string, autoReply bool, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.Bool("auto_reply", autoReply),
	)

	o.composeLatency.Record(ctx, duration.Seconds(), attrs)
	o.composeCount.Add(ctx, 1, attrs)
	if err != nil {
		o.composeErrors.Add(ctx, 1, attrs)
	}
}

// recordGet records get operation metrics.
func (o *otelInstrumentation) recordGet(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.getLatency.Record(ctx, duration.Seconds())
	o.getCount.Add(ctx, 1)
	if err != nil {
		o.getErrors.Add(ctx, 1)
	}
}

// recordList records listing metrics.
func (o *otelInstrumentation) recordList(ctx context.Context, duration time.Duration, folder string, resultCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("folder", folder),
		attribute.Int("result_count", resultCount),
	)

	o.listLatency.Record(ctx, duration.Seconds(), attrs)
	o.listCount.Add(ctx, 1, attrs)
	if err != nil {
		o.listErrors.Add(ctx, 1, attrs)
	}
}

// recordTransition records status transition metrics.
func (o *otelInstrumentation) recordTransition(ctx context.Context, duration time.Duration, to string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("to_status", to),
	)

	o.transitionLatency.Record(ctx, duration.Seconds(), attrs)
	o.transitionCount.Add(ctx, 1, attrs)
	if err != nil {
		o.transitionErrors.Add(ctx, 1, attrs)
	}
}

// recordNotify records notification dispatch metrics.
func (o *otelInstrumentation) recordNotify(ctx context.Context, duration time.Duration, queued bool, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("queued", queued),
	)

	o.notifyLatency.Record(ctx, duration.Seconds(), attrs)
	o.notifyCount.Add(ctx, 1, attrs)
	if err != nil {
		o.notifyErrors.Add(ctx, 1, attrs)
	}
}

// recordAutoReply records auto-responder outcomes. reason is empty when a
// reply was sent, otherwise it names the guard that suppressed it.
func (o *otelInstrumentation) recordAutoReply(ctx context.Context, reason string) {
	if !o.metricsEnabled {
		return
	}

	if reason == "" {
		o.autoReplyCount.Add(ctx, 1)
		return
	}
	o.autoReplySkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
