package smsbox

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
	instrumentationName = "github.com/rbaliyan/smsbox"
)

// Instrumented operations.
const (
	opReceive      = "receive"
	opReplace      = "replace"
	opDrain        = "drain"
	opSendResult   = "send_result"
	opBoot         = "boot"
	opConnectivity = "connectivity"
	opRecycle      = "recycle"
)

var instrumentedOps = []string{opReceive, opReplace, opDrain, opSendResult, opBoot, opConnectivity, opRecycle}

// opInstruments holds the duration, count and error instruments of one operation.
type opInstruments struct {
	latency metric.Float64Histogram
	count   metric.Int64Counter
	errors  metric.Int64Counter
}

// otelInstrumentation holds OpenTelemetry instrumentation for the service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer
	serviceName    string

	// Metrics
	metricsEnabled bool
	ops            map[string]*opInstruments
	recycled       metric.Int64Counter
	queueDepth     metric.Int64UpDownCounter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
		serviceName:    opts.serviceName,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

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

	o.ops = make(map[string]*opInstruments, len(instrumentedOps))
	for _, op := range instrumentedOps {
		inst := &opInstruments{}
		var err error

		inst.latency, err = meter.Float64Histogram(
			"smsbox."+op+".duration",
			metric.WithDescription("Duration of "+op+" operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}

		inst.count, err = meter.Int64Counter(
			"smsbox."+op+".count",
			metric.WithDescription("Number of "+op+" operations"),
		)
		if err != nil {
			return err
		}

		inst.errors, err = meter.Int64Counter(
			"smsbox."+op+".errors",
			metric.WithDescription("Number of "+op+" errors"),
		)
		if err != nil {
			return err
		}

		o.ops[op] = inst
	}

	var err error
	o.recycled, err = meter.Int64Counter(
		"smsbox.recycle.deleted",
		metric.WithDescription("Number of messages deleted by retention enforcement"),
	)
	if err != nil {
		return err
	}

	o.queueDepth, err = meter.Int64UpDownCounter(
		"smsbox.dispatcher.queue_depth",
		metric.WithDescription("Number of events waiting for the dispatcher worker"),
	)
	return err
}

// startSpan starts a new span if tracing is enabled.
// The returned function ends the span and records err on it.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	attrs = append(attrs, attribute.String("service.name", o.serviceName))
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

// record records duration, count and errors for op.
func (o *otelInstrumentation) record(ctx context.Context, op string, duration time.Duration, err error, attrs ...attribute.KeyValue) {
	if !o.metricsEnabled {
		return
	}
	inst, ok := o.ops[op]
	if !ok {
		return
	}

	set := metric.WithAttributes(attrs...)
	inst.latency.Record(ctx, duration.Seconds(), set)
	inst.count.Add(ctx, 1, set)
	if err != nil {
		inst.errors.Add(ctx, 1, set)
	}
}

// observe wraps fn with a span named "smsbox.<op>" and records its metrics.
func (o *otelInstrumentation) observe(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, end := o.startSpan(ctx, "smsbox."+op, attrs...)
	start := time.Now()
	err := fn(ctx)
	o.record(ctx, op, time.Since(start), err, attrs...)
	end(err)
	return err
}

// recordRecycled adds n to the recycled messages counter.
func (o *otelInstrumentation) recordRecycled(ctx context.Context, n int64) {
	if !o.metricsEnabled || n <= 0 {
		return
	}
	o.recycled.Add(ctx, n)
}

// queueChanged adjusts the dispatcher queue depth gauge.
func (o *otelInstrumentation) queueChanged(ctx context.Context, delta int64) {
	if !o.metricsEnabled {
		return
	}
	o.queueDepth.Add(ctx, delta)
}
