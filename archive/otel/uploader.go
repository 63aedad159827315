// Package otel provides OpenTelemetry instrumentation for archive uploaders.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rbaliyan/smsbox/archive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/smsbox/archive/otel"

var _ archive.Uploader = (*Uploader)(nil)

// Uploader wraps an archive.Uploader with a span and metrics per upload.
type Uploader struct {
	backend archive.Uploader
	opts    *options
	tracer  trace.Tracer

	latency metric.Float64Histogram
	count   metric.Int64Counter
	bytes   metric.Int64Counter
	errors  metric.Int64Counter
}

// New wraps backend.
func New(backend archive.Uploader, opts ...Option) (*Uploader, error) {
	o := &options{
		tracingEnabled: true,
		metricsEnabled: true,
		serviceName:    "smsbox",
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	u := &Uploader{backend: backend, opts: o}
	if o.tracingEnabled {
		u.tracer = o.tracerProvider.Tracer(instrumentationName)
	}
	if o.metricsEnabled {
		if err := u.initMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}
	return u, nil
}

func (u *Uploader) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error
	u.latency, err = meter.Float64Histogram(
		"archive.upload.duration",
		metric.WithDescription("Duration of archive uploads"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	u.count, err = meter.Int64Counter(
		"archive.upload.count",
		metric.WithDescription("Number of archive uploads"),
	)
	if err != nil {
		return err
	}
	u.bytes, err = meter.Int64Counter(
		"archive.upload.bytes",
		metric.WithDescription("Total archive bytes uploaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}
	u.errors, err = meter.Int64Counter(
		"archive.upload.errors",
		metric.WithDescription("Number of failed archive uploads"),
	)
	return err
}

// Upload calls the backend inside an "archive.upload" span and records
// duration, bytes and errors.
func (u *Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("archive.content_type", contentType),
		attribute.String("service.name", u.opts.serviceName),
	}

	var span trace.Span
	if u.tracer != nil {
		ctx, span = u.tracer.Start(ctx, "archive.upload",
			trace.WithAttributes(append(attrs, attribute.String("archive.key", key))...),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()
	}

	start := time.Now()
	counter := &countingReader{reader: body}
	uri, err := u.backend.Upload(ctx, key, contentType, counter)

	if u.opts.metricsEnabled {
		set := metric.WithAttributes(attrs...)
		u.latency.Record(ctx, time.Since(start).Seconds(), set)
		u.count.Add(ctx, 1, set)
		u.bytes.Add(ctx, counter.n, set)
		if err != nil {
			u.errors.Add(ctx, 1, set)
		}
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.String("archive.uri", uri),
				attribute.Int64("archive.bytes", counter.n),
			)
			span.SetStatus(codes.Ok, "")
		}
	}
	return uri, err
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n += int64(n)
	return n, err
}
