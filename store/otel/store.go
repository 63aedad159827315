// Package otel provides OpenTelemetry instrumentation for message stores.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/smsbox/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/smsbox/store/otel"
)

// Store wraps a store.Store with OpenTelemetry instrumentation.
// Every operation gets a client span, a duration sample, a call count and,
// on failure, an error count. All instruments carry a "store.operation" attribute.
type Store struct {
	backend store.Store
	opts    *options

	// Tracing
	tracer trace.Tracer

	// Metrics
	latency metric.Float64Histogram
	calls   metric.Int64Counter
	errs    metric.Int64Counter
	rows    metric.Int64Counter
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new OTel-instrumented store wrapping the given backend.
func New(backend store.Store, opts ...Option) (*Store, error) {
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

	s := &Store{
		backend: backend,
		opts:    o,
	}

	if o.tracingEnabled {
		s.tracer = o.tracerProvider.Tracer(instrumentationName)
	}

	if o.metricsEnabled {
		if err := s.initMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}

	return s, nil
}

// initMetrics initializes all metric instruments.
func (s *Store) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error
	s.latency, err = meter.Float64Histogram(
		"smsbox.store.duration",
		metric.WithDescription("Duration of store operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.calls, err = meter.Int64Counter(
		"smsbox.store.count",
		metric.WithDescription("Number of store operations"),
	)
	if err != nil {
		return err
	}

	s.errs, err = meter.Int64Counter(
		"smsbox.store.errors",
		metric.WithDescription("Number of failed store operations"),
	)
	if err != nil {
		return err
	}

	s.rows, err = meter.Int64Counter(
		"smsbox.store.rows",
		metric.WithDescription("Rows affected by bulk update and delete operations"),
	)
	return err
}

// observe runs fn inside a span and records its metrics.
// store.ErrNotFound is recorded on the span but not counted as an error.
func (s *Store) observe(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	attrs = append(attrs,
		attribute.String("store.operation", op),
		attribute.String("service.name", s.opts.serviceName),
	)

	var span trace.Span
	if s.opts.tracingEnabled && s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "store."+op,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	failed := err != nil && !errors.Is(err, store.ErrNotFound)

	if s.opts.metricsEnabled {
		metricAttrs := metric.WithAttributes(attribute.String("store.operation", op))
		s.latency.Record(ctx, duration, metricAttrs)
		s.calls.Add(ctx, 1, metricAttrs)
		if failed {
			s.errs.Add(ctx, 1, metricAttrs)
		}
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
		}
		if failed {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return err
}

func (s *Store) recordRows(ctx context.Context, op string, n int64) {
	if s.opts.metricsEnabled && n > 0 {
		s.rows.Add(ctx, n, metric.WithAttributes(attribute.String("store.operation", op)))
	}
}

// Connect connects the backend.
func (s *Store) Connect(ctx context.Context) error {
	return s.observe(ctx, "connect", s.backend.Connect)
}

// Close closes the backend.
func (s *Store) Close(ctx context.Context) error {
	return s.observe(ctx, "close", s.backend.Close)
}

// Get retrieves a message with tracing and metrics.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	var msg store.Message
	err := s.observe(ctx, "get", func(ctx context.Context) error {
		var err error
		msg, err = s.backend.Get(ctx, id)
		return err
	}, attribute.String("message.id", id))
	return msg, err
}

// Find lists messages with tracing and metrics.
func (s *Store) Find(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.MessageList, error) {
	var list *store.MessageList
	err := s.observe(ctx, "find", func(ctx context.Context) error {
		var err error
		list, err = s.backend.Find(ctx, filters, opts)
		return err
	}, attribute.Int("store.filters", len(filters)), attribute.Int("store.limit", opts.Limit))
	return list, err
}

// Count counts messages with tracing and metrics.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	var n int64
	err := s.observe(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = s.backend.Count(ctx, filters)
		return err
	}, attribute.Int("store.filters", len(filters)))
	return n, err
}

// Insert stores a message with tracing and metrics.
func (s *Store) Insert(ctx context.Context, data store.MessageData) (store.Message, error) {
	var msg store.Message
	err := s.observe(ctx, "insert", func(ctx context.Context) error {
		var err error
		msg, err = s.backend.Insert(ctx, data)
		return err
	}, attribute.String("message.folder", data.Folder))
	return msg, err
}

// Update updates messages with tracing and metrics.
func (s *Store) Update(ctx context.Context, filters []store.Filter, update store.MessageUpdate) (int64, error) {
	var n int64
	err := s.observe(ctx, "update", func(ctx context.Context) error {
		var err error
		n, err = s.backend.Update(ctx, filters, update)
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.Int64("store.rows_affected", n))
		}
		return err
	}, attribute.Int("store.filters", len(filters)))
	s.recordRows(ctx, "update", n)
	return n, err
}

// Delete deletes messages with tracing and metrics.
func (s *Store) Delete(ctx context.Context, filters []store.Filter) (int64, error) {
	var n int64
	err := s.observe(ctx, "delete", func(ctx context.Context) error {
		var err error
		n, err = s.backend.Delete(ctx, filters)
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.Int64("store.rows_affected", n))
		}
		return err
	}, attribute.Int("store.filters", len(filters)))
	s.recordRows(ctx, "delete", n)
	return n, err
}

// MoveToFolder moves a message with tracing and metrics.
func (s *Store) MoveToFolder(ctx context.Context, id, folder string) error {
	return s.observe(ctx, "move", func(ctx context.Context) error {
		return s.backend.MoveToFolder(ctx, id, folder)
	}, attribute.String("message.id", id), attribute.String("message.folder", folder))
}

// GetOrCreateThread resolves a thread with tracing and metrics.
// The address is not recorded since it identifies a person.
func (s *Store) GetOrCreateThread(ctx context.Context, address string) (string, error) {
	var id string
	err := s.observe(ctx, "thread", func(ctx context.Context) error {
		var err error
		id, err = s.backend.GetOrCreateThread(ctx, address)
		return err
	})
	return id, err
}

// Stats returns statistics with tracing and metrics.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	var stats *store.Stats
	err := s.observe(ctx, "stats", func(ctx context.Context) error {
		var err error
		stats, err = s.backend.Stats(ctx)
		return err
	})
	return stats, err
}
