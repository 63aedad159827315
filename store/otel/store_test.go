package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/memory"
	"github.com/rbaliyan/smsbox/store/storetest"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newInstrumented(t *testing.T) (*Store, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	s, err := New(memory.New(), WithTracerProvider(tp), WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s, exporter, reader
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _, _ := newInstrumented(t)
		return s
	})
}

func TestSpansPerOperation(t *testing.T) {
	s, exporter, _ := newInstrumented(t)
	ctx := context.Background()

	threadID, err := s.GetOrCreateThread(ctx, "1")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	m, err := s.Insert(ctx, store.MessageData{ThreadID: threadID, Address: "1", Folder: store.FolderOutbox, Body: "x"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.GetThreadID() != threadID {
		t.Fatalf("expected thread %q, got %q", threadID, m.GetThreadID())
	}
	if err := s.MoveToFolder(ctx, m.GetID(), store.FolderInbox); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range exporter.GetSpans().Snapshots() {
		byName[span.Name()] = span
	}
	for _, name := range []string{"store.connect", "store.insert", "store.thread", "store.move", "store.get"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing span %q", name)
		}
	}
	if got := byName["store.move"].Status().Code; got != codes.Error {
		t.Fatalf("expected error status on refused move, got %v", got)
	}
	if got := byName["store.get"].Status().Code; got != codes.Ok {
		t.Fatalf("not found should not mark the span as failed, got %v", got)
	}
}

func TestMetricsRecorded(t *testing.T) {
	s, _, reader := newInstrumented(t)
	ctx := context.Background()

	for range 3 {
		if _, err := s.Insert(ctx, store.MessageData{Address: "1", Folder: store.FolderInbox, Date: time.Now()}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := s.Delete(ctx, []store.Filter{store.InFolder(store.FolderInbox)}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	found := map[string]bool{}
	var rows int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "smsbox.store.rows" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("unexpected rows data type %T", m.Data)
				}
				for _, dp := range sum.DataPoints {
					rows += dp.Value
				}
			}
		}
	}
	for _, name := range []string{"smsbox.store.duration", "smsbox.store.count", "smsbox.store.rows"} {
		if !found[name] {
			t.Fatalf("metric %q not recorded", name)
		}
	}
	if rows != 3 {
		t.Fatalf("expected 3 rows deleted, got %d", rows)
	}
}

func TestDisabled(t *testing.T) {
	s, err := New(memory.New(), WithDisabled())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.tracer != nil || s.latency != nil {
		t.Fatalf("expected no instruments when disabled")
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
}
