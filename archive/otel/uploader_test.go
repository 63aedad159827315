package otel

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubUploader struct {
	err error
}

func (s stubUploader) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	return "stub://" + key, nil
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestUploadInstrumented(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ok, err := New(stubUploader{}, WithTracerProvider(tp), WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	failing, err := New(stubUploader{err: errors.New("denied")}, WithTracerProvider(tp), WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	uri, err := ok.Upload(ctx, "k.jsonl", "application/x-ndjson", strings.NewReader("12345"))
	if err != nil || uri != "stub://k.jsonl" {
		t.Fatalf("upload = %q, %v", uri, err)
	}
	if _, err := failing.Upload(ctx, "k2.jsonl", "application/x-ndjson", strings.NewReader("abc")); err == nil {
		t.Fatal("expected backend error")
	}

	spans := exporter.GetSpans().Snapshots()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "archive.upload" || spans[0].Status().Code != codes.Ok {
		t.Errorf("unexpected first span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[1].Status())
	}

	sums := collectSums(t, reader)
	if sums["archive.upload.count"] != 2 {
		t.Errorf("count = %d", sums["archive.upload.count"])
	}
	if sums["archive.upload.bytes"] != 8 {
		t.Errorf("bytes = %d", sums["archive.upload.bytes"])
	}
	if sums["archive.upload.errors"] != 1 {
		t.Errorf("errors = %d", sums["archive.upload.errors"])
	}
}

func TestUploadDisabled(t *testing.T) {
	u, err := New(stubUploader{}, WithTracing(false), WithMetrics(false))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if u.tracer != nil {
		t.Error("expected no tracer")
	}
	if _, err := u.Upload(context.Background(), "k", "text/plain", strings.NewReader("x")); err != nil {
		t.Errorf("upload: %v", err)
	}
}
