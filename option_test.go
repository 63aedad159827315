package smsbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rbaliyan/smsbox/retry"
	"github.com/rbaliyan/smsbox/store/memory"
)

func TestDefaultOptions(t *testing.T) {
	o := newOptions()

	if o.retentionCap != DefaultRetentionCap {
		t.Errorf("expected retention cap %d, got %d", DefaultRetentionCap, o.retentionCap)
	}
	if o.queueSize != DefaultQueueSize {
		t.Errorf("expected queue size %d, got %d", DefaultQueueSize, o.queueSize)
	}
	if o.pageSize != DefaultPageSize {
		t.Errorf("expected page size %d, got %d", DefaultPageSize, o.pageSize)
	}
	if o.shutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("expected shutdown timeout %v, got %v", DefaultShutdownTimeout, o.shutdownTimeout)
	}
	if o.serviceName != "smsbox" {
		t.Errorf("expected service name smsbox, got %q", o.serviceName)
	}
	if o.logger == nil || o.clock == nil || o.notifier == nil || o.display == nil || o.contacts == nil {
		t.Error("expected defaults for logger, clock, notifier, display and contacts")
	}
	if o.threads != nil {
		t.Error("thread resolver needs a store")
	}
	if o.onEventPublishFailure == nil {
		t.Error("expected default publish failure handler")
	}

	limits := o.limits()
	if limits != DefaultLimits() {
		t.Errorf("expected default limits, got %+v", limits)
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	o := newOptions(
		WithRetentionCap(0),
		WithQueueSize(-1),
		WithPageSize(0),
		WithShutdownTimeout(time.Millisecond),
		WithMaxBodySize(0),
		WithMaxAddressLength(-5),
		WithServiceName(""),
		WithLogger(nil),
		WithClock(nil),
	)

	if o.retentionCap != DefaultRetentionCap {
		t.Errorf("retention cap changed to %d", o.retentionCap)
	}
	if o.queueSize != DefaultQueueSize {
		t.Errorf("queue size changed to %d", o.queueSize)
	}
	if o.pageSize != DefaultPageSize {
		t.Errorf("page size changed to %d", o.pageSize)
	}
	if o.shutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("shutdown timeout changed to %v", o.shutdownTimeout)
	}
	if o.limits() != DefaultLimits() {
		t.Errorf("limits changed to %+v", o.limits())
	}
	if o.serviceName != "smsbox" || o.logger == nil || o.clock == nil {
		t.Error("empty values must keep defaults")
	}
}

func TestOptionsApplyValidValues(t *testing.T) {
	st := memory.New()
	logger := slog.New(slog.DiscardHandler)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	o := newOptions(
		WithStore(st),
		WithLogger(logger),
		WithClock(func() time.Time { return fixed }),
		WithRetentionCap(5),
		WithQueueSize(8),
		WithPageSize(10),
		WithShutdownTimeout(2*time.Second),
		WithMaxBodySize(140),
		WithMaxAddressLength(20),
		WithServiceName("modem"),
		WithOTel(true),
		WithConnectRetry(retry.Config{MaxRetries: 7}),
	)

	if o.store != st || o.logger != logger {
		t.Error("store and logger not applied")
	}
	if !o.clock().Equal(fixed) {
		t.Error("clock not applied")
	}
	if o.threads == nil {
		t.Error("expected store-backed thread resolver")
	}
	if o.retentionCap != 5 || o.queueSize != 8 || o.pageSize != 10 {
		t.Errorf("sizes not applied: %d %d %d", o.retentionCap, o.queueSize, o.pageSize)
	}
	if o.shutdownTimeout != 2*time.Second {
		t.Errorf("shutdown timeout not applied: %v", o.shutdownTimeout)
	}
	if o.limits() != (Limits{MaxBodySize: 140, MaxAddressLength: 20}) {
		t.Errorf("limits not applied: %+v", o.limits())
	}
	if o.serviceName != "modem" || !o.tracingEnabled || !o.metricsEnabled {
		t.Error("telemetry options not applied")
	}
	if o.connectRetry.MaxRetries != 7 {
		t.Errorf("connect retry not applied: %+v", o.connectRetry)
	}
}

func TestEventPublishFailureHandlerPanicIsRecovered(t *testing.T) {
	o := newOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithEventPublishFailureHandler(func(string, error) { panic("handler exploded") }),
	)
	// Must not panic.
	o.safeEventPublishFailure("MessageStored", errors.New("bus down"))
}

// failingStore fails Connect a fixed number of times.
type failingStore struct {
	*memory.Store
	failures int
	attempts int
}

func (f *failingStore) Connect(ctx context.Context) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("database starting up")
	}
	return f.Store.Connect(ctx)
}

func TestConnectRetriesStore(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: memory.New(), failures: 2}
	svc, err := NewService(
		WithStore(st),
		WithTransport(&fakeTransport{}),
		WithConnectRetry(retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close(ctx)

	if st.attempts != 3 {
		t.Errorf("expected 3 connect attempts, got %d", st.attempts)
	}
}

func TestConnectGivesUp(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: memory.New(), failures: 10}
	svc, err := NewService(
		WithStore(st),
		WithTransport(&fakeTransport{}),
		WithConnectRetry(retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = svc.Connect(ctx)
	if !errors.Is(err, retry.ErrMaxRetries) {
		t.Errorf("expected ErrMaxRetries, got %v", err)
	}
	if svc.IsConnected() {
		t.Error("service must stay disconnected")
	}
}
