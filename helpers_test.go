package smsbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/memory"
)

// stepClock returns a clock that advances one second per call so message
// dates are strictly ordered.
func stepClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var n int64
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

// fakeTransport records every request it accepts.
type fakeTransport struct {
	mu       sync.Mutex
	requests []SendRequest
	err      error
}

func (f *fakeTransport) Send(_ context.Context, req SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeTransport) sent() []SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SendRequest(nil), f.requests...)
}

// fakeRadio records every transmission and rejects addresses listed in reject.
type fakeRadio struct {
	mu            sync.Mutex
	transmissions []Transmission
	reject        map[string]bool
}

func (r *fakeRadio) Transmit(_ context.Context, t Transmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject[t.Address] {
		return errors.New("radio refused")
	}
	r.transmissions = append(r.transmissions, t)
	return nil
}

func (r *fakeRadio) sent() []Transmission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transmission(nil), r.transmissions...)
}

func (r *fakeRadio) last(t *testing.T) Transmission {
	t.Helper()
	sent := r.sent()
	if len(sent) == 0 {
		t.Fatal("radio transmitted nothing")
	}
	return sent[len(sent)-1]
}

// recordingNotifier counts notifications.
type recordingNotifier struct {
	mu         sync.Mutex
	indicators []NewMessageIndicator
	sendFailed int
	failed     []int64
	transient  chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{transient: make(chan struct{}, 16)}
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, ind NewMessageIndicator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.indicators = append(n.indicators, ind)
}

func (n *recordingNotifier) NotifySendFailed(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendFailed++
}

func (n *recordingNotifier) RefreshFailedIndicator(_ context.Context, failed int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, failed)
}

func (n *recordingNotifier) ShowTransientQueuedNotice(context.Context) {
	n.transient <- struct{}{}
}

func (n *recordingNotifier) lastIndicator(t *testing.T) NewMessageIndicator {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.indicators) == 0 {
		t.Fatal("no new message indicator")
	}
	return n.indicators[len(n.indicators)-1]
}

func (n *recordingNotifier) sendFailedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sendFailed
}

// recordingDisplay records class-zero presentations.
type recordingDisplay struct {
	mu        sync.Mutex
	addresses []string
}

func (d *recordingDisplay) PresentImmediately(_ context.Context, _ []byte, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = append(d.addresses, address)
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.addresses)
}

// setupTestService creates a connected service over a memory store.
func setupTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithStore(memory.New()),
		WithClock(stepClock()),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

// receive hands one single-part message to the service and waits for it.
func receive(t *testing.T, svc *Service, pdu PDU) {
	t.Helper()
	if err := svc.Handle(context.Background(), MessageReceived{Parts: []PDU{pdu}}); err != nil {
		t.Fatalf("receive: %v", err)
	}
}

func folderMessages(t *testing.T, svc *Service, folder string) []store.Message {
	t.Helper()
	var out []store.Message
	for msg, err := range svc.Messages().Query(context.Background(), folder, nil, OldestFirst) {
		if err != nil {
			t.Fatalf("query %s: %v", folder, err)
		}
		out = append(out, msg)
	}
	return out
}

func folderCount(t *testing.T, svc *Service, folder string) int64 {
	t.Helper()
	n, err := svc.Messages().Count(context.Background(), []store.Filter{store.InFolder(folder)})
	if err != nil {
		t.Fatalf("count %s: %v", folder, err)
	}
	return n
}
