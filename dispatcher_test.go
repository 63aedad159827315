package smsbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// blockingTransport blocks Send until release is closed.
type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTransport) Send(ctx context.Context, _ SendRequest) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

// panicNotifier panics on every new-message notification.
type panicNotifier struct {
	recordingNotifier
}

func (p *panicNotifier) NotifyNewMessage(context.Context, NewMessageIndicator) {
	panic("notifier exploded")
}

type unknownEvent struct{ DrainRequested }

func TestDispatcherPreservesOrder(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	for i := range 10 {
		err := svc.Submit(ctx, MessageReceived{Parts: []PDU{{OriginatingAddress: "+15550001", DisplayBody: fmt.Sprint(i)}}})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var bodies []string
	for _, msg := range folderMessages(t, svc, "__inbox") {
		bodies = append(bodies, msg.GetBody())
	}
	if fmt.Sprint(bodies) != "[0 1 2 3 4 5 6 7 8 9]" {
		t.Errorf("events handled out of order: %v", bodies)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	ctx := context.Background()
	transport := &blockingTransport{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := setupTestService(t, WithTransport(transport), WithQueueSize(1))

	if _, err := svc.Queue().Enqueue(ctx, "+15550001", "hi", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Submit(ctx, DrainRequested{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-transport.started

	// The worker is busy; one event fits in the queue, the next does not.
	if err := svc.Submit(ctx, DrainRequested{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Submit(ctx, DrainRequested{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	close(transport.release)
}

func TestDispatcherHandleContextDone(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := setupTestService(t, WithTransport(transport))

	if _, err := svc.Queue().Enqueue(context.Background(), "+15550001", "hi", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.Handle(ctx, DrainRequested{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	<-transport.started
	close(transport.release)
}

func TestDispatcherUnknownEvent(t *testing.T) {
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	err := svc.Handle(context.Background(), unknownEvent{})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
	if err := svc.Submit(context.Background(), nil); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent for nil, got %v", err)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithTransport(&fakeTransport{}), WithNotifier(&panicNotifier{}))

	err := svc.Handle(ctx, MessageReceived{Parts: []PDU{{OriginatingAddress: "+15550001", DisplayBody: "boom"}}})
	if err == nil {
		t.Fatal("expected the panic to surface as an error")
	}

	// The worker is still alive.
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Errorf("worker stopped after panic: %v", err)
	}
}

func TestDispatcherPointerEvents(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	if err := svc.Handle(ctx, &MessageReceived{Parts: []PDU{{OriginatingAddress: "+15550001", DisplayBody: "ptr"}}}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := svc.Handle(ctx, &ConnectivityChanged{State: StateInService}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := folderCount(t, svc, "__inbox"); got != 1 {
		t.Errorf("expected 1 stored message, got %d", got)
	}
}

func TestEventKind(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{MessageReceived{}, "received"},
		{SendResult{}, "send_result"},
		{BootCompleted{}, "boot"},
		{ConnectivityChanged{}, "connectivity"},
		{DrainRequested{}, "drain"},
	}
	for _, tt := range tests {
		if got := EventKind(tt.ev); got != tt.want {
			t.Errorf("%T: expected %q, got %q", tt.ev, tt.want, got)
		}
	}
}
