package smsbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// envelope is one queued event. done is nil for Submit and receives the
// handling result for Handle.
type envelope struct {
	ctx  context.Context
	ev   Event
	done chan error
}

// EventDispatcher serialises all events onto one worker goroutine, in
// submission order. Nothing else mutates message state from events, so
// folder transitions and retention enforcement never race each other.
type EventDispatcher struct {
	machine *DeliveryStateMachine
	logger  *slog.Logger
	otel    *otelInstrumentation

	mu      sync.RWMutex // guards queue against send-after-close
	queue   chan envelope
	closed  bool
	stopped chan struct{}
}

func newEventDispatcher(machine *DeliveryStateMachine, size int, logger *slog.Logger, otel *otelInstrumentation) *EventDispatcher {
	return &EventDispatcher{
		machine: machine,
		logger:  logger,
		otel:    otel,
		queue:   make(chan envelope, size),
		stopped: make(chan struct{}),
	}
}

// start launches the worker.
func (d *EventDispatcher) start() {
	go d.run()
}

func (d *EventDispatcher) run() {
	defer close(d.stopped)
	for env := range d.queue {
		d.otel.queueChanged(env.ctx, -1)
		err := d.dispatch(env.ctx, env.ev)
		if env.done != nil {
			env.done <- err
		}
	}
}

// dispatch routes one event to the state machine. A panic in a handler is
// logged and turned into an error so the worker keeps running.
func (d *EventDispatcher) dispatch(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling event", "event", EventKind(ev), "panic", r)
			err = fmt.Errorf("smsbox: panic handling %s event: %v", EventKind(ev), r)
		}
	}()

	switch e := ev.(type) {
	case MessageReceived:
		_, err = d.machine.OnReceive(ctx, e.Parts)
	case *MessageReceived:
		_, err = d.machine.OnReceive(ctx, e.Parts)
	case SendResult:
		err = d.machine.OnSendResult(ctx, e.Code, e.TargetRef)
	case *SendResult:
		err = d.machine.OnSendResult(ctx, e.Code, e.TargetRef)
	case BootCompleted, *BootCompleted:
		err = d.machine.OnBoot(ctx)
	case ConnectivityChanged:
		d.machine.OnConnectivityChanged(ctx, e.State)
	case *ConnectivityChanged:
		d.machine.OnConnectivityChanged(ctx, e.State)
	case DrainRequested, *DrainRequested:
		d.machine.OnDrainRequested(ctx)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return err
}

// enqueue adds env to the queue without blocking.
func (d *EventDispatcher) enqueue(env envelope) error {
	if env.ev == nil {
		return fmt.Errorf("%w: nil", ErrUnknownEvent)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrNotConnected
	}
	select {
	case d.queue <- env:
		d.otel.queueChanged(env.ctx, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit queues ev and returns immediately. The event is handled with a
// context that keeps ctx's values but not its cancellation.
func (d *EventDispatcher) Submit(ctx context.Context, ev Event) error {
	return d.enqueue(envelope{ctx: context.WithoutCancel(ctx), ev: ev})
}

// Handle queues ev and waits until the worker has handled it.
// Handling is not cancelled when ctx is; only the wait is.
func (d *EventDispatcher) Handle(ctx context.Context, ev Event) error {
	done := make(chan error, 1)
	if err := d.enqueue(envelope{ctx: context.WithoutCancel(ctx), ev: ev, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop closes the queue and waits for the worker to finish the events
// already queued, or for ctx to end.
func (d *EventDispatcher) stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
