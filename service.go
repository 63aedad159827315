package smsbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/rbaliyan/smsbox/retry"
	"github.com/rbaliyan/smsbox/store"
)

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// Service is the message handling core. It owns the components, the event
// bus and the dispatcher worker.
type Service struct {
	store    store.Store
	logger   *slog.Logger
	opts     *options
	state    int32 // stateDisconnected, stateConnecting, or stateConnected
	otel     *otelInstrumentation
	emitter  *emitter
	eventBus *event.Bus

	messages *MessageStore
	recycler *Recycler
	queue    *SendQueue
	machine  *DeliveryStateMachine

	dispatcher atomic.Pointer[EventDispatcher]
}

// NewService creates a new service.
// Call Connect() to connect the store and start the dispatcher.
func NewService(opts ...Option) (*Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}
	if o.transport == nil && o.radio == nil {
		return nil, ErrTransportRequired
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	messages := newMessageStore(o.store, o)
	transport := o.transport
	if transport == nil {
		transport = NewOutboxSender(messages, o.radio, o.logger)
	}
	em := &emitter{opts: o}

	recycler := &Recycler{
		messages: messages,
		limit:    o.retentionCap,
		archiver: o.archiver,
		logger:   o.logger,
		otel:     otelInstr,
		events:   em,
	}
	inbox := &InboxWriter{
		messages: messages,
		recycler: recycler,
		threads:  o.threads,
		contacts: o.contacts,
		logger:   o.logger,
		events:   em,
	}
	queue := &SendQueue{
		messages:  messages,
		transport: transport,
		threads:   o.threads,
		limits:    o.limits(),
		logger:    o.logger,
		otel:      otelInstr,
		events:    em,
		newToken:  newCorrelationToken,
	}
	machine := &DeliveryStateMachine{
		messages: messages,
		queue:    queue,
		inbox:    inbox,
		replacer: &ReplaceResolver{inbox: inbox, logger: o.logger, otel: otelInstr, events: em},
		notifier: o.notifier,
		display:  o.display,
		limits:   o.limits(),
		logger:   o.logger,
		otel:     otelInstr,
		events:   em,
	}

	return &Service{
		store:    o.store,
		logger:   o.logger,
		opts:     o,
		otel:     otelInstr,
		emitter:  em,
		messages: messages,
		recycler: recycler,
		queue:    queue,
		machine:  machine,
	}, nil
}

// Events returns per-service event instances for subscribing.
// Returns nil before Connect.
func (s *Service) Events() *ServiceEvents {
	return s.emitter.events.Load()
}

// IsConnected returns true if the service is connected and ready.
func (s *Service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Messages returns the message store view.
func (s *Service) Messages() *MessageStore {
	return s.messages
}

// Queue returns the send queue.
func (s *Service) Queue() *SendQueue {
	return s.queue
}

// Recycler returns the retention enforcer.
func (s *Service) Recycler() *Recycler {
	return s.recycler
}

// Connect connects the store, starts the event bus and starts the dispatcher worker.
// Store connection is retried with the configured retry policy.
func (s *Service) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	cfg := s.opts.connectRetry
	base := cfg.IsRetryable
	if base == nil {
		base = retry.DefaultIsRetryable
	}
	cfg.IsRetryable = func(err error) bool {
		return IsRetryableError(err) && base(err)
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			s.logger.Warn("store connect failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	if err := retry.Do(ctx, cfg, s.store.Connect); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	s.machine.reset()
	d := newEventDispatcher(s.machine, s.opts.queueSize, s.logger, s.otel)
	d.start()
	s.dispatcher.Store(d)

	success = true
	s.logger.Info("smsbox service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
func (s *Service) initEventBus(ctx context.Context) error {
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", s.opts.serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	events := newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	s.eventBus = bus
	s.emitter.events.Store(events)
	return nil
}

// Close stops the dispatcher, waiting up to the shutdown timeout for queued
// events, then closes the event bus and the store.
func (s *Service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	s.logger.Info("waiting for queued events to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()

	if d := s.dispatcher.Swap(nil); d != nil {
		if err := d.stop(shutdownCtx); err != nil {
			s.logger.Warn("timeout waiting for queued events, proceeding with shutdown", "error", err)
			errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
		}
	}
	if err := s.machine.wait(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("wait for notifications: %w", err))
	}

	s.emitter.events.Store(nil)
	if s.eventBus != nil {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
		s.eventBus = nil
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Submit queues ev for the dispatcher worker and returns immediately.
// Returns ErrQueueFull when the queue is at capacity and ErrNotConnected
// before Connect or after Close.
func (s *Service) Submit(ctx context.Context, ev Event) error {
	d := s.dispatcher.Load()
	if d == nil || !s.IsConnected() {
		return ErrNotConnected
	}
	return d.Submit(ctx, ev)
}

// Handle queues ev and waits until the worker has handled it. The returned
// error is the handling result; event processing errors are never fatal to
// the service.
func (s *Service) Handle(ctx context.Context, ev Event) error {
	d := s.dispatcher.Load()
	if d == nil || !s.IsConnected() {
		return ErrNotConnected
	}
	return d.Handle(ctx, ev)
}

// Enqueue validates and stores an outbound message in the Queued folder, then
// requests a drain. An empty threadID is resolved from the address.
func (s *Service) Enqueue(ctx context.Context, address, body, threadID string) (store.Message, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	msg, err := s.queue.Enqueue(ctx, address, body, threadID)
	if err != nil {
		return nil, err
	}
	s.requestDrain(ctx)
	return msg, nil
}

// Resend moves a Failed message back to Queued and requests a drain.
// Its date is reset so it queues behind messages already waiting.
func (s *Service) Resend(ctx context.Context, id string) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return err
	}
	if msg.GetFolder() != store.FolderFailed {
		return fmt.Errorf("%w: message is in %s", ErrInvalidTransition, msg.GetFolder())
	}

	if err := s.store.MoveToFolder(ctx, id, store.FolderQueued); err != nil {
		switch {
		case store.IsNotFound(err):
			return ErrNotFound
		case store.IsInvalidTransition(err):
			return ErrInvalidTransition
		}
		return &StorageError{Op: "move", Err: err}
	}

	now := s.messages.clock()
	noError := 0
	if _, err := s.messages.UpdateByID(ctx, id, store.MessageUpdate{Date: &now, ErrorCode: &noError}); err != nil {
		logStorage(s.logger, "failed to reset resent message", err, "message_id", id)
	}
	publish(ctx, s.emitter, "MessageQueued",
		func(e *ServiceEvents) event.Event[MessageQueuedEvent] { return e.MessageQueued },
		MessageQueuedEvent{MessageID: id, Reason: "resend", QueuedAt: now})

	s.requestDrain(ctx)
	return nil
}

// Stats returns totals and per-folder counts.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	return s.messages.Stats(ctx)
}

func (s *Service) requestDrain(ctx context.Context) {
	if err := s.Submit(ctx, DrainRequested{}); err != nil {
		// The record is stored; the next send result or connectivity change drains it.
		s.logger.Warn("failed to request drain", "error", err)
	}
}
