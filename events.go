package smsbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for smsbox events.
const (
	EventNameMessageStored    = "smsbox.message.stored"
	EventNameMessageReplaced  = "smsbox.message.replaced"
	EventNameMessageSent      = "smsbox.message.sent"
	EventNameMessageQueued    = "smsbox.message.queued"
	EventNameMessageFailed    = "smsbox.message.failed"
	EventNameMessagesRecycled = "smsbox.messages.recycled"
)

// MessageStoredEvent is published when a received message is inserted into the Inbox.
type MessageStoredEvent struct {
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	Address   string    `json:"address"`
	StoredAt  time.Time `json:"stored_at"`
}

// MessageReplacedEvent is published when a replace message overwrites an Inbox record.
type MessageReplacedEvent struct {
	MessageID  string    `json:"message_id"`
	ThreadID   string    `json:"thread_id"`
	Address    string    `json:"address"`
	Protocol   int       `json:"protocol"`
	ReplacedAt time.Time `json:"replaced_at"`
}

// MessageSentEvent is published when a send attempt succeeds.
type MessageSentEvent struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// MessageQueuedEvent is published when a message enters the Queued folder,
// either from Enqueue, Resend or a transient send failure.
type MessageQueuedEvent struct {
	MessageID string    `json:"message_id"`
	Reason    string    `json:"reason"`
	QueuedAt  time.Time `json:"queued_at"`
}

// MessageFailedEvent is published when a send attempt fails permanently.
type MessageFailedEvent struct {
	MessageID string    `json:"message_id"`
	Code      int       `json:"code"`
	FailedAt  time.Time `json:"failed_at"`
}

// MessagesRecycledEvent is published when retention enforcement deletes messages.
type MessagesRecycledEvent struct {
	ThreadID   string    `json:"thread_id"`
	MessageIDs []string  `json:"message_ids"`
	RecycledAt time.Time `json:"recycled_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().MessageStored.Subscribe(ctx, handler)
//	svc.Events().MessageFailed.Subscribe(ctx, handler)
type ServiceEvents struct {
	MessageStored    event.Event[MessageStoredEvent]
	MessageReplaced  event.Event[MessageReplacedEvent]
	MessageSent      event.Event[MessageSentEvent]
	MessageQueued    event.Event[MessageQueuedEvent]
	MessageFailed    event.Event[MessageFailedEvent]
	MessagesRecycled event.Event[MessagesRecycledEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageStored:    event.New[MessageStoredEvent](namePrefix + "." + EventNameMessageStored),
		MessageReplaced:  event.New[MessageReplacedEvent](namePrefix + "." + EventNameMessageReplaced),
		MessageSent:      event.New[MessageSentEvent](namePrefix + "." + EventNameMessageSent),
		MessageQueued:    event.New[MessageQueuedEvent](namePrefix + "." + EventNameMessageQueued),
		MessageFailed:    event.New[MessageFailedEvent](namePrefix + "." + EventNameMessageFailed),
		MessagesRecycled: event.New[MessagesRecycledEvent](namePrefix + "." + EventNameMessagesRecycled),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageStored); err != nil {
		return fmt.Errorf("register MessageStored: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageReplaced); err != nil {
		return fmt.Errorf("register MessageReplaced: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageSent); err != nil {
		return fmt.Errorf("register MessageSent: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageQueued); err != nil {
		return fmt.Errorf("register MessageQueued: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageFailed); err != nil {
		return fmt.Errorf("register MessageFailed: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessagesRecycled); err != nil {
		return fmt.Errorf("register MessagesRecycled: %w", err)
	}
	return nil
}

// emitter publishes domain events once the bus is up.
// Before Connect, and after a failed bus start, events are dropped.
type emitter struct {
	events atomic.Pointer[ServiceEvents]
	opts   *options
}

// publish sends data on the event picked from the current ServiceEvents.
// Failures go to the configured failure handler and are never returned.
func publish[T any](ctx context.Context, e *emitter, name string, pick func(*ServiceEvents) event.Event[T], data T) {
	if e == nil {
		return
	}
	events := e.events.Load()
	if events == nil {
		return
	}
	if err := pick(events).Publish(ctx, data); err != nil {
		e.opts.safeEventPublishFailure(name, err)
	}
}
