package smsbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/smsbox/store"
)

// DrainOutcome describes what one DrainOne call did.
type DrainOutcome int

const (
	// DrainEmpty means the Queued folder had nothing to send.
	DrainEmpty DrainOutcome = iota
	// DrainDispatched means the oldest queued message was accepted by the transport.
	DrainDispatched
	// DrainRejected means the transport refused the message; it stays queued.
	DrainRejected
	// DrainUnavailable means the queue could not be read.
	DrainUnavailable
)

func (o DrainOutcome) String() string {
	switch o {
	case DrainEmpty:
		return "empty"
	case DrainDispatched:
		return "dispatched"
	case DrainRejected:
		return "rejected"
	case DrainUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// SendQueue is the FIFO of queued outbound messages, ordered by the date
// they were enqueued.
type SendQueue struct {
	// mu serialises the pop, dispatch and delete sequence so overlapping
	// drains never dispatch the same record twice.
	mu sync.Mutex

	messages  *MessageStore
	transport Transport
	threads   ThreadResolver
	limits    Limits
	logger    *slog.Logger
	otel      *otelInstrumentation
	events    *emitter
	newToken  func() string
}

// Enqueue validates an outbound message and stores it in the Queued folder.
// An empty threadID is resolved from the address.
func (q *SendQueue) Enqueue(ctx context.Context, address, body, threadID string) (store.Message, error) {
	if err := ValidateOutgoing(address, body, q.limits); err != nil {
		return nil, err
	}
	if threadID == "" {
		id, err := q.threads.GetOrCreateThreadID(ctx, address)
		if err != nil {
			return nil, &StorageError{Op: "thread", Err: err}
		}
		threadID = id
	}

	msg, err := q.messages.Insert(ctx, store.FolderQueued, store.MessageData{
		ThreadID: threadID,
		Address:  address,
		Body:     body,
		IsRead:   true,
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, q.events, "MessageQueued",
		func(e *ServiceEvents) event.Event[MessageQueuedEvent] { return e.MessageQueued },
		MessageQueuedEvent{MessageID: msg.GetID(), Reason: "enqueued", QueuedAt: msg.GetDate()})
	return msg, nil
}

// DrainOne sends the oldest queued message, if any.
//
// Exactly one message is dispatched per call. When the transport accepts it,
// the Queued record is deleted since the transport creates its own Outbox
// record for the attempt. A failed delete is logged and does not block
// progress. When the transport rejects it, the record is left for the next
// trigger and a DispatchError is returned.
func (q *SendQueue) DrainOne(ctx context.Context) (DrainOutcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	outcome := DrainEmpty
	err := q.otel.observe(ctx, opDrain, func(ctx context.Context) error {
		var err error
		outcome, err = q.drain(ctx)
		return err
	})
	return outcome, err
}

func (q *SendQueue) drain(ctx context.Context) (DrainOutcome, error) {
	msg, err := q.messages.First(ctx, store.FolderQueued, nil, OldestFirst)
	if err != nil {
		return DrainUnavailable, err
	}
	if msg == nil {
		return DrainEmpty, nil
	}

	req := SendRequest{
		Addresses: []string{msg.GetAddress()},
		Body:      msg.GetBody(),
		ThreadID:  msg.GetThreadID(),
		Token:     q.newToken(),
	}
	if err := q.transport.Send(ctx, req); err != nil {
		derr := &DispatchError{MessageID: msg.GetID(), Err: err}
		q.logger.Error("failed to send queued message", "message_id", msg.GetID(), "error", derr)
		return DrainRejected, derr
	}

	q.logger.Debug("dispatched queued message", "message_id", msg.GetID(),
		"thread_id", msg.GetThreadID(), "token", req.Token)

	if _, err := q.messages.DeleteByID(ctx, msg.GetID()); err != nil {
		if _, ok := IsIntegrityWarning(err); !ok {
			q.logger.Error("failed to delete dispatched queued message",
				"message_id", msg.GetID(), "error", err)
		}
	}
	return DrainDispatched, nil
}

// Len returns the number of queued messages.
func (q *SendQueue) Len(ctx context.Context) (int64, error) {
	return q.messages.Count(ctx, []store.Filter{store.InFolder(store.FolderQueued)})
}

func newCorrelationToken() string {
	return uuid.NewString()
}
