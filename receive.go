package smsbox

import (
	"context"
	"log/slog"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/smsbox/store"
	"go.opentelemetry.io/otel/attribute"
)

// InboxWriter stores received messages in the Inbox.
type InboxWriter struct {
	messages *MessageStore
	recycler *Recycler
	threads  ThreadResolver
	contacts ContactResolver
	logger   *slog.Logger
	events   *emitter
}

// inboxData builds the stored fields of a received message except its thread.
// The date is the receipt time, not the sender's timestamp, to avoid clock
// drift between the handset and the service center.
func (w *InboxWriter) inboxData(ctx context.Context, parts []PDU) store.MessageData {
	first := parts[0]
	return store.MessageData{
		Address:          w.contacts.CanonicalAddress(ctx, first.OriginatingAddress),
		Body:             joinBodies(parts),
		Protocol:         first.Protocol,
		Date:             w.messages.clock(),
		IsRead:           false,
		ReplyPathPresent: first.ReplyPathPresent,
		ServiceCenter:    first.ServiceCenter,
		Subject:          first.PseudoSubject,
	}
}

// Store inserts a received message into the Inbox and then enforces the
// retention cap on its thread. The parts are joined in memory before the
// single insert, so a multipart message is never partially stored.
func (w *InboxWriter) Store(ctx context.Context, parts []PDU) (store.Message, error) {
	if len(parts) == 0 {
		return nil, ErrNoParts
	}
	return w.insert(ctx, w.inboxData(ctx, parts))
}

func (w *InboxWriter) insert(ctx context.Context, data store.MessageData) (store.Message, error) {
	threadID, err := w.threads.GetOrCreateThreadID(ctx, data.Address)
	if err != nil {
		return nil, &StorageError{Op: "thread", Err: err}
	}
	data.ThreadID = threadID

	msg, err := w.messages.Insert(ctx, store.FolderInbox, data)
	if err != nil {
		return nil, err
	}

	publish(ctx, w.events, "MessageStored",
		func(e *ServiceEvents) event.Event[MessageStoredEvent] { return e.MessageStored },
		MessageStoredEvent{MessageID: msg.GetID(), ThreadID: threadID, Address: data.Address, StoredAt: msg.GetDate()})

	if _, err := w.recycler.EnforceRetention(ctx, threadID); err != nil {
		logStorage(w.logger, "retention enforcement failed", err, "thread_id", threadID)
	}
	return msg, nil
}

// ReplaceResolver applies the replace short message rule: a replace message
// overwrites the Inbox record with the same address and protocol identifier.
type ReplaceResolver struct {
	inbox  *InboxWriter
	logger *slog.Logger
	otel   *otelInstrumentation
	events *emitter
}

// Replace overwrites the matching Inbox record in place, keeping its ID and
// thread, or stores the message as new when nothing matches. The returned
// flag reports whether an existing record was replaced.
//
// When several records match, only the oldest by date is updated.
func (r *ReplaceResolver) Replace(ctx context.Context, parts []PDU) (store.Message, bool, error) {
	if len(parts) == 0 {
		return nil, false, ErrNoParts
	}

	var (
		msg      store.Message
		replaced bool
	)
	err := r.otel.observe(ctx, opReplace, func(ctx context.Context) error {
		var err error
		msg, replaced, err = r.replace(ctx, parts)
		return err
	}, attribute.Int("protocol", parts[0].Protocol))
	return msg, replaced, err
}

func (r *ReplaceResolver) replace(ctx context.Context, parts []PDU) (store.Message, bool, error) {
	data := r.inbox.inboxData(ctx, parts)
	messages := r.inbox.messages

	existing, err := messages.First(ctx, store.FolderInbox, []store.Filter{
		store.AddressIs(data.Address),
		store.ProtocolIs(data.Protocol),
	}, OldestFirst)
	if err != nil {
		// A failed read is treated as no match.
		logStorage(r.logger, "replace lookup failed", err, "address", data.Address)
	}

	if existing != nil {
		update := store.MessageUpdate{
			Body:             &data.Body,
			Date:             &data.Date,
			IsRead:           &data.IsRead,
			ReplyPathPresent: &data.ReplyPathPresent,
			ServiceCenter:    &data.ServiceCenter,
		}
		if data.Subject != "" {
			update.Subject = &data.Subject
		}
		n, err := messages.UpdateByID(ctx, existing.GetID(), update)
		if err != nil {
			return nil, false, err
		}
		if n > 0 {
			msg, err := messages.Get(ctx, existing.GetID())
			if err != nil {
				return nil, false, err
			}
			publish(ctx, r.events, "MessageReplaced",
				func(e *ServiceEvents) event.Event[MessageReplacedEvent] { return e.MessageReplaced },
				MessageReplacedEvent{
					MessageID:  msg.GetID(),
					ThreadID:   msg.GetThreadID(),
					Address:    data.Address,
					Protocol:   data.Protocol,
					ReplacedAt: data.Date,
				})
			return msg, true, nil
		}
		// The match was deleted between the lookup and the update.
		r.logger.Debug("replace target vanished, storing as new", "message_id", existing.GetID())
	}

	msg, err := r.inbox.insert(ctx, data)
	return msg, false, err
}
