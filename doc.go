// Package smsbox provides the message handling core of a phone's short
// message service: storing received messages, replacing them in place,
// queueing outgoing messages and retrying sends across radio outages.
//
// Messages live in folders (Inbox, Sent, Outbox, Queued, Failed)
// inside a pluggable store. Every trigger from the outside world (a received
// message, a send result, boot, a connectivity change) is an Event handled
// one at a time by a single worker, so the state machine never races itself.
//
// # Basic Usage
//
//	// Create in-memory store for testing
//	store := memory.New()
//
//	svc, err := smsbox.NewService(
//	    smsbox.WithStore(store),
//	    smsbox.WithRadio(radio),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect connects the store and starts the dispatcher
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	// Recover messages left in flight by the previous run
//	svc.Submit(ctx, smsbox.BootCompleted{})
//
//	// Queue an outgoing message; it is sent when the radio allows
//	msg, err := svc.Enqueue(ctx, "+15551234567", "on my way", "")
//
//	// Report what the radio said about it
//	svc.Submit(ctx, smsbox.SendResult{Code: smsbox.ResultRadioOff, TargetRef: ref})
//
// # Delivery Rules
//
//   - At most one message is handed to the transport per drain.
//   - A message dispatched successfully is removed from Queued.
//   - RadioOff and NoService send results re-queue the message; any other
//     failure moves it to Failed.
//   - Only a change to the in-service state starts a drain.
//   - After each stored message the thread is trimmed to the retention cap,
//     oldest first. Queued and Outbox messages are never trimmed.
//
// # Storage Backends
//
// The store package provides implementations for:
//   - In-memory (store/memory) - for testing
//   - PostgreSQL (store/postgres) - accepts *sqlx.DB
//   - SQLite (store/sqlite) - accepts *sqlx.DB
//   - MySQL (store/mysql) - accepts *sqlx.DB
//   - MongoDB (store/mongo) - accepts *mongo.Client
//
// Wrap any of them with store/otel for tracing and metrics.
//
// # Events
//
// The service publishes typed events using github.com/rbaliyan/event/v3.
// Pass WithRedisClient or WithEventTransport to deliver them anywhere:
//
//	svc, err := smsbox.NewService(
//	    smsbox.WithStore(store),
//	    smsbox.WithRadio(radio),
//	    smsbox.WithRedisClient(redisClient),
//	)
//
//	events := svc.Events()
//	events.MessageStored.Subscribe(ctx, handler)
//	events.MessageFailed.Subscribe(ctx, handler)
//
// Available events:
//   - MessageStored - a received message was written to the inbox
//   - MessageReplaced - a received message overwrote an earlier one
//   - MessageQueued - a message entered the send queue
//   - MessageSent - the radio accepted a message
//   - MessageFailed - a message was moved to Failed
//   - MessagesRecycled - old thread messages were deleted
package smsbox
