package smsbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/smsbox/store"
	"go.opentelemetry.io/otel/attribute"
)

// DeliveryStateMachine reacts to receive, send-result, connectivity and boot
// events. It is driven by the dispatcher worker, one event at a time.
//
// Per outbound message the states are:
//
//	Queued -> Outbox (sending) -> Sent | Failed | Queued (retry)
type DeliveryStateMachine struct {
	messages *MessageStore
	queue    *SendQueue
	inbox    *InboxWriter
	replacer *ReplaceResolver
	notifier Notifier
	display  Display
	limits   Limits
	logger   *slog.Logger
	otel     *otelInstrumentation
	events   *emitter

	// notices tracks fire-and-forget notifications still running.
	notices sync.WaitGroup

	// inFlight is set while a dispatched attempt awaits its send result.
	inFlight atomic.Bool
}

// OnReceive classifies an incoming message and stores it.
//
// Class-zero messages go to the display and are never stored. Replace
// messages go through the ReplaceResolver. Everything else is inserted into
// the Inbox followed by retention enforcement. When a record was stored the
// new-message indicator fires with the current unread count.
func (m *DeliveryStateMachine) OnReceive(ctx context.Context, parts []PDU) (store.Message, error) {
	if len(parts) == 0 {
		return nil, ErrNoParts
	}
	first := parts[0]

	var msg store.Message
	err := m.otel.observe(ctx, opReceive, func(ctx context.Context) error {
		if first.Class == Class0 {
			m.display.PresentImmediately(ctx, first.Raw, first.OriginatingAddress)
			return nil
		}
		if err := ValidateParts(parts, m.limits); err != nil {
			return err
		}

		var err error
		if first.IsReplace() {
			msg, _, err = m.replacer.Replace(ctx, parts)
		} else {
			msg, err = m.inbox.Store(ctx, parts)
		}
		return err
	}, attribute.String("class", first.Class.String()), attribute.Bool("replace", first.IsReplace()))
	if err != nil {
		logStorage(m.logger, "failed to store received message", err, "parts", len(parts))
		return nil, err
	}

	if msg != nil {
		m.refreshNewMessageIndicator(ctx, true)
	}
	return msg, nil
}

// OnSendResult moves the attempt's Outbox record according to code.
//
//   - ResultOK: Outbox -> Sent, drain the next queued message, refresh the
//     failed indicator.
//   - Transient failures: Outbox -> Queued and a transient notice. No drain,
//     since the radio has no service.
//   - Any other code: Outbox -> Failed with the error code, a send-failed
//     notification, then drain the next queued message anyway.
//
// A failed move is logged and processing continues.
func (m *DeliveryStateMachine) OnSendResult(ctx context.Context, code ResultCode, targetRef string) error {
	m.inFlight.Store(false)
	return m.otel.observe(ctx, opSendResult, func(ctx context.Context) error {
		now := m.messages.clock()
		switch {
		case code == ResultOK:
			if m.messages.MoveToFolder(ctx, targetRef, store.FolderSent) {
				publish(ctx, m.events, "MessageSent",
					func(e *ServiceEvents) event.Event[MessageSentEvent] { return e.MessageSent },
					MessageSentEvent{MessageID: targetRef, SentAt: now})
			} else {
				m.logger.Error("failed to move message to sent folder", "message_id", targetRef)
			}
			m.drain(ctx, "send_result")
			m.refreshFailedIndicator(ctx)

		case code.Transient():
			if m.messages.MoveToFolder(ctx, targetRef, store.FolderQueued) {
				publish(ctx, m.events, "MessageQueued",
					func(e *ServiceEvents) event.Event[MessageQueuedEvent] { return e.MessageQueued },
					MessageQueuedEvent{MessageID: targetRef, Reason: code.String(), QueuedAt: now})
			}
			m.notify(ctx, m.notifier.ShowTransientQueuedNotice)

		default:
			if m.messages.MoveToFolder(ctx, targetRef, store.FolderFailed) {
				errorCode := int(code)
				if _, err := m.messages.UpdateByID(ctx, targetRef, store.MessageUpdate{ErrorCode: &errorCode}); err != nil {
					logStorage(m.logger, "failed to record error code", err, "message_id", targetRef)
				}
				publish(ctx, m.events, "MessageFailed",
					func(e *ServiceEvents) event.Event[MessageFailedEvent] { return e.MessageFailed },
					MessageFailedEvent{MessageID: targetRef, Code: errorCode, FailedAt: now})
			}
			m.notifier.NotifySendFailed(ctx)
			m.drain(ctx, "send_result")
		}
		return nil
	}, attribute.String("result", code.String()))
}

// OnConnectivityChanged drains the queue when service returns.
// Other states are logged and ignored.
func (m *DeliveryStateMachine) OnConnectivityChanged(ctx context.Context, state ServiceState) {
	_ = m.otel.observe(ctx, opConnectivity, func(ctx context.Context) error {
		if state != StateInService {
			m.logger.Debug("service state changed, not draining", "state", state.String())
			return nil
		}
		m.drain(ctx, "connectivity")
		return nil
	}, attribute.String("state", state.String()))
}

// OnBoot demotes every Outbox record to Queued, since attempts in flight at
// shutdown are assumed unsent, then drains once and refreshes the new-message
// indicator unconditionally.
func (m *DeliveryStateMachine) OnBoot(ctx context.Context) error {
	m.inFlight.Store(false)
	return m.otel.observe(ctx, opBoot, func(ctx context.Context) error {
		n, err := m.messages.MoveAll(ctx, store.FolderOutbox, store.FolderQueued)
		if err != nil {
			logStorage(m.logger, "failed to requeue outbox messages", err)
		} else if n > 0 {
			m.logger.Info("requeued outbox messages after boot", "count", n)
		}
		m.drain(ctx, "boot")
		m.refreshNewMessageIndicator(ctx, false)
		return nil
	})
}

// OnDrainRequested drains once unless an attempt is still in flight, in
// which case the message waits for that attempt's send result. Used after
// Enqueue and Resend.
func (m *DeliveryStateMachine) OnDrainRequested(ctx context.Context) {
	if m.attemptInFlight(ctx) {
		m.logger.Debug("send attempt in flight, drain deferred")
		return
	}
	m.drain(ctx, "request")
}

// attemptInFlight reports whether a dispatched attempt has not reported back
// yet, or an Outbox record is still waiting for its result.
func (m *DeliveryStateMachine) attemptInFlight(ctx context.Context) bool {
	if m.inFlight.Load() {
		return true
	}
	n, err := m.messages.Count(ctx, []store.Filter{store.InFolder(store.FolderOutbox)})
	if err != nil {
		logStorage(m.logger, "failed to count outbox messages", err)
		return false
	}
	return n > 0
}

// reset forgets any attempt in flight. A new connection starts clean.
func (m *DeliveryStateMachine) reset() {
	m.inFlight.Store(false)
}

// drain runs one SendQueue drain and logs the outcome.
func (m *DeliveryStateMachine) drain(ctx context.Context, trigger string) {
	outcome, err := m.queue.DrainOne(ctx)
	if err != nil {
		// Rejected dispatches are already logged by the queue.
		if _, ok := IsDispatchError(err); !ok {
			logStorage(m.logger, "drain failed", err, "trigger", trigger)
		}
		return
	}
	if outcome == DrainDispatched {
		m.inFlight.Store(true)
	}
	m.logger.Debug("drain finished", "trigger", trigger, "outcome", outcome.String())
}

func (m *DeliveryStateMachine) refreshNewMessageIndicator(ctx context.Context, isNew bool) {
	unread, err := m.messages.UnreadCount(ctx)
	if err != nil {
		logStorage(m.logger, "failed to count unread messages", err)
	}
	m.notifier.NotifyNewMessage(ctx, NewMessageIndicator{Unread: unread, IsNew: isNew})
}

func (m *DeliveryStateMachine) refreshFailedIndicator(ctx context.Context) {
	failed, err := m.messages.Count(ctx, []store.Filter{store.InFolder(store.FolderFailed)})
	if err != nil {
		logStorage(m.logger, "failed to count failed messages", err)
	}
	m.notifier.RefreshFailedIndicator(ctx, failed)
}

// notify runs fn without blocking the worker. Panics are logged.
func (m *DeliveryStateMachine) notify(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	m.notices.Add(1)
	go func() {
		defer m.notices.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic in notifier", "panic", r)
			}
		}()
		fn(ctx)
	}()
}

// wait blocks until outstanding notifications finish or ctx is done.
func (m *DeliveryStateMachine) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.notices.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
