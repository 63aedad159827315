package smsbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/event/v3/transport/channel"
	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/memory"
)

func TestNewService(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := NewService(WithTransport(&fakeTransport{}))
		if !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("requires transport or radio", func(t *testing.T) {
		_, err := NewService(WithStore(memory.New()))
		if !errors.Is(err, ErrTransportRequired) {
			t.Errorf("expected ErrTransportRequired, got %v", err)
		}
	})

	t.Run("creates service with radio", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()), WithRadio(&fakeRadio{}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc == nil {
			t.Fatal("expected non-nil service")
		}
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(WithStore(memory.New()), WithTransport(&fakeTransport{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Submit(ctx, DrainRequested{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}
	if _, err := svc.Enqueue(ctx, "+1555", "hi", ""); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected from Enqueue, got %v", err)
	}

	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !svc.IsConnected() {
		t.Error("expected IsConnected after connect")
	}
	if err := svc.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Errorf("second close should not error, got %v", err)
	}
	if err := svc.Handle(ctx, DrainRequested{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestServiceReconnect(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	svc, err := NewService(WithStore(memory.New()), WithTransport(transport))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range 2 {
		if err := svc.Connect(ctx); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		if _, err := svc.Enqueue(ctx, "+1555", "hello", ""); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if err := svc.Close(ctx); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	// Close drains queued events before returning.
	if got := len(transport.sent()); got != 2 {
		t.Errorf("expected 2 dispatched messages, got %d", got)
	}
}

func TestReceiveAndRecycle(t *testing.T) {
	ctx := context.Background()
	notifier := newRecordingNotifier()
	svc := setupTestService(t,
		WithTransport(&fakeTransport{}),
		WithNotifier(notifier),
		WithRetentionCap(2),
	)

	for _, body := range []string{"one", "two", "three"} {
		receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: body})
	}

	inbox := folderMessages(t, svc, store.FolderInbox)
	if len(inbox) != 2 {
		t.Fatalf("expected 2 retained messages, got %d", len(inbox))
	}
	if inbox[0].GetBody() != "two" || inbox[1].GetBody() != "three" {
		t.Errorf("expected newest two retained, got %q and %q", inbox[0].GetBody(), inbox[1].GetBody())
	}
	if inbox[0].GetThreadID() == "" || inbox[0].GetThreadID() != inbox[1].GetThreadID() {
		t.Errorf("expected one shared thread, got %q and %q", inbox[0].GetThreadID(), inbox[1].GetThreadID())
	}
	if inbox[1].GetIsRead() {
		t.Error("received message should be unread")
	}

	ind := notifier.lastIndicator(t)
	if !ind.IsNew || ind.Unread != 2 {
		t.Errorf("expected new indicator with 2 unread, got %+v", ind)
	}

	// A different counterpart has its own thread and its own cap.
	receive(t, svc, PDU{OriginatingAddress: "+15550002", DisplayBody: "other"})
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got := stats.InFolder(store.FolderInbox).Total; got != 3 {
		t.Errorf("expected 3 inbox messages, got %d", got)
	}
}

func TestReceiveMultipart(t *testing.T) {
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	err := svc.Handle(context.Background(), MessageReceived{Parts: []PDU{
		{OriginatingAddress: "+15550001", DisplayBody: "hello "},
		{OriginatingAddress: "+15550001", DisplayBody: "world"},
	}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	inbox := folderMessages(t, svc, store.FolderInbox)
	if len(inbox) != 1 || inbox[0].GetBody() != "hello world" {
		t.Fatalf("expected one joined message, got %d", len(inbox))
	}
}

func TestReceiveRejectsEmptyParts(t *testing.T) {
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	err := svc.Handle(context.Background(), MessageReceived{})
	if !errors.Is(err, ErrNoParts) {
		t.Errorf("expected ErrNoParts, got %v", err)
	}
}

func TestReplaceMessage(t *testing.T) {
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "old", Protocol: ProtocolReplaceType1})
	first := folderMessages(t, svc, store.FolderInbox)[0]

	receive(t, svc, PDU{
		OriginatingAddress: "+15550001",
		DisplayBody:        "new",
		Protocol:           ProtocolReplaceType1,
		PseudoSubject:      "update",
		ServiceCenter:      "+15559999",
	})

	inbox := folderMessages(t, svc, store.FolderInbox)
	if len(inbox) != 1 {
		t.Fatalf("expected replace to keep one record, got %d", len(inbox))
	}
	got := inbox[0]
	if got.GetID() != first.GetID() {
		t.Errorf("expected id %s to be kept, got %s", first.GetID(), got.GetID())
	}
	if got.GetBody() != "new" || got.GetSubject() != "update" || got.GetServiceCenter() != "+15559999" {
		t.Errorf("replace did not overwrite fields: body=%q subject=%q sc=%q",
			got.GetBody(), got.GetSubject(), got.GetServiceCenter())
	}
	if !got.GetDate().After(first.GetDate()) {
		t.Error("replace should refresh the date")
	}

	// Another replace type from the same sender does not match.
	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "other", Protocol: ProtocolReplaceType1 + 1})
	// Nor does the same type from another sender.
	receive(t, svc, PDU{OriginatingAddress: "+15550002", DisplayBody: "third", Protocol: ProtocolReplaceType1})

	if got := folderCount(t, svc, store.FolderInbox); got != 3 {
		t.Errorf("expected 3 inbox records, got %d", got)
	}
}

func TestReplaceMarksUnread(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "v1", Protocol: ProtocolReturnCall})
	msg := folderMessages(t, svc, store.FolderInbox)[0]
	read := true
	if _, err := svc.Messages().UpdateByID(ctx, msg.GetID(), store.MessageUpdate{IsRead: &read}); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "v2", Protocol: ProtocolReturnCall})

	got, err := svc.Messages().Get(ctx, msg.GetID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetIsRead() {
		t.Error("replaced message should be unread")
	}
}

func TestClassZeroIsDisplayedNotStored(t *testing.T) {
	display := &recordingDisplay{}
	svc := setupTestService(t, WithTransport(&fakeTransport{}), WithDisplay(display))

	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "flash", Class: Class0, Raw: []byte{0x01}})

	if display.count() != 1 {
		t.Errorf("expected 1 display call, got %d", display.count())
	}
	if got := folderCount(t, svc, store.FolderInbox); got != 0 {
		t.Errorf("class zero message must not be stored, got %d", got)
	}
}

func TestTransientFailureRetry(t *testing.T) {
	ctx := context.Background()
	radio := &fakeRadio{}
	notifier := newRecordingNotifier()
	svc := setupTestService(t, WithRadio(radio), WithNotifier(notifier))

	if _, err := svc.Enqueue(ctx, "+15550001", "are you there", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Handle queues behind the drain Enqueue requested.
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	first := radio.last(t)

	if err := svc.Handle(ctx, SendResult{Code: ResultRadioOff, TargetRef: first.MessageID}); err != nil {
		t.Fatalf("send result: %v", err)
	}
	select {
	case <-notifier.transient:
	case <-time.After(time.Second):
		t.Fatal("expected a transient queued notice")
	}
	if got := folderCount(t, svc, store.FolderQueued); got != 1 {
		t.Fatalf("expected message back in queued, got %d", got)
	}
	if got := len(radio.sent()); got != 1 {
		t.Fatalf("transient failure must not drain, got %d transmissions", got)
	}

	// Losing service does not drain; regaining it does.
	if err := svc.Handle(ctx, ConnectivityChanged{State: StateOutOfService}); err != nil {
		t.Fatalf("connectivity: %v", err)
	}
	if got := len(radio.sent()); got != 1 {
		t.Fatalf("out of service must not drain, got %d transmissions", got)
	}
	if err := svc.Handle(ctx, ConnectivityChanged{State: StateInService}); err != nil {
		t.Fatalf("connectivity: %v", err)
	}
	if got := len(radio.sent()); got != 2 {
		t.Fatalf("expected retry after service returned, got %d transmissions", got)
	}

	second := radio.last(t)
	if second.Body != "are you there" {
		t.Errorf("unexpected retried body %q", second.Body)
	}
	if err := svc.Handle(ctx, SendResult{Code: ResultOK, TargetRef: second.MessageID}); err != nil {
		t.Fatalf("send result: %v", err)
	}

	sent := folderMessages(t, svc, store.FolderSent)
	if len(sent) != 1 || sent[0].GetID() != second.MessageID {
		t.Fatalf("expected the attempt in sent, got %d", len(sent))
	}
	for _, folder := range []string{store.FolderQueued, store.FolderOutbox, store.FolderFailed} {
		if got := folderCount(t, svc, folder); got != 0 {
			t.Errorf("expected empty %s, got %d", folder, got)
		}
	}
}

func TestPermanentFailure(t *testing.T) {
	ctx := context.Background()
	radio := &fakeRadio{}
	notifier := newRecordingNotifier()
	svc := setupTestService(t, WithRadio(radio), WithNotifier(notifier))

	for _, body := range []string{"first", "second"} {
		if _, err := svc.Enqueue(ctx, "+15550001", body, ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := len(radio.sent()); got != 1 {
		t.Fatalf("expected one attempt in flight, got %d transmissions", got)
	}
	first := radio.last(t)

	// A hard failure still drains the next queued message.
	if err := svc.Handle(ctx, SendResult{Code: ResultGenericFailure, TargetRef: first.MessageID}); err != nil {
		t.Fatalf("send result: %v", err)
	}
	failed := folderMessages(t, svc, store.FolderFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed message, got %d", len(failed))
	}
	if failed[0].GetErrorCode() != int(ResultGenericFailure) {
		t.Errorf("expected error code %d, got %d", ResultGenericFailure, failed[0].GetErrorCode())
	}
	if notifier.sendFailedCount() != 1 {
		t.Errorf("expected 1 send failed notification, got %d", notifier.sendFailedCount())
	}
	if got := len(radio.sent()); got != 2 {
		t.Fatalf("expected the second message after the failure, got %d transmissions", got)
	}
	second := radio.last(t)
	if second.Body != "second" {
		t.Errorf("unexpected body %q", second.Body)
	}

	// Resend queues it again. It waits for the second attempt to finish.
	if err := svc.Resend(ctx, failed[0].GetID()); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := len(radio.sent()); got != 2 {
		t.Fatalf("resend must wait for the attempt in flight, got %d transmissions", got)
	}
	if got := folderCount(t, svc, store.FolderFailed); got != 0 {
		t.Errorf("expected failed folder empty after resend, got %d", got)
	}

	if err := svc.Handle(ctx, SendResult{Code: ResultOK, TargetRef: second.MessageID}); err != nil {
		t.Fatalf("send result: %v", err)
	}
	if got := len(radio.sent()); got != 3 {
		t.Fatalf("expected resend to transmit after the result, got %d transmissions", got)
	}
	if got := radio.last(t).Body; got != "first" {
		t.Errorf("unexpected resent body %q", got)
	}
}

func TestSingleAttemptInFlight(t *testing.T) {
	ctx := context.Background()
	radio := &fakeRadio{}
	svc := setupTestService(t, WithRadio(radio))

	for _, body := range []string{"A", "B", "C"} {
		if _, err := svc.Enqueue(ctx, "+15550001", body, ""); err != nil {
			t.Fatalf("enqueue %s: %v", body, err)
		}
	}
	// Handle waits behind the drains the enqueues requested.
	if err := svc.Handle(ctx, ConnectivityChanged{State: StateOutOfService}); err != nil {
		t.Fatalf("connectivity: %v", err)
	}
	if got := len(radio.sent()); got != 1 {
		t.Fatalf("expected 1 transmission before any send result, got %d", got)
	}
	if got := folderCount(t, svc, store.FolderOutbox); got != 1 {
		t.Fatalf("expected 1 outbox record, got %d", got)
	}
	if got := folderCount(t, svc, store.FolderQueued); got != 2 {
		t.Fatalf("expected 2 queued, got %d", got)
	}

	for i, want := range []string{"A", "B", "C"} {
		attempt := radio.last(t)
		if attempt.Body != want {
			t.Fatalf("attempt %d: body %q, want %q", i, attempt.Body, want)
		}
		if got := len(radio.sent()); got != i+1 {
			t.Fatalf("attempt %d: %d transmissions", i, got)
		}
		if err := svc.Handle(ctx, SendResult{Code: ResultOK, TargetRef: attempt.MessageID}); err != nil {
			t.Fatalf("send result: %v", err)
		}
	}
	if got := folderCount(t, svc, store.FolderSent); got != 3 {
		t.Errorf("expected 3 sent, got %d", got)
	}
}

func TestDrainRequestWaitsForOutbox(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Connect(ctx); err != nil {
		t.Fatalf("connect store: %v", err)
	}
	if _, err := st.Insert(ctx, store.MessageData{Address: "+15550001", Body: "pending", Folder: store.FolderOutbox, Date: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.Close(ctx); err != nil {
		t.Fatalf("close store: %v", err)
	}
	transport := &fakeTransport{}
	svc := setupTestService(t, WithStore(st), WithTransport(transport))

	if _, err := svc.Enqueue(ctx, "+15550001", "next", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := len(transport.sent()); got != 0 {
		t.Errorf("expected no dispatch while an outbox record waits, got %d", got)
	}

	// Connectivity returning always drains.
	if err := svc.Handle(ctx, ConnectivityChanged{State: StateInService}); err != nil {
		t.Fatalf("connectivity: %v", err)
	}
	if got := len(transport.sent()); got != 1 {
		t.Errorf("expected dispatch after service returned, got %d", got)
	}
}

func TestReceiveOversizedBodyIsStored(t *testing.T) {
	svc := setupTestService(t, WithTransport(&fakeTransport{}), WithMaxBodySize(8))

	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "longer than eight bytes"})

	inbox := folderMessages(t, svc, store.FolderInbox)
	if len(inbox) != 1 || inbox[0].GetBody() != "longer than eight bytes" {
		t.Fatalf("expected the oversized message stored, got %d", len(inbox))
	}
	if _, err := svc.Enqueue(context.Background(), "+15550001", "longer than eight bytes", ""); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge for outbound, got %v", err)
	}
}

func TestResendRequiresFailed(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithTransport(&fakeTransport{}))

	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "hi"})
	msg := folderMessages(t, svc, store.FolderInbox)[0]

	if err := svc.Resend(ctx, msg.GetID()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := svc.Resend(ctx, "missing"); !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRejectedDispatchStaysQueued(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{err: errors.New("modem busy")}
	svc := setupTestService(t, WithTransport(transport))

	msg, err := svc.Enqueue(ctx, "+15550001", "hello", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Handle(ctx, DrainRequested{}); err != nil {
		t.Fatalf("drain: %v", err)
	}

	queued := folderMessages(t, svc, store.FolderQueued)
	if len(queued) != 1 || queued[0].GetID() != msg.GetID() {
		t.Fatalf("rejected message must stay queued, got %d", len(queued))
	}

	transport.setErr(nil)
	if err := svc.Handle(ctx, ConnectivityChanged{State: StateInService}); err != nil {
		t.Fatalf("connectivity: %v", err)
	}
	if got := len(transport.sent()); got != 1 {
		t.Errorf("expected dispatch after service returned, got %d", got)
	}
	if got := folderCount(t, svc, store.FolderQueued); got != 0 {
		t.Errorf("expected queue empty, got %d", got)
	}
}

func TestBootRequeuesOutbox(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	radio := &fakeRadio{}
	notifier := newRecordingNotifier()

	if err := st.Connect(ctx); err != nil {
		t.Fatalf("connect store: %v", err)
	}
	stale, err := st.Insert(ctx, store.MessageData{
		Address: "+15550001",
		Body:    "in flight at shutdown",
		Folder:  store.FolderOutbox,
		Date:    time.Now(),
		IsRead:  true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.Close(ctx); err != nil {
		t.Fatalf("close store: %v", err)
	}

	svc := setupTestService(t, WithStore(st), WithRadio(radio), WithNotifier(notifier))
	if err := svc.Handle(ctx, BootCompleted{}); err != nil {
		t.Fatalf("boot: %v", err)
	}

	if _, err := svc.Messages().Get(ctx, stale.GetID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale outbox record should be requeued and dispatched, got %v", err)
	}
	sent := radio.sent()
	if len(sent) != 1 || sent[0].Body != "in flight at shutdown" {
		t.Fatalf("expected the stale message to be retransmitted, got %d", len(sent))
	}
	if ind := notifier.lastIndicator(t); ind.IsNew {
		t.Error("boot refresh must not flag a new message")
	}
}

func TestServiceEvents(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(
		WithStore(memory.New()),
		WithTransport(&fakeTransport{}),
		WithEventTransport(channel.New()),
	)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if svc.Events() != nil {
		t.Error("expected no events before connect")
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	events := svc.Events()
	if events == nil {
		t.Fatal("expected events after connect")
	}
	if events.MessageStored == nil || events.MessageQueued == nil || events.MessagesRecycled == nil {
		t.Error("expected every event to be created")
	}

	// Publishing through a live bus must not disturb handling.
	receive(t, svc, PDU{OriginatingAddress: "+15550001", DisplayBody: "hi"})

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if svc.Events() != nil {
		t.Error("expected events cleared after close")
	}
}
