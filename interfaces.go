package smsbox

import (
	"context"
	"log/slog"

	"github.com/rbaliyan/smsbox/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the smsbox package without importing store directly.
type (
	Message     = store.Message
	ListOptions = store.ListOptions
	SortOrder   = store.SortOrder
)

// Re-exported sort order constants.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc
)

// SendRequest is one outbound message handed to a Transport.
type SendRequest struct {
	Addresses []string
	Body      string
	ThreadID  string
	// Token correlates the request with later send results.
	Token string
}

// Transport accepts outbound messages for delivery.
//
// Send returns nil once the message has been accepted for sending, not once
// it has been delivered. The outcome arrives later as a SendResult event whose
// TargetRef names the Outbox record the transport created for the attempt.
// Send must not wait for delivery.
type Transport interface {
	Send(ctx context.Context, req SendRequest) error
}

// Transmission is a single-address send handed to a Radio.
type Transmission struct {
	// MessageID is the Outbox record for this attempt. The radio must echo it
	// as SendResult.TargetRef.
	MessageID string
	Address   string
	Body      string
	ThreadID  string
	Token     string
}

// Radio is the low-level modem interface used by OutboxSender.
// Transmit returns an error only when the radio refuses the message outright.
type Radio interface {
	Transmit(ctx context.Context, t Transmission) error
}

// NewMessageIndicator is the state passed to Notifier.NotifyNewMessage.
type NewMessageIndicator struct {
	// Unread is the number of unread Inbox messages.
	Unread int64
	// IsNew is true when a message was just stored, false on a plain refresh.
	IsNew bool
}

// Notifier surfaces state changes to the user.
// Methods are called from the dispatcher worker and must return quickly.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, ind NewMessageIndicator)
	NotifySendFailed(ctx context.Context)
	// RefreshFailedIndicator is called after a successful send with the
	// current number of failed messages.
	RefreshFailedIndicator(ctx context.Context, failed int64)
	ShowTransientQueuedNotice(ctx context.Context)
}

// Display presents class-zero messages, which are never stored.
type Display interface {
	PresentImmediately(ctx context.Context, raw []byte, address string)
}

// ThreadResolver maps a counterpart address to a conversation thread.
type ThreadResolver interface {
	GetOrCreateThreadID(ctx context.Context, address string) (string, error)
}

// ContactResolver normalises addresses. Implementations are best effort and
// should return the input unchanged when they have no better answer.
type ContactResolver interface {
	CanonicalAddress(ctx context.Context, address string) string
}

// Archiver receives messages that are about to be recycled.
// When Archive returns an error the messages are kept.
type Archiver interface {
	Archive(ctx context.Context, threadID string, msgs []store.Message) error
}

// storeThreads resolves threads through the row store.
type storeThreads struct {
	store store.ThreadStore
}

func (t storeThreads) GetOrCreateThreadID(ctx context.Context, address string) (string, error) {
	return t.store.GetOrCreateThread(ctx, address)
}

// identityContacts returns every address unchanged.
type identityContacts struct{}

func (identityContacts) CanonicalAddress(_ context.Context, address string) string {
	return address
}

// logNotifier logs notifications at debug level. Used when no Notifier is configured.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) NotifyNewMessage(_ context.Context, ind NewMessageIndicator) {
	n.logger.Debug("new message indicator", "unread", ind.Unread, "is_new", ind.IsNew)
}

func (n logNotifier) NotifySendFailed(context.Context) {
	n.logger.Debug("send failed notification")
}

func (n logNotifier) RefreshFailedIndicator(_ context.Context, failed int64) {
	n.logger.Debug("failed indicator refreshed", "failed", failed)
}

func (n logNotifier) ShowTransientQueuedNotice(context.Context) {
	n.logger.Debug("message queued until service returns")
}

// logDisplay logs class-zero messages. Used when no Display is configured.
type logDisplay struct {
	logger *slog.Logger
}

func (d logDisplay) PresentImmediately(_ context.Context, raw []byte, address string) {
	d.logger.Warn("class zero message dropped: no display configured",
		"address", address, "size", len(raw))
}
