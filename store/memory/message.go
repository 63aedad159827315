package memory

import (
	"time"

	"github.com/rbaliyan/smsbox/store"
)

// message is the internal representation of a stored short message.
// All fields are values, so a struct copy is a deep copy.
type message struct {
	id               string
	threadID         string
	address          string
	body             string
	protocol         int
	date             time.Time
	folder           string
	isRead           bool
	replyPathPresent bool
	serviceCenter    string
	subject          string
	errorCode        int
	createdAt        time.Time
	updatedAt        time.Time
}

// clone creates a copy of the message.
func (m *message) clone() *message {
	c := *m
	return &c
}

// apply writes the non-nil fields of u onto the message.
func (m *message) apply(u store.MessageUpdate, now time.Time) {
	if u.Address != nil {
		m.address = *u.Address
	}
	if u.Body != nil {
		m.body = *u.Body
	}
	if u.Protocol != nil {
		m.protocol = *u.Protocol
	}
	if u.Date != nil {
		m.date = u.Date.UTC()
	}
	if u.Folder != nil {
		m.folder = *u.Folder
	}
	if u.IsRead != nil {
		m.isRead = *u.IsRead
	}
	if u.ReplyPathPresent != nil {
		m.replyPathPresent = *u.ReplyPathPresent
	}
	if u.ServiceCenter != nil {
		m.serviceCenter = *u.ServiceCenter
	}
	if u.Subject != nil {
		m.subject = *u.Subject
	}
	if u.ErrorCode != nil {
		m.errorCode = *u.ErrorCode
	}
	m.updatedAt = now
}

// Message getters (implements store.Message)
func (m *message) GetID() string             { return m.id }
func (m *message) GetThreadID() string       { return m.threadID }
func (m *message) GetAddress() string        { return m.address }
func (m *message) GetBody() string           { return m.body }
func (m *message) GetProtocol() int          { return m.protocol }
func (m *message) GetDate() time.Time        { return m.date }
func (m *message) GetFolder() string         { return m.folder }
func (m *message) GetIsRead() bool           { return m.isRead }
func (m *message) GetReplyPathPresent() bool { return m.replyPathPresent }
func (m *message) GetServiceCenter() string  { return m.serviceCenter }
func (m *message) GetSubject() string        { return m.subject }
func (m *message) GetErrorCode() int         { return m.errorCode }
func (m *message) GetCreatedAt() time.Time   { return m.createdAt }
func (m *message) GetUpdatedAt() time.Time   { return m.updatedAt }

// Compile-time check
var _ store.Message = (*message)(nil)
