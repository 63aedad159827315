package mongo

import (
	"time"

	"github.com/rbaliyan/smsbox/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// messageDoc is the MongoDB document representation.
type messageDoc struct {
	ID               bson.ObjectID `bson:"_id,omitempty"`
	ThreadID         string        `bson:"thread_id"`
	Address          string        `bson:"address"`
	Body             string        `bson:"body"`
	Protocol         int           `bson:"protocol"`
	Date             time.Time     `bson:"date"`
	Folder           string        `bson:"folder"`
	IsRead           bool          `bson:"is_read"`
	ReplyPathPresent bool          `bson:"reply_path_present"`
	ServiceCenter    string        `bson:"service_center"`
	Subject          string        `bson:"subject"`
	ErrorCode        int           `bson:"error_code"`
	CreatedAt        time.Time     `bson:"created_at"`
	UpdatedAt        time.Time     `bson:"updated_at"`
}

// threadDoc is the MongoDB document for a conversation thread.
type threadDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Address   string        `bson:"address"`
	CreatedAt time.Time     `bson:"created_at"`
}

// message implements store.Message over a decoded document.
type message struct {
	doc messageDoc
}

func docToMessage(doc *messageDoc) *message {
	d := *doc
	d.Date = d.Date.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &message{doc: d}
}

// Message getters (implements store.Message)
func (m *message) GetID() string             { return m.doc.ID.Hex() }
func (m *message) GetThreadID() string       { return m.doc.ThreadID }
func (m *message) GetAddress() string        { return m.doc.Address }
func (m *message) GetBody() string           { return m.doc.Body }
func (m *message) GetProtocol() int          { return m.doc.Protocol }
func (m *message) GetDate() time.Time        { return m.doc.Date }
func (m *message) GetFolder() string         { return m.doc.Folder }
func (m *message) GetIsRead() bool           { return m.doc.IsRead }
func (m *message) GetReplyPathPresent() bool { return m.doc.ReplyPathPresent }
func (m *message) GetServiceCenter() string  { return m.doc.ServiceCenter }
func (m *message) GetSubject() string        { return m.doc.Subject }
func (m *message) GetErrorCode() int         { return m.doc.ErrorCode }
func (m *message) GetCreatedAt() time.Time   { return m.doc.CreatedAt }
func (m *message) GetUpdatedAt() time.Time   { return m.doc.UpdatedAt }

// Compile-time check
var _ store.Message = (*message)(nil)

// updateToSet converts an update to a $set document.
func updateToSet(u store.MessageUpdate, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if u.Address != nil {
		set["address"] = *u.Address
	}
	if u.Body != nil {
		set["body"] = *u.Body
	}
	if u.Protocol != nil {
		set["protocol"] = *u.Protocol
	}
	if u.Date != nil {
		set["date"] = u.Date.UTC()
	}
	if u.Folder != nil {
		set["folder"] = *u.Folder
	}
	if u.IsRead != nil {
		set["is_read"] = *u.IsRead
	}
	if u.ReplyPathPresent != nil {
		set["reply_path_present"] = *u.ReplyPathPresent
	}
	if u.ServiceCenter != nil {
		set["service_center"] = *u.ServiceCenter
	}
	if u.Subject != nil {
		set["subject"] = *u.Subject
	}
	if u.ErrorCode != nil {
		set["error_code"] = *u.ErrorCode
	}
	return set
}
