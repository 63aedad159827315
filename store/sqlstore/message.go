package sqlstore

import (
	"time"

	"github.com/rbaliyan/smsbox/store"
)

// messageColumns is the canonical SELECT column list; it matches the db tags on row.
const messageColumns = `id, thread_id, address, body, protocol, msg_date, folder, is_read,
       reply_path, service_center, subject, error_code, created_at, updated_at`

// row is the scanned form of a message. Times are stored as unix nanoseconds
// so every dialect compares and orders them the same way.
type row struct {
	ID               string `db:"id"`
	ThreadID         string `db:"thread_id"`
	Address          string `db:"address"`
	Body             string `db:"body"`
	Protocol         int    `db:"protocol"`
	Date             int64  `db:"msg_date"`
	Folder           string `db:"folder"`
	IsRead           bool   `db:"is_read"`
	ReplyPathPresent bool   `db:"reply_path"`
	ServiceCenter    string `db:"service_center"`
	Subject          string `db:"subject"`
	ErrorCode        int    `db:"error_code"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// Message getters (implements store.Message)
func (r *row) GetID() string             { return r.ID }
func (r *row) GetThreadID() string       { return r.ThreadID }
func (r *row) GetAddress() string        { return r.Address }
func (r *row) GetBody() string           { return r.Body }
func (r *row) GetProtocol() int          { return r.Protocol }
func (r *row) GetDate() time.Time        { return fromNanos(r.Date) }
func (r *row) GetFolder() string         { return r.Folder }
func (r *row) GetIsRead() bool           { return r.IsRead }
func (r *row) GetReplyPathPresent() bool { return r.ReplyPathPresent }
func (r *row) GetServiceCenter() string  { return r.ServiceCenter }
func (r *row) GetSubject() string        { return r.Subject }
func (r *row) GetErrorCode() int         { return r.ErrorCode }
func (r *row) GetCreatedAt() time.Time   { return fromNanos(r.CreatedAt) }
func (r *row) GetUpdatedAt() time.Time   { return fromNanos(r.UpdatedAt) }

var _ store.Message = (*row)(nil)

// column maps a storage key to its SQL column.
func column(key string) (string, bool) {
	switch key {
	case "date":
		return "msg_date", true
	case "reply_path_present":
		return "reply_path", true
	case "id", "thread_id", "address", "body", "protocol", "folder", "is_read",
		"service_center", "subject", "error_code", "created_at", "updated_at":
		return key, true
	}
	return "", false
}

// sqlValue converts filter and update values to their column representation.
func sqlValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UnixNano()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sqlValue(e)
		}
		return out
	}
	return v
}
