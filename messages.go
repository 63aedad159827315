package smsbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbaliyan/smsbox/store"
)

// MessageStore is the folder-aware view of the row store used by every
// component. It wraps store errors in StorageError and reports unexpected
// row counts as IntegrityWarning.
//
// MessageStore is safe for concurrent use. Read-only consumers may use it
// alongside the dispatcher worker.
type MessageStore struct {
	store    store.Store
	logger   *slog.Logger
	clock    func() time.Time
	pageSize int
}

func newMessageStore(s store.Store, opts *options) *MessageStore {
	return &MessageStore{
		store:    s,
		logger:   opts.logger,
		clock:    opts.clock,
		pageSize: opts.pageSize,
	}
}

// Insert stores a new record in folder. A zero Date is set to the current time.
// The record is written in one statement or not at all.
func (m *MessageStore) Insert(ctx context.Context, folder string, data store.MessageData) (store.Message, error) {
	data.Folder = folder
	if data.Date.IsZero() {
		data.Date = m.clock()
	}
	msg, err := m.store.Insert(ctx, data)
	if err != nil {
		return nil, &StorageError{Op: "insert", Err: err}
	}
	return msg, nil
}

// Get returns one message.
func (m *MessageStore) Get(ctx context.Context, id string) (store.Message, error) {
	msg, err := m.store.Get(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		if store.IsInvalidID(err) {
			return nil, ErrInvalidID
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	return msg, nil
}

// Update applies update to every record matching filters and returns the count.
func (m *MessageStore) Update(ctx context.Context, filters []store.Filter, update store.MessageUpdate) (int64, error) {
	n, err := m.store.Update(ctx, filters, update)
	if err != nil {
		return 0, &StorageError{Op: "update", Err: err}
	}
	return n, nil
}

// UpdateByID updates one record and returns the number of rows changed.
// Zero means the record does not exist. Any other count except one is
// logged as an IntegrityWarning.
func (m *MessageStore) UpdateByID(ctx context.Context, id string, update store.MessageUpdate) (int64, error) {
	n, err := m.Update(ctx, []store.Filter{store.IDIs(id)}, update)
	if err != nil {
		return 0, err
	}
	if n > 1 {
		m.warn(&IntegrityWarning{Op: "update", MessageID: id, Expected: 1, Affected: n})
	}
	return n, nil
}

// Delete removes every record matching filters and returns the count.
func (m *MessageStore) Delete(ctx context.Context, filters []store.Filter) (int64, error) {
	n, err := m.store.Delete(ctx, filters)
	if err != nil {
		return 0, &StorageError{Op: "delete", Err: err}
	}
	return n, nil
}

// DeleteByID removes one record. A count other than one is logged as an
// IntegrityWarning and returned alongside the count.
func (m *MessageStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	n, err := m.Delete(ctx, []store.Filter{store.IDIs(id)})
	if err != nil {
		return 0, err
	}
	if n != 1 {
		w := &IntegrityWarning{Op: "delete", MessageID: id, Expected: 1, Affected: n}
		m.warn(w)
		return n, w
	}
	return n, nil
}

// MoveToFolder moves one record to folder if the folder transition allows it.
// It returns false when the record is missing, the move is not allowed or the
// store fails. Failures are logged; callers continue either way.
func (m *MessageStore) MoveToFolder(ctx context.Context, id, folder string) bool {
	err := m.store.MoveToFolder(ctx, id, folder)
	switch {
	case err == nil:
		return true
	case store.IsNotFound(err), store.IsInvalidTransition(err), store.IsInvalidID(err):
		m.logger.Warn("move to folder refused", "message_id", id, "folder", folder, "error", err)
	default:
		m.logger.Error("move to folder failed", "message_id", id, "folder", folder,
			"error", &StorageError{Op: "move", Err: err})
	}
	return false
}

// MoveAll moves every record in from to to with one bulk update.
// The pair must be an allowed folder transition.
func (m *MessageStore) MoveAll(ctx context.Context, from, to string) (int64, error) {
	if !store.CanTransition(from, to) {
		return 0, ErrInvalidTransition
	}
	return m.Update(ctx, []store.Filter{store.InFolder(from)}, store.MessageUpdate{Folder: &to})
}

// Count returns the number of records matching filters.
func (m *MessageStore) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	n, err := m.store.Count(ctx, filters)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// UnreadCount returns the number of unread Inbox messages.
func (m *MessageStore) UnreadCount(ctx context.Context) (int64, error) {
	return m.Count(ctx, []store.Filter{store.InFolder(store.FolderInbox), store.IsReadFilter(false)})
}

// List returns one page of a folder. An empty folder lists every folder.
func (m *MessageStore) List(ctx context.Context, folder string, opts store.ListOptions) (*store.MessageList, error) {
	var filters []store.Filter
	if folder != "" {
		if !store.IsValidFolder(folder) {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidFolder, folder)
		}
		filters = append(filters, store.InFolder(folder))
	}
	if opts.Limit <= 0 || opts.Limit > m.pageSize {
		opts.Limit = m.pageSize
	}
	list, err := m.store.Find(ctx, filters, opts)
	if err != nil {
		return nil, &StorageError{Op: "find", Err: err}
	}
	return list, nil
}

// Stats returns aggregate counts across all folders.
func (m *MessageStore) Stats(ctx context.Context) (*store.Stats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	return stats, nil
}

func (m *MessageStore) warn(w *IntegrityWarning) {
	m.logger.Warn("unexpected row count", "op", w.Op, "message_id", w.MessageID,
		"expected", w.Expected, "affected", w.Affected, "error", w)
}

// logStorage logs err at error level when it is a StorageError and at warn
// level otherwise.
func logStorage(logger *slog.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	var se *StorageError
	if errors.As(err, &se) {
		logger.Error(msg, args...)
		return
	}
	logger.Warn(msg, args...)
}
