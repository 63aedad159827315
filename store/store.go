// Package store provides interfaces and types for short message storage.
// Implementations are in store/memory, store/sqlstore (with the postgres,
// sqlite and mysql constructors) and store/mongo.
//
// # Conditional Writes Instead of Locks
//
// The store never asks callers to take a lock around a read followed by a
// write. Every state change that depends on the current state is a single
// conditional statement that the database evaluates atomically:
//
//  1. Folder moves: MoveToFolder updates the row only when its current folder
//     is an allowed source for the destination. A zero affected-row count is
//     reported as ErrInvalidTransition (or ErrNotFound when the id is unknown).
//
//  2. Thread creation: GetOrCreateThread relies on a unique address index and
//     an insert that ignores conflicts, followed by a read of the winner.
//
//  3. Bulk changes: Update and Delete take a filter list and report how many
//     rows they touched. Callers that expect exactly one row check the count
//     themselves instead of reading first.
//
// Example - retrying a failed send:
//
//	// WRONG: read-check-write races with the send path
//	msg, _ := s.Get(ctx, id)
//	if msg.GetFolder() == store.FolderFailed {
//	    s.Update(ctx, []store.Filter{store.IDIs(id)}, queued)
//	}
//
//	// CORRECT: the store checks the source folder atomically
//	err := s.MoveToFolder(ctx, id, store.FolderQueued)
//	if store.IsInvalidTransition(err) {
//	    return nil // someone else already moved it
//	}
package store

import (
	"context"
)

// Store is the storage interface for short messages.
//
// All operations must be safe for concurrent use. Implementations must use
// database-level atomicity (conditional updates, unique indexes) rather than
// external locking. See package documentation for details.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	MessageReader
	MessageWriter
	ThreadStore
	StatsStore
}

// MessageReader provides read access to stored messages.
type MessageReader interface {
	// Get returns a message by ID. Returns ErrNotFound when missing.
	Get(ctx context.Context, id string) (Message, error)

	// Find returns messages matching all filters, paged and ordered by opts.
	// An empty filter list matches every message.
	Find(ctx context.Context, filters []Filter, opts ListOptions) (*MessageList, error)

	// Count returns the number of messages matching all filters.
	Count(ctx context.Context, filters []Filter) (int64, error)
}

// MessageWriter provides write access to stored messages.
type MessageWriter interface {
	// Insert stores a new message and returns it with its assigned ID.
	// If data.ThreadID is empty the thread is resolved from the address.
	Insert(ctx context.Context, data MessageData) (Message, error)

	// Update applies the update to every message matching all filters and
	// returns the number of messages changed.
	// An empty filter list returns ErrFilterInvalid.
	Update(ctx context.Context, filters []Filter, update MessageUpdate) (int64, error)

	// Delete removes every message matching all filters and returns the count.
	// An empty filter list returns ErrFilterInvalid.
	Delete(ctx context.Context, filters []Filter) (int64, error)

	// MoveToFolder moves one message to folder if the move is allowed from
	// its current folder (see CanTransition). Returns ErrNotFound when the
	// message does not exist and ErrInvalidTransition when the move is not
	// allowed.
	MoveToFolder(ctx context.Context, id, folder string) error
}

// ThreadStore maps counterpart addresses to conversation threads.
type ThreadStore interface {
	// GetOrCreateThread returns the thread ID for address, creating the
	// thread on first use. Concurrent callers for one address get one ID.
	GetOrCreateThread(ctx context.Context, address string) (string, error)
}
