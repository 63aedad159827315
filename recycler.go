package smsbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/smsbox/store"
	"go.opentelemetry.io/otel/attribute"
)

// recycleBatchSize bounds how many messages one delete statement removes.
const recycleBatchSize = 100

// Recycler caps the number of messages retained per thread.
//
// Deletion order is strictly oldest first by message date. The read flag is
// not considered, so unread messages can be recycled. Queued and Outbox
// records are pending sends and never count towards the cap.
type Recycler struct {
	messages *MessageStore
	limit    int
	archiver Archiver
	logger   *slog.Logger
	otel     *otelInstrumentation
	events   *emitter
}

// RecycleResult contains the result of one retention pass.
type RecycleResult struct {
	// DeletedCount is the number of messages deleted.
	DeletedCount int
	// Skipped is true when archiving failed and the pass deleted nothing further.
	Skipped bool
}

// Limit returns the per-thread retention cap.
func (r *Recycler) Limit() int {
	return r.limit
}

// EnforceRetention deletes the oldest messages of threadID beyond the cap.
// Calling it when the thread is within the cap is a no-op.
func (r *Recycler) EnforceRetention(ctx context.Context, threadID string) (*RecycleResult, error) {
	result := &RecycleResult{}
	err := r.otel.observe(ctx, opRecycle, func(ctx context.Context) error {
		return r.enforce(ctx, threadID, result)
	}, attribute.String("thread_id", threadID))
	return result, err
}

func (r *Recycler) enforce(ctx context.Context, threadID string, result *RecycleResult) error {
	if threadID == "" {
		return nil
	}
	filters := []store.Filter{
		store.ThreadIs(threadID),
		store.InFolders(store.RecyclableFolders()...),
	}

	total, err := r.messages.Count(ctx, filters)
	if err != nil {
		return err
	}
	excess := total - int64(r.limit)

	for excess > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch := int(min(excess, recycleBatchSize))
		list, err := r.messages.store.Find(ctx, filters, store.ListOptions{
			Limit:     batch,
			SortBy:    OldestFirst.Field,
			SortOrder: OldestFirst.Direction,
		})
		if err != nil {
			return &StorageError{Op: "query", Err: err}
		}
		if len(list.Messages) == 0 {
			return nil
		}

		if r.archiver != nil {
			if err := r.archiver.Archive(ctx, threadID, list.Messages); err != nil {
				result.Skipped = true
				r.logger.Error("archive before recycle failed, keeping messages",
					"thread_id", threadID, "count", len(list.Messages), "error", err)
				return fmt.Errorf("archive: %w", err)
			}
		}

		ids := list.IDs()
		deleted, err := r.messages.Delete(ctx, []store.Filter{store.IDIn(ids...)})
		if err != nil {
			return err
		}
		if deleted != int64(len(ids)) {
			r.messages.warn(&IntegrityWarning{Op: "recycle", MessageID: threadID, Expected: int64(len(ids)), Affected: deleted})
		}

		result.DeletedCount += int(deleted)
		r.otel.recordRecycled(ctx, deleted)
		publish(ctx, r.events, "MessagesRecycled",
			func(e *ServiceEvents) event.Event[MessagesRecycledEvent] { return e.MessagesRecycled },
			MessagesRecycledEvent{ThreadID: threadID, MessageIDs: ids, RecycledAt: r.messages.clock()})

		r.logger.Debug("recycled old messages", "thread_id", threadID, "count", deleted)

		if deleted == 0 {
			return nil
		}
		excess -= deleted
	}
	return nil
}
