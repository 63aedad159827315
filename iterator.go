package smsbox

import (
	"context"
	"iter"

	"github.com/rbaliyan/smsbox/store"
)

// Order is a caller-specified sort for Query.
// Records with equal Field values are ordered by creation time, then ID.
type Order struct {
	Field     string
	Direction store.SortOrder
}

// Common orderings.
var (
	// OldestFirst orders by message date ascending. The send queue and the
	// recycler both use it.
	OldestFirst = Order{Field: "date", Direction: store.SortAsc}
	// NewestFirst orders by message date descending.
	NewestFirst = Order{Field: "date", Direction: store.SortDesc}
)

// Query returns a lazy sequence over the records of folder that match filters,
// in exactly the given order. Records are fetched a page at a time.
//
// The sequence is finite and restartable: every range over it runs the query
// again from the start. A failed page is yielded as a (nil, *StorageError)
// pair and ends the sequence. Callers that change the folder while ranging
// may see records shift between pages.
//
// Example:
//
//	for msg, err := range svc.Messages().Query(ctx, store.FolderQueued, nil, smsbox.OldestFirst) {
//	    if err != nil {
//	        break
//	    }
//	    fmt.Println(msg.GetAddress(), msg.GetBody())
//	}
func (m *MessageStore) Query(ctx context.Context, folder string, filters []store.Filter, order Order) iter.Seq2[store.Message, error] {
	all := make([]store.Filter, 0, len(filters)+1)
	if folder != "" {
		all = append(all, store.InFolder(folder))
	}
	all = append(all, filters...)

	return func(yield func(store.Message, error) bool) {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			list, err := m.store.Find(ctx, all, store.ListOptions{
				Limit:     m.pageSize,
				Offset:    offset,
				SortBy:    order.Field,
				SortOrder: order.Direction,
			})
			if err != nil {
				yield(nil, &StorageError{Op: "query", Err: err})
				return
			}
			for _, msg := range list.Messages {
				if !yield(msg, nil) {
					return
				}
			}
			if !list.HasMore || len(list.Messages) == 0 {
				return
			}
			offset += len(list.Messages)
		}
	}
}

// First returns the first record of folder in the given order, or nil when
// the folder has no matching records.
func (m *MessageStore) First(ctx context.Context, folder string, filters []store.Filter, order Order) (store.Message, error) {
	all := make([]store.Filter, 0, len(filters)+1)
	all = append(all, store.InFolder(folder))
	all = append(all, filters...)

	list, err := m.store.Find(ctx, all, store.ListOptions{
		Limit:     1,
		SortBy:    order.Field,
		SortOrder: order.Direction,
	})
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	if len(list.Messages) == 0 {
		return nil, nil
	}
	return list.Messages[0], nil
}
