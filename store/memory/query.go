package memory

import (
	"context"

	"github.com/rbaliyan/smsbox/store"
)

// Get retrieves a message by ID.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	v, ok := s.messages.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.(*message).clone(), nil
}

// Find retrieves messages matching the filters.
func (s *Store) Find(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	sortBy := "created_at"
	if opts.SortBy != "" {
		key, ok := store.MessageOrderingKey(opts.SortBy)
		if !ok {
			return nil, store.ErrFilterInvalid
		}
		sortBy = key
	}

	all := s.collect(filters)
	sortMessages(all, sortBy, opts.SortOrder)

	total := int64(len(all))
	start := min(max(opts.Offset, 0), len(all))
	end := len(all)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, len(all))
	}

	page := all[start:end]
	result := make([]store.Message, len(page))
	for i, m := range page {
		result[i] = m.clone()
	}

	return &store.MessageList{
		Messages: result,
		Total:    total,
		HasMore:  end < len(all),
	}, nil
}

// Count returns the number of messages matching the filters.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	var count int64
	s.messages.Range(func(_, v any) bool {
		if matchesFilters(v.(*message), filters) {
			count++
		}
		return true
	})
	return count, nil
}

// collect returns the current snapshot of messages matching all filters.
func (s *Store) collect(filters []store.Filter) []*message {
	var all []*message
	s.messages.Range(func(_, v any) bool {
		m := v.(*message)
		if matchesFilters(m, filters) {
			all = append(all, m)
		}
		return true
	})
	return all
}
