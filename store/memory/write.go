package memory

import (
	"context"

	"github.com/rbaliyan/smsbox/store"
)

// Update applies the update to every message matching the filters.
// Each message is re-checked under its lock so concurrent writers never
// apply an update to a message that stopped matching.
func (s *Store) Update(ctx context.Context, filters []store.Filter, update store.MessageUpdate) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}
	if err := update.Validate(); err != nil {
		return 0, err
	}

	var count int64
	for _, candidate := range s.collect(filters) {
		lock := s.getMsgLock(candidate.id)
		lock.Lock()
		v, ok := s.messages.Load(candidate.id)
		if ok && matchesFilters(v.(*message), filters) {
			// Copy-on-write: clone, modify, store
			m := v.(*message).clone()
			m.apply(update, s.now())
			s.messages.Store(m.id, m)
			count++
		}
		lock.Unlock()
	}
	return count, nil
}

// Delete removes every message matching the filters.
func (s *Store) Delete(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}

	var count int64
	for _, candidate := range s.collect(filters) {
		lock := s.getMsgLock(candidate.id)
		lock.Lock()
		v, ok := s.messages.Load(candidate.id)
		if ok && matchesFilters(v.(*message), filters) {
			s.messages.Delete(candidate.id)
			count++
		}
		lock.Unlock()
		s.msgLocks.Delete(candidate.id)
	}
	return count, nil
}

// MoveToFolder moves a message if the transition from its current folder is allowed.
func (s *Store) MoveToFolder(ctx context.Context, id, folder string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}
	if !store.IsValidFolder(folder) {
		return store.ErrInvalidFolder
	}

	lock := s.getMsgLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.messages.Load(id)
	if !ok {
		return store.ErrNotFound
	}
	orig := v.(*message)
	if !store.CanTransition(orig.folder, folder) {
		return store.ErrInvalidTransition
	}

	m := orig.clone()
	m.folder = folder
	m.updatedAt = s.now()
	s.messages.Store(id, m)
	return nil
}
