// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/smsbox/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	messages  sync.Map // map[string]*message
	threads   sync.Map // map[string]string (address -> thread ID)
	msgLocks  sync.Map // map[string]*sync.Mutex (per-message locks for mutations)
	connected int32

	clockMu  sync.Mutex
	lastTime time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

// getMsgLock returns the mutex for a message ID, creating one if needed.
// Uses LoadOrStore for atomic get-or-create.
func (s *Store) getMsgLock(id string) *sync.Mutex {
	lock, _ := s.msgLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// now returns a strictly increasing UTC timestamp so created_at alone
// orders inserts.
func (s *Store) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.lastTime) {
		t = s.lastTime.Add(time.Nanosecond)
	}
	s.lastTime = t
	return t
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// GetOrCreateThread returns the thread for address, creating it on first use.
func (s *Store) GetOrCreateThread(ctx context.Context, address string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if address == "" {
		return "", store.ErrEmptyAddress
	}
	id, _ := s.threads.LoadOrStore(address, uuid.New().String())
	return id.(string), nil
}

// Insert stores a new message.
func (s *Store) Insert(ctx context.Context, data store.MessageData) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	threadID := data.ThreadID
	if threadID == "" {
		var err error
		if threadID, err = s.GetOrCreateThread(ctx, data.Address); err != nil {
			return nil, err
		}
	}

	now := s.now()
	date := data.Date.UTC()
	if data.Date.IsZero() {
		date = now
	}
	m := &message{
		id:               uuid.New().String(),
		threadID:         threadID,
		address:          data.Address,
		body:             data.Body,
		protocol:         data.Protocol,
		date:             date,
		folder:           data.Folder,
		isRead:           data.IsRead,
		replyPathPresent: data.ReplyPathPresent,
		serviceCenter:    data.ServiceCenter,
		subject:          data.Subject,
		errorCode:        data.ErrorCode,
		createdAt:        now,
		updatedAt:        now,
	}
	s.messages.Store(m.id, m)

	return m.clone(), nil
}
