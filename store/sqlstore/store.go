// Package sqlstore provides a database/sql implementation of store.Store on
// top of sqlx. One implementation serves PostgreSQL, SQLite and MySQL; the
// differences are captured by a Dialect. Use the constructors in
// store/postgres, store/sqlite or store/mysql rather than this package directly.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/smsbox/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store over a SQL database.
type Store struct {
	db        *sqlx.DB
	dialect   Dialect
	opts      *options
	connected int32
	logger    *slog.Logger

	clockMu  sync.Mutex
	lastTime int64
}

// New creates a new SQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, dialect Dialect, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:      db,
		dialect: dialect,
		opts:    o,
		logger:  o.logger,
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *sqlx.DB { return s.db }

// Connect verifies the connection and initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("%s: db is required", s.dialect.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("%s ping: %w", s.dialect.Name, err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to SQL store", "dialect", s.dialect.Name, "table", s.opts.table)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	createMessages := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			thread_id VARCHAR(36) NOT NULL,
			address VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			protocol INTEGER NOT NULL DEFAULT 0,
			msg_date BIGINT NOT NULL,
			folder VARCHAR(16) NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			reply_path BOOLEAN NOT NULL DEFAULT FALSE,
			service_center VARCHAR(255) NOT NULL DEFAULT '',
			subject TEXT NOT NULL,
			error_code INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)
	`, s.opts.table)

	createThreads := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			address VARCHAR(255) NOT NULL UNIQUE,
			created_at BIGINT NOT NULL
		)
	`, s.opts.threadTable)

	for _, stmt := range []string{createMessages, createThreads} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	t := s.opts.table
	indexes := []string{
		s.dialect.createIndex("idx_"+t+"_folder_date", t, "folder, msg_date"),
		s.dialect.createIndex("idx_"+t+"_thread_date", t, "thread_id, msg_date"),
		s.dialect.createIndex("idx_"+t+"_address_protocol", t, "address, protocol"),
		s.dialect.createIndex("idx_"+t+"_created", t, "created_at"),
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil && !s.dialect.duplicateIndex(err) {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// now returns strictly increasing unix nanoseconds for created_at/updated_at.
func (s *Store) now() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UnixNano()
	if t <= s.lastTime {
		t = s.lastTime + 1
	}
	s.lastTime = t
	return t
}
