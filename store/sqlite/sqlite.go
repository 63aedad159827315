// Package sqlite provides a SQLite implementation of store.Store using the
// pure-Go modernc.org/sqlite driver, so no cgo toolchain is required.
package sqlite

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/smsbox/store/sqlstore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver name registered by modernc.org/sqlite.
const DriverName = "sqlite"

func init() {
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// Dialect is the SQLite dialect with driver error classification.
var Dialect = func() sqlstore.Dialect {
	d := sqlstore.SQLite
	d.IsUniqueViolation = func(err error) bool {
		var se *sqlite.Error
		return errors.As(err, &se) &&
			(se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
	}
	return d
}()

// New creates a new SQLite store with the provided database connection.
func New(db *sqlx.DB, opts ...sqlstore.Option) *sqlstore.Store {
	return sqlstore.New(db, Dialect, opts...)
}

// Open opens the database file at path (":memory:" for a private in-memory
// database). The pool is limited to one connection: SQLite serialises writers
// anyway, and an in-memory database exists only on the connection that created it.
// The caller owns the returned DB.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
