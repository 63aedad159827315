// Package postgres provides a PostgreSQL implementation of store.Store.
// It is a thin constructor over store/sqlstore using the lib/pq driver.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/smsbox/store/sqlstore"
)

// PostgreSQL error codes used for classification.
const (
	codeUniqueViolation = "23505"
	codeDuplicateObject = "42P07"
)

// Dialect is the PostgreSQL dialect with pq error classification.
var Dialect = func() sqlstore.Dialect {
	d := sqlstore.Postgres
	d.IsUniqueViolation = func(err error) bool { return hasCode(err, codeUniqueViolation) }
	d.IsDuplicateIndex = func(err error) bool { return hasCode(err, codeDuplicateObject) }
	return d
}()

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...sqlstore.Option) *sqlstore.Store {
	return sqlstore.New(db, Dialect, opts...)
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...sqlstore.Option) *sqlstore.Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Open opens a connection pool for dsn. The caller owns the returned DB.
func Open(dsn string) (*sqlx.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	return sqlx.NewDb(sql.OpenDB(connector), "postgres"), nil
}
