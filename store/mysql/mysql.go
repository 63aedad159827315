// Package mysql provides a MySQL implementation of store.Store.
// It is a thin constructor over store/sqlstore using go-sql-driver/mysql.
package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/smsbox/store/sqlstore"
)

// MySQL server error numbers used for classification.
const (
	errDupEntry   = 1062
	errDupKeyName = 1061
)

// Dialect is the MySQL dialect with driver error classification.
var Dialect = func() sqlstore.Dialect {
	d := sqlstore.MySQL
	d.IsUniqueViolation = func(err error) bool { return hasNumber(err, errDupEntry) }
	d.IsDuplicateIndex = func(err error) bool { return hasNumber(err, errDupKeyName) }
	return d
}()

func hasNumber(err error, n uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == n
}

// New creates a new MySQL store with the provided database connection.
// The connection must report matched rather than changed rows
// (clientFoundRows=true); Open configures this.
func New(db *sqlx.DB, opts ...sqlstore.Option) *sqlstore.Store {
	return sqlstore.New(db, Dialect, opts...)
}

// Open parses dsn, enables the settings the store depends on and opens a
// connection pool. The caller owns the returned DB.
func Open(dsn string) (*sqlx.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	return sqlx.NewDb(sql.OpenDB(connector), "mysql"), nil
}
