package sqlstore

import "fmt"

// ConflictStyle selects how a dialect expresses "insert unless the unique key exists".
type ConflictStyle int

const (
	// ConflictDoNothing uses INSERT ... ON CONFLICT (col) DO NOTHING (PostgreSQL, SQLite).
	ConflictDoNothing ConflictStyle = iota
	// ConflictInsertIgnore uses INSERT IGNORE (MySQL).
	ConflictInsertIgnore
)

// Dialect describes the SQL differences between supported databases.
// The zero-value hooks are safe: errors are then never classified.
type Dialect struct {
	// Name is used in log lines and error messages.
	Name string
	// Conflict selects the insert-if-absent syntax.
	Conflict ConflictStyle
	// IndexIfNotExists reports whether CREATE INDEX IF NOT EXISTS is supported.
	IndexIfNotExists bool
	// IsUniqueViolation classifies driver errors for duplicate keys.
	IsUniqueViolation func(error) bool
	// IsDuplicateIndex classifies driver errors for an index that already exists.
	IsDuplicateIndex func(error) bool
}

// Predefined dialects without driver-specific error classification.
// The store/postgres, store/sqlite and store/mysql packages extend them.
var (
	Postgres = Dialect{Name: "postgres", Conflict: ConflictDoNothing, IndexIfNotExists: true}
	SQLite   = Dialect{Name: "sqlite", Conflict: ConflictDoNothing, IndexIfNotExists: true}
	MySQL    = Dialect{Name: "mysql", Conflict: ConflictInsertIgnore}
)

func (d Dialect) uniqueViolation(err error) bool {
	return d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

func (d Dialect) duplicateIndex(err error) bool {
	return d.IsDuplicateIndex != nil && d.IsDuplicateIndex(err)
}

// insertIgnore returns an insert statement for table that silently skips rows
// whose conflictCol value already exists.
func (d Dialect) insertIgnore(table, conflictCol, cols, placeholders string) string {
	if d.Conflict == ConflictInsertIgnore {
		return fmt.Sprintf(`INSERT IGNORE INTO %s (%s) VALUES (%s)`, table, cols, placeholders)
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`, table, cols, placeholders, conflictCol)
}

// createIndex returns a CREATE INDEX statement.
func (d Dialect) createIndex(name, table, cols string) string {
	if d.IndexIfNotExists {
		return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`, name, table, cols)
	}
	return fmt.Sprintf(`CREATE INDEX %s ON %s(%s)`, name, table, cols)
}
