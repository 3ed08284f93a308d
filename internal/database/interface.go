package database

import (
	"context"
	"fmt"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

// DB is the generic storage interface used throughout ossgard.
// Implementations exist for SQLite (default) and MySQL.
type DB interface {
	// Select executes a query and scans rows into dest (slice pointer).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Get executes a query expected to return a single row and scans into dest.
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...interface{}) error

	// ExecAffected executes a statement and returns the affected row count.
	// Conditional updates use this as their serialization check.
	ExecAffected(ctx context.Context, query string, args ...interface{}) (int64, error)

	// Insert inserts a struct-tagged record into table and returns the new row ID.
	Insert(ctx context.Context, table string, record interface{}) (int64, error)

	// Update updates rows matching the where clause with values from record.
	Update(ctx context.Context, table string, record interface{}, where string, args ...interface{}) error

	// Upsert inserts or updates based on conflictCols.
	Upsert(ctx context.Context, table string, record interface{}, conflictCols []string) error

	// Tx runs fn inside a transaction, committing on nil and rolling back
	// on error. Multi-row writes (batch group members) go through this.
	Tx(ctx context.Context, fn func(tx TxOps) error) error

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Driver returns the backend name: "sqlite" or "mysql".
	Driver() string
}

// TxOps is the statement subset available inside Tx.
type TxOps interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	Insert(ctx context.Context, table string, record interface{}) (int64, error)
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// New returns a DB implementation matching cfg.Driver.
// SQLite is the default when driver is empty or unrecognised.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, mysql)", cfg.Driver)
	}
}
