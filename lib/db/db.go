package db

import (
	"context"
	"database/sql"
	"errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplSQLite Implementation = "sqlite"
)

// Mode selects the capability set of a connection when it is opened
type Mode int

const (
	ModeRead      Mode = iota // Connection only serves queries
	ModeReadWrite             // Connection serves queries, writes and transactions
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyRow is returned when a row without any columns is inserted.
	ErrEmptyRow = errors.New("db: row has no columns")
	// ErrColumnMismatch is returned by InsertMany when the rows do not share the same columns.
	ErrColumnMismatch = errors.New("db: rows do not share the same columns")
	// ErrTxActive is returned by Begin if the connection already has an open transaction.
	ErrTxActive = errors.New("db: transaction already active")
	// ErrReadOnly is returned when a write is attempted on a connection opened with ModeRead.
	ErrReadOnly = errors.New("db: connection is read-only")
	// ErrConnClosed is returned when a closed connection is used.
	ErrConnClosed = errors.New("db: connection is closed")
)

// --------------------------------------------------------------------------
// Connection Interfaces
// --------------------------------------------------------------------------

// Reader is the capability set handed to a read scope.
type Reader interface {
	// Query runs a statement and returns the raw result set. The caller must close the rows.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// FetchOne returns the first row of the result set.
	// The boolean return value indicates whether a row was found.
	FetchOne(ctx context.Context, query string, args ...any) (row Row, found bool, err error)

	// FetchAll returns every row of the result set. An empty result yields an empty, non-nil slice.
	FetchAll(ctx context.Context, query string, args ...any) (rows []Row, err error)
}

// Writer is the capability set handed to a write scope. It is a superset of Reader.
// All statements issued through a Writer belong to the transaction of the surrounding scope.
type Writer interface {
	Reader

	// Insert inserts the row into table and returns the generated row id.
	Insert(ctx context.Context, table string, row Row) (id int64, err error)

	// InsertMany inserts all rows into table using one prepared statement.
	// Every row must have the same columns in the same order.
	InsertMany(ctx context.Context, table string, rows []Row) (err error)

	// InsertOrReplace inserts the row, replacing an existing row that violates a uniqueness constraint.
	InsertOrReplace(ctx context.Context, table string, row Row) (err error)

	// Execute runs a statement and returns the number of affected rows.
	Execute(ctx context.Context, query string, args ...any) (affected int64, err error)
}

// Conn is one physical database handle as managed by a connection pool.
// The transaction and lifecycle methods are reserved for the owner of the connection and are
// never reachable from a scope body.
type Conn interface {
	Writer

	// Begin opens a transaction. Subsequent statements run inside it until Commit or Rollback.
	Begin(ctx context.Context) (err error)

	// Commit commits the open transaction. It is a no-op if no transaction is open.
	Commit() (err error)

	// Rollback rolls back the open transaction. It is a no-op if no transaction is open.
	Rollback() (err error)

	// Mode returns the mode the connection was opened with.
	Mode() (mode Mode)

	// Close closes the physical handle. Closing twice is a no-op.
	Close() (err error)
}

// Opener opens a new physical connection to the database at path.
// Failures are fatal to the single acquisition that triggered the open.
type Opener func(ctx context.Context, path string, mode Mode) (Conn, error)
