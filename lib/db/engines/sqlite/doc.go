// Package sqlite implements the db.Conn contract on top of modernc.org/sqlite, a cgo free
// port of sqlite. Every Conn owns exactly one physical sqlite connection.
//
// Key Components:
//
//   - Open / NewOpener: open one connection for a path and a db.Mode. The database/sql
//     handle behind a Conn is limited to a single open connection, so pragmas and
//     transactions always apply to the same sqlite handle.
//
//   - Options: the pragmas applied to every connection (busy timeout, journal mode,
//     synchronous level, foreign keys). DefaultOptions enables WAL, which lets readers
//     proceed while the writer holds an open transaction.
//
// Modes:
//
//   - db.ModeRead connections enable query_only. Any statement that would modify the
//     database fails inside sqlite, and the Writer methods fail early with db.ErrReadOnly.
//     Read connections never touch the journal mode.
//
//   - db.ModeReadWrite connections set the journal mode and open their transactions with
//     BEGIN IMMEDIATE, so the write lock is taken when the transaction starts and not on
//     the first write.
//
// Rows:
//
//	Values are scanned into interface values, sqlite storage classes therefore map to
//	int64, float64, string, []byte and nil.
//
// Usage Example:
//
//	conn, err := sqlite.Open(ctx, "data.db", db.ModeReadWrite, nil)
//	if err != nil {
//	    // Handle error
//	}
//	defer conn.Close()
//
//	if err := conn.Begin(ctx); err != nil {
//	    // Handle error
//	}
//	id, err := conn.Insert(ctx, "users", db.Row{}.With("name", "alice"))
//	if err != nil {
//	    _ = conn.Rollback()
//	    // Handle error
//	}
//	err = conn.Commit()
package sqlite
