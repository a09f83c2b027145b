// Package db defines the connection contracts shared by the pool and the database engines.
// It abstracts one physical handle of an embedded SQL database so that the pool can
// coordinate access without knowing anything about the engine behind it.
//
// The package focuses on:
//   - Capability sets per scope kind (Reader for read scopes, Writer for write scopes)
//   - The lifecycle surface owned by the pool (Begin, Commit, Rollback, Close)
//   - A structurally typed row representation
//
// Key Components:
//
//   - Reader: Query, FetchOne and FetchAll. This is everything a read scope may do.
//
//   - Writer: Reader plus Insert, InsertMany, InsertOrReplace and Execute. Every statement
//     issued through a Writer runs inside the transaction of the surrounding write scope.
//
//   - Conn: Writer plus the transaction and lifecycle methods. Only the owner of a
//     connection (the pool) calls these; scope bodies only ever see a Reader or a Writer.
//
//   - Opener: a function that opens a new Conn for a path and a Mode. The pool uses it to
//     grow its reader set lazily and to open the single writer on first use.
//
//   - Row: an ordered column-name to value mapping. Rows encode to JSON objects in column
//     order and can be decoded from JSON objects (key order is kept).
//
// Related Packages:
//
// The engines/sqlite package (github.com/ValentinKolb/litepool/lib/db/engines/sqlite)
// implements Conn on top of modernc.org/sqlite. Each Conn owns exactly one physical sqlite
// connection. Read connections are opened with query_only enabled, the writer opens its
// transactions with BEGIN IMMEDIATE.
//
// The testing package (github.com/ValentinKolb/litepool/lib/db/testing) provides a
// standardized test suite for Conn implementations:
//   - RunConnTests: validates reads, writes, transactions and row handling
package db
