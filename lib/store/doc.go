// Package store provides a high-level interface for key-value storage operations
// with expiration, deletion scheduling and unified error handling.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations
//   - A write index that orders every write and drives expiration and deletion
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for interacting with
//     a key-value store. Every method takes a context, since implementations may block
//     while waiting for a database connection.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Errors caused by the database are wrapped, so callers can
//     still match them with errors.Is (for example context.DeadlineExceeded).
//
// Write Index Semantics:
//
//	Every write operation advances the write index by one. SetE and SetEIfUnset take
//	offsets relative to that index: an entry written at index i with expireIn e is expired
//	once the index reaches i+e, with deleteIn d it is deleted once the index reaches i+d.
//	Expired entries keep their key (Has returns true) but Get no longer returns a value.
//	Deleted entries are gone for both.
//
// Implementations:
//
//   - SQL Store (sqlstore): keeps the entries in an embedded sqlite database accessed
//     through a pool.Pool. Reads run in read scopes, writes in write scopes, the write
//     index is persisted next to the data. A background garbage collector removes deleted
//     entries and drops the values of expired ones.
//     Available in the "github.com/ValentinKolb/litepool/lib/store/sqlstore" package.
package store
