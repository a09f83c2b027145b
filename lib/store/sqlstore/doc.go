// Package sqlstore implements store.IStore on top of a pool.Pool and an embedded sqlite database.
//
// Entries live in the kv_entries table, the write index in the single row of kv_meta.
// Every write operation runs in one write scope: it advances the write index and applies
// its change in the same transaction, so the index and the data never disagree, not even
// after a crash. Reads run in read scopes and evaluate expiration against the index they
// read together with the entry.
//
// Garbage collection:
//
//	Expired and deleted entries are hidden from readers as soon as the write index passes
//	them. A background goroutine (Options.GCInterval, default 1 sec) regularly removes deleted
//	rows and drops the values of expired ones. GarbageCollect runs one collection on demand.
//	Collections never advance the write index.
//
// The store does not own the pool. Close only stops the garbage collector, the pool has to be
// closed by the caller afterwards.
package sqlstore
