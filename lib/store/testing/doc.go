// Package testing provides a standardised test suite for implementations of the
// store.IStore interface.
//
// The suite only uses the public store interface. Since expiration and deletion are counted
// in writes, tests move the write index forward by performing unrelated writes.
//
// Example usage:
//
//	storetesting.RunStoreTests(t, "SQLStore", func(t *testing.T) store.IStore {
//	    return newStore(t)
//	})
package testing
