// Package lockmgr implements named locks on top of any store.IStore.
//
// The lock manager keeps no state of its own, everything lives in the store. It is
// therefore safe to create many lock managers on the same store, even one per call:
// as long as the same store is used, all locks work as expected.
//
// Core Functionality:
//   - Lock acquisition with ownership verification
//   - Optional timeouts, counted in writes to the store
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//   - Lock Acquisition: SetEIfUnset creates the key with a random owner ID as value.
//     The store serializes writes, so only one requester can create the key.
//
//   - Lock Verification: A Get after the SetEIfUnset confirms that the stored value
//     is our owner ID.
//
//   - Timeouts: The timeout is passed as deleteIn, so the lock disappears after that
//     many writes to the store. This prevents deadlocks if a holder crashes.
//
//   - Safe Release: ReleaseLock compares the stored owner ID before deleting the key.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(kvStore)
//
//	acquired, ownerID, err := locks.AcquireLock(ctx, "resource:123", 30)
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Use the resource
//	    released, err := locks.ReleaseLock(ctx, "resource:123", ownerID)
//	}
//
// Owner IDs are 256 random bits, hex encoded. They protect against accidental lock
// stealing, not against a malicious client with direct access to the store.
package lockmgr
