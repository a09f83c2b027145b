// Package pool coordinates access to one embedded SQL database file between many concurrent
// readers and a single writer. It hands out connections through scopes: a callback runs with a
// borrowed connection and the pool takes the connection back on every exit path.
//
// The package focuses on:
//   - A bounded set of reusable read-only connections, opened lazily
//   - One writable connection behind an exclusive write gate
//   - Writes that never overlap with reads that started before them
//   - Automatic commit or rollback of write scopes
//
// Key Components:
//
//   - Pool: created with NewPool(path, opts). Read and Write start scopes, Close shuts down
//     every connection the pool ever opened and Stats reports its current state.
//
//   - Reader set: at most Options.ReaderCapacity read connections (default 9). A read scope
//     takes an idle connection, opens a new one while fewer than the capacity exist, or
//     waits in FIFO order until another read scope returns one.
//
//   - Writer slot: a single read-write connection opened on the first write. The write gate
//     admits one write scope at a time, again in FIFO order.
//
//   - Pending reader signals: every read scope registers a completion signal for its whole
//     lifetime. A writer that takes the gate snapshots the registry and waits for exactly
//     those signals before its body runs.
//
// Ordering Guarantees:
//
//	For a read scope R and a write scope W:
//
//	- If R registered before W took the gate, W's body starts after R's body has returned.
//	- If W holds the gate when R starts, R waits until W released the gate and therefore
//	  sees everything W committed.
//	- Readers that start while W drains older readers are not part of W's wait set, so a
//	  steady stream of new readers can not starve a writer.
//
//	Two write scopes never run their bodies at the same time.
//
// Transactions:
//
//	Write opens a transaction before calling the body. A nil return commits, an error rolls
//	back and is returned unchanged, a panic rolls back and is re-raised. If the commit itself
//	fails, the transaction is rolled back and the commit error is returned wrapped.
//	Read scopes have no transaction of their own and only see committed data.
//
// Cancellation:
//
//	Every blocking step of Read and Write honours its context. A cancelled scope returns
//	ctx.Err() without running its body and leaves no registered signal, no checked out
//	connection and no held gate behind.
//
// Closing:
//
//	Close is idempotent. Scopes started after Close fail with ErrPoolClosed while Stats keeps
//	working. Calling Close while scopes are still running is not supported: those scopes may
//	see closed connections.
//
// Usage Example:
//
//	p, err := pool.NewPool("app.db", nil)
//	if err != nil {
//	    // Handle error
//	}
//	defer p.Close()
//
//	err = p.Write(ctx, func(w db.Writer) error {
//	    _, err := w.Insert(ctx, "users", db.Row{}.With("name", "alice"))
//	    return err
//	})
//
//	err = p.Read(ctx, func(r db.Reader) error {
//	    rows, err := r.FetchAll(ctx, "SELECT * FROM users")
//	    // use rows
//	    return err
//	})
//
// Metrics:
//
//	Every pool owns a VictoriaMetrics set with scope counters, wait time histograms and
//	reader gauges. WriteMetrics renders it in the Prometheus text format.
package pool
