package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

// readerSignal is the completion marker of one read scope.
// done is closed when the scope exits.
type readerSignal struct {
	id   uint64
	done chan struct{}
}

// writerSlot owns the single writable connection, the write gate and the
// registry of read scopes a writer has to wait for.
//
// Invariants:
//   - at most one caller holds the gate at any time
//   - a gate holder only gets the connection once every reader registered
//     before it took the gate has signaled completion
//
// Thread-safety: all methods are safe for concurrent use.
type writerSlot struct {
	path   string
	opener db.Opener

	gate *semaphore.Weighted // exclusive write gate (FIFO)

	mu       sync.Mutex    // protects released and conn, serializes registration against snapshots
	released chan struct{} // non-nil while the gate is held, closed on release
	conn     db.Conn       // opened on first write

	pending *xsync.MapOf[uint64, *readerSignal]
	nextID  atomic.Uint64
	closed  atomic.Bool
}

func newWriterSlot(path string, opener db.Opener) *writerSlot {
	return &writerSlot{
		path:    path,
		opener:  opener,
		gate:    semaphore.NewWeighted(1),
		pending: xsync.NewMapOf[uint64, *readerSignal](),
	}
}

// --------------------------------------------------------------------------
// Reader registration
// --------------------------------------------------------------------------

// registerReader creates and registers the completion signal of a new read scope.
// If a writer holds the gate, the reader first waits for that writer to release it.
// Writers that take the gate afterwards do not hold the reader back again.
func (ws *writerSlot) registerReader(ctx context.Context) (*readerSignal, error) {
	ws.mu.Lock()
	released := ws.released
	ws.mu.Unlock()

	if released != nil {
		select {
		case <-released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sig := &readerSignal{
		id:   ws.nextID.Add(1),
		done: make(chan struct{}),
	}

	ws.mu.Lock()
	ws.pending.Store(sig.id, sig)
	ws.mu.Unlock()

	return sig, nil
}

// unregisterReader removes sig from the registry and wakes any writer draining it
func (ws *writerSlot) unregisterReader(sig *readerSignal) {
	ws.pending.Delete(sig.id)
	close(sig.done)
}

// --------------------------------------------------------------------------
// Write gate
// --------------------------------------------------------------------------

// acquire takes the write gate, waits for every reader registered before that moment and
// returns the writable connection (opening it on first use). On success the gate stays held
// until release is called. On failure the gate is already released again.
func (ws *writerSlot) acquire(ctx context.Context) (db.Conn, error) {
	if err := ws.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	ws.mu.Lock()
	ws.released = make(chan struct{})
	snapshot := make([]*readerSignal, 0, ws.pending.Size())
	ws.pending.Range(func(_ uint64, sig *readerSignal) bool {
		snapshot = append(snapshot, sig)
		return true
	})
	ws.mu.Unlock()

	if len(snapshot) > 0 {
		log.Debugf("writer waits for %d readers on %s", len(snapshot), ws.path)
	}
	for _, sig := range snapshot {
		select {
		case <-sig.done:
		case <-ctx.Done():
			ws.release()
			return nil, ctx.Err()
		}
	}

	if ws.closed.Load() {
		ws.release()
		return nil, ErrPoolClosed
	}

	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()

	if conn == nil {
		var err error
		conn, err = ws.opener(ctx, ws.path, db.ModeReadWrite)
		if err != nil {
			ws.release()
			return nil, err
		}
		ws.mu.Lock()
		ws.conn = conn
		ws.mu.Unlock()
		log.Debugf("opened writer for %s", ws.path)
	}

	return conn, nil
}

// release gives up the write gate and lets the next writer proceed
func (ws *writerSlot) release() {
	ws.mu.Lock()
	if ws.released != nil {
		close(ws.released)
		ws.released = nil
	}
	ws.mu.Unlock()
	ws.gate.Release(1)
}

// close closes the writable connection if it was ever opened
func (ws *writerSlot) close() error {
	if !ws.closed.CompareAndSwap(false, true) {
		return nil
	}
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// writerStats is a point in time snapshot of the writer slot
type writerStats struct {
	open    bool
	active  bool
	pending int
}

func (ws *writerSlot) stats() writerStats {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return writerStats{
		open:    ws.conn != nil,
		active:  ws.released != nil,
		pending: ws.pending.Size(),
	}
}
