package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/litepool/lib/db"
	"golang.org/x/sync/semaphore"
)

// readerSet hands out up to capacity reusable read connections.
// Connections are opened lazily and only closed by closeAll.
//
// Thread-safety: all methods are safe for concurrent use.
type readerSet struct {
	path     string
	opener   db.Opener
	capacity int

	// slots bounds the number of checked out connections. It is FIFO,
	// so a released connection always goes to the oldest waiter.
	slots   *semaphore.Weighted
	waiting atomic.Int64

	mu     sync.Mutex // protects the following fields
	free   []db.Conn  // idle connections, most recently released last
	all    []db.Conn  // every connection ever opened
	inUse  int
	closed bool
}

func newReaderSet(path string, opener db.Opener, capacity int) *readerSet {
	return &readerSet{
		path:     path,
		opener:   opener,
		capacity: capacity,
		slots:    semaphore.NewWeighted(int64(capacity)),
	}
}

// acquire returns an idle connection, opens a new one if fewer than capacity exist,
// or blocks until another caller releases one.
// A failed open gives the slot back, so it never shrinks the set.
func (rs *readerSet) acquire(ctx context.Context) (db.Conn, error) {
	if !rs.slots.TryAcquire(1) {
		rs.waiting.Add(1)
		err := rs.slots.Acquire(ctx, 1)
		rs.waiting.Add(-1)
		if err != nil {
			return nil, err
		}
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		rs.slots.Release(1)
		return nil, ErrPoolClosed
	}

	// holding a slot guarantees that either a connection is idle
	// or fewer than capacity connections exist
	if last := len(rs.free) - 1; last >= 0 {
		conn := rs.free[last]
		rs.free = rs.free[:last]
		rs.inUse++
		rs.mu.Unlock()
		return conn, nil
	}
	rs.mu.Unlock()

	conn, err := rs.opener(ctx, rs.path, db.ModeRead)
	if err != nil {
		rs.slots.Release(1)
		return nil, err
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		_ = conn.Close()
		rs.slots.Release(1)
		return nil, ErrPoolClosed
	}
	rs.all = append(rs.all, conn)
	rs.inUse++
	n := len(rs.all)
	rs.mu.Unlock()

	log.Debugf("opened reader %d/%d for %s", n, rs.capacity, rs.path)
	return conn, nil
}

// release returns conn to the free list and wakes the oldest waiter.
// It must be called exactly once per successful acquire.
func (rs *readerSet) release(conn db.Conn) {
	rs.mu.Lock()
	rs.inUse--
	if !rs.closed {
		rs.free = append(rs.free, conn)
	}
	rs.mu.Unlock()
	rs.slots.Release(1)
}

// closeAll closes every connection ever opened, idle or checked out.
// Acquisitions racing with closeAll are undefined; later ones fail with ErrPoolClosed.
func (rs *readerSet) closeAll() error {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return nil
	}
	rs.closed = true
	all := rs.all
	rs.all = nil
	rs.free = nil
	rs.mu.Unlock()

	var errs []error
	for _, conn := range all {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// readerStats is a point in time snapshot of the reader set
type readerStats struct {
	open    int
	idle    int
	inUse   int
	waiting int64
}

func (rs *readerSet) stats() readerStats {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return readerStats{
		open:    len(rs.all),
		idle:    len(rs.free),
		inUse:   rs.inUse,
		waiting: rs.waiting.Load(),
	}
}
