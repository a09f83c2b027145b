package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/ValentinKolb/litepool/lib/db/engines/sqlite"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("pool")

// --------------------------------------------------------------------------
// Constants & Errors
// --------------------------------------------------------------------------

// DefaultReaderCapacity is the number of read connections a pool opens at most
const DefaultReaderCapacity = 9

var (
	// ErrPoolClosed is returned by every scope started after Close.
	ErrPoolClosed = errors.New("pool: closed")
	// ErrInvalidCapacity is returned by NewPool for a reader capacity below one.
	ErrInvalidCapacity = errors.New("pool: reader capacity must be at least 1")
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Pool during initialization
type Options struct {
	ReaderCapacity int       // Max number of read connections (0 = use default: 9)
	Opener         db.Opener // Opens physical connections (nil = sqlite with default options)
}

// DefaultOptions returns the default pool options
func DefaultOptions() *Options {
	return &Options{
		ReaderCapacity: DefaultReaderCapacity,
		Opener:         sqlite.NewOpener(nil),
	}
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// Pool arbitrates access to one embedded database between many concurrent readers
// and a single writer. See the package documentation for the ordering guarantees.
//
// Thread-safety: all methods are safe for concurrent use, except that Close must not race
// with scopes that are still being started.
type Pool struct {
	path    string
	readers *readerSet
	writer  *writerSlot
	metrics *poolMetrics
	closed  atomic.Bool
}

// NewPool creates a pool for the database at path with the given options (optional).
// No connection is opened until the first scope needs one.
func NewPool(path string, opts *Options) (*Pool, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	capacity := opts.ReaderCapacity
	if capacity == 0 {
		capacity = DefaultReaderCapacity
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	opener := opts.Opener
	if opener == nil {
		opener = sqlite.NewOpener(nil)
	}

	p := &Pool{
		path:    path,
		readers: newReaderSet(path, opener, capacity),
		writer:  newWriterSlot(path, opener),
	}
	p.metrics = newPoolMetrics(p)

	log.Infof("created pool for %s with %d readers", path, capacity)
	return p, nil
}

// Path returns the database path the pool was created for
func (p *Pool) Path() string {
	return p.path
}

// Read runs fn inside a read scope.
//
// The scope waits for a writer that currently holds the write gate, registers itself so that
// later writers wait for it, and checks out a read connection. On exit (normal return, error
// or panic) the connection is returned and waiting writers are signaled.
// The Reader must not be used after fn returns.
func (p *Pool) Read(ctx context.Context, fn func(r db.Reader) error) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	start := time.Now()

	sig, err := p.writer.registerReader(ctx)
	if err != nil {
		return err
	}
	defer p.writer.unregisterReader(sig)

	conn, err := p.readers.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.readers.release(conn)

	p.metrics.readWait.UpdateDuration(start)
	p.metrics.reads.Inc()

	return fn(readScope{conn})
}

// Write runs fn inside a write scope.
//
// The scope takes the exclusive write gate, waits for every read scope that was registered
// before it got the gate and opens a transaction on the writable connection.
// If fn returns nil the transaction is committed, otherwise it is rolled back and fn's error is
// returned unchanged. A panic in fn rolls back and is re-raised. A failed commit is rolled
// back and its error returned. The gate is released on every path.
// The Writer must not be used after fn returns.
func (p *Pool) Write(ctx context.Context, fn func(w db.Writer) error) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	start := time.Now()

	conn, err := p.writer.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.writer.release()

	if err := conn.Begin(ctx); err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}

	p.metrics.writeWait.UpdateDuration(start)
	p.metrics.writes.Inc()

	defer func() {
		if r := recover(); r != nil {
			p.rollback(conn)
			panic(r)
		}
	}()

	if err := fn(writeScope{conn}); err != nil {
		p.rollback(conn)
		return err
	}

	if err := conn.Commit(); err != nil {
		p.rollback(conn)
		return fmt.Errorf("commit write transaction: %w", err)
	}
	p.metrics.commits.Inc()
	return nil
}

// readScope and writeScope narrow a connection to what a scope body may use,
// so the body cannot reach Begin, Commit, Rollback or Close by a type assertion.
type readScope struct{ db.Reader }

type writeScope struct{ db.Writer }

// rollback rolls back the open transaction of conn, failures are only logged
func (p *Pool) rollback(conn db.Conn) {
	p.metrics.rollbacks.Inc()
	if err := conn.Rollback(); err != nil {
		log.Warningf("rollback on %s failed: %v", p.path, err)
	}
}

// Close closes every reader ever opened and the writer if it was opened.
// Calling Close again is a no-op. Scopes started after Close fail with ErrPoolClosed.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := errors.Join(p.readers.closeAll(), p.writer.close())
	if err != nil {
		log.Warningf("closing pool for %s: %v", p.path, err)
	} else {
		log.Infof("closed pool for %s", p.path)
	}
	return err
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Stats describes the state of a pool at one point in time
type Stats struct {
	ReaderCapacity int    `json:"reader_capacity"`
	OpenReaders    int    `json:"open_readers"`    // read connections opened so far
	IdleReaders    int    `json:"idle_readers"`    // read connections in the free list
	InUseReaders   int    `json:"in_use_readers"`  // read connections checked out
	WaitingReaders int64  `json:"waiting_readers"` // read scopes blocked on a free connection
	PendingReaders int    `json:"pending_readers"` // registered read scopes
	WriterOpen     bool   `json:"writer_open"`     // the writable connection was opened
	WriteActive    bool   `json:"write_active"`    // a write scope holds the gate
	Reads          uint64 `json:"reads"`
	Writes         uint64 `json:"writes"`
	Commits        uint64 `json:"commits"`
	Rollbacks      uint64 `json:"rollbacks"`
	Closed         bool   `json:"closed"`
}

// Stats returns a snapshot of the pool state. It is safe to call after Close.
func (p *Pool) Stats() Stats {
	rs := p.readers.stats()
	ws := p.writer.stats()
	return Stats{
		ReaderCapacity: p.readers.capacity,
		OpenReaders:    rs.open,
		IdleReaders:    rs.idle,
		InUseReaders:   rs.inUse,
		WaitingReaders: rs.waiting,
		PendingReaders: ws.pending,
		WriterOpen:     ws.open,
		WriteActive:    ws.active,
		Reads:          p.metrics.reads.Get(),
		Writes:         p.metrics.writes.Get(),
		Commits:        p.metrics.commits.Get(),
		Rollbacks:      p.metrics.rollbacks.Get(),
		Closed:         p.closed.Load(),
	}
}

// WriteMetrics writes the pool metrics in Prometheus text format to w
func (p *Pool) WriteMetrics(w io.Writer) {
	p.metrics.set.WritePrometheus(w)
}
