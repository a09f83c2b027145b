package pool

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/ValentinKolb/litepool/lib/db/engines/sqlite"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

const itemsSchema = `CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`

// newSQLitePool creates a pool on a fresh sqlite database with the items table.
// The returned counter tracks how many read connections were opened.
func newSQLitePool(t *testing.T, capacity int) (*Pool, *atomic.Int32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.db")

	var readOpens atomic.Int32
	base := sqlite.NewOpener(nil)
	opener := func(ctx context.Context, path string, mode db.Mode) (db.Conn, error) {
		if mode == db.ModeRead {
			readOpens.Add(1)
		}
		return base(ctx, path, mode)
	}

	p, err := NewPool(path, &Options{ReaderCapacity: capacity, Opener: opener})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	err = p.Write(context.Background(), func(w db.Writer) error {
		_, err := w.Execute(context.Background(), itemsSchema)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return p, &readOpens
}

// gauge tracks the current and the maximum number of concurrent holders
type gauge struct {
	cur atomic.Int32
	max atomic.Int32
}

func (g *gauge) enter() {
	n := g.cur.Add(1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (g *gauge) leave() {
	g.cur.Add(-1)
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func countItems(t *testing.T, p *Pool) int64 {
	t.Helper()
	var n int64
	err := p.Read(context.Background(), func(r db.Reader) error {
		row, _, err := r.FetchOne(context.Background(), "SELECT COUNT(*) AS n FROM items")
		if err != nil {
			return err
		}
		v, _ := row.Get("n")
		n = v.(int64)
		return nil
	})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNewPoolCapacity(t *testing.T) {
	if _, err := NewPool("x.db", &Options{ReaderCapacity: -1}); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("Expected ErrInvalidCapacity, got %v", err)
	}

	p, err := NewPool("x.db", &Options{Opener: (&fakeOpener{}).open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()
	if got := p.Stats().ReaderCapacity; got != DefaultReaderCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultReaderCapacity, got)
	}
	if p.Path() != "x.db" {
		t.Errorf("Expected path x.db, got %s", p.Path())
	}
	if p.Stats().OpenReaders != 0 || p.Stats().WriterOpen {
		t.Errorf("Expected no connections before the first scope")
	}
}

// --------------------------------------------------------------------------
// Readers
// --------------------------------------------------------------------------

// TestReaderCapacity launches three 50ms reads on a pool with two readers.
// Two run at once, the third starts once one of them is done.
func TestReaderCapacity(t *testing.T) {
	p, readOpens := newSQLitePool(t, 2)
	ctx := context.Background()

	var g gauge
	start := time.Now()
	eg := errgroup.Group{}
	for i := 0; i < 3; i++ {
		eg.Go(func() error {
			return p.Read(ctx, func(r db.Reader) error {
				g.enter()
				defer g.leave()
				if _, _, err := r.FetchOne(ctx, "SELECT 1"); err != nil {
					return err
				}
				time.Sleep(50 * time.Millisecond)
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	elapsed := time.Since(start)

	if m := g.max.Load(); m != 2 {
		t.Errorf("Expected 2 concurrent readers, got %d", m)
	}
	if n := readOpens.Load(); n > 2 {
		t.Errorf("Expected at most 2 read connections, opened %d", n)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("Expected third read to wait for a free connection, took %s", elapsed)
	}
	if elapsed > 140*time.Millisecond*3 {
		t.Errorf("Reads did not run in parallel, took %s", elapsed)
	}
}

func TestReaderCapacityUnderLoad(t *testing.T) {
	const capacity = 3
	p, readOpens := newSQLitePool(t, capacity)
	ctx := context.Background()

	var g gauge
	eg := errgroup.Group{}
	for i := 0; i < 30; i++ {
		eg.Go(func() error {
			return p.Read(ctx, func(r db.Reader) error {
				g.enter()
				defer g.leave()
				_, err := r.FetchAll(ctx, "SELECT * FROM items")
				time.Sleep(2 * time.Millisecond)
				return err
			})
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if m := g.max.Load(); m > capacity {
		t.Errorf("Expected at most %d concurrent readers, got %d", capacity, m)
	}
	if n := readOpens.Load(); n > capacity {
		t.Errorf("Expected at most %d read connections, opened %d", capacity, n)
	}
	stats := p.Stats()
	if stats.OpenReaders > capacity || stats.IdleReaders != stats.OpenReaders {
		t.Errorf("Expected all opened readers to be idle, got %+v", stats)
	}
	if stats.Reads != 30 {
		t.Errorf("Expected 30 reads, got %d", stats.Reads)
	}
}

func TestReadersAreReused(t *testing.T) {
	p, readOpens := newSQLitePool(t, 4)

	for i := 0; i < 10; i++ {
		countItems(t, p)
	}
	if n := readOpens.Load(); n != 1 {
		t.Errorf("Expected sequential reads to reuse one connection, opened %d", n)
	}
}

func TestReadOnlyScope(t *testing.T) {
	p, _ := newSQLitePool(t, 1)
	ctx := context.Background()

	err := p.Read(ctx, func(r db.Reader) error {
		if _, ok := r.(db.Writer); ok {
			t.Errorf("A read scope must not expose a Writer")
		}
		if _, ok := r.(db.Conn); ok {
			t.Errorf("A read scope must not expose the connection")
		}
		_, err := r.FetchAll(ctx, "DELETE FROM items")
		return err
	})
	if err == nil {
		t.Errorf("Expected a write statement in a read scope to fail")
	}
}

func TestWriteScopeHidesConnection(t *testing.T) {
	p, _ := newSQLitePool(t, 1)
	ctx := context.Background()

	err := p.Write(ctx, func(w db.Writer) error {
		if _, ok := w.(db.Conn); ok {
			t.Errorf("A write scope must not expose Commit, Rollback or Close")
		}
		_, err := w.Execute(ctx, "DELETE FROM items")
		return err
	})
	if err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if n := p.Stats().Commits; n != 2 {
		t.Errorf("Expected the schema and the delete to be committed, got %d commits", n)
	}
}

// --------------------------------------------------------------------------
// Writers
// --------------------------------------------------------------------------

// TestWriteWaitsForPriorReaders starts a 100ms read and 10ms later a write.
// The write body must not start before the read is done.
func TestWriteWaitsForPriorReaders(t *testing.T) {
	p, _ := newSQLitePool(t, 2)
	ctx := context.Background()

	var readEnd, writeStart atomic.Int64
	readStarted := make(chan struct{})

	eg := errgroup.Group{}
	eg.Go(func() error {
		return p.Read(ctx, func(r db.Reader) error {
			close(readStarted)
			time.Sleep(100 * time.Millisecond)
			readEnd.Store(time.Now().UnixNano())
			return nil
		})
	})

	<-readStarted
	time.Sleep(10 * time.Millisecond)
	eg.Go(func() error {
		return p.Write(ctx, func(w db.Writer) error {
			writeStart.Store(time.Now().UnixNano())
			_, err := w.Insert(ctx, "items", db.Row{}.With("name", "after-read"))
			return err
		})
	})

	if err := eg.Wait(); err != nil {
		t.Fatalf("Scope failed: %v", err)
	}
	if writeStart.Load() < readEnd.Load() {
		t.Errorf("Write body started %s before the prior read ended",
			time.Duration(readEnd.Load()-writeStart.Load()))
	}
}

// TestReadWaitsForActiveWriter starts a read while a write holds the gate.
// The read only starts after the writer released it, and it sees the committed write.
func TestReadWaitsForActiveWriter(t *testing.T) {
	p, _ := newSQLitePool(t, 2)
	ctx := context.Background()

	var writeEnd, readStart atomic.Int64
	writeStarted := make(chan struct{})
	var seen int64

	eg := errgroup.Group{}
	eg.Go(func() error {
		return p.Write(ctx, func(w db.Writer) error {
			close(writeStarted)
			if _, err := w.Insert(ctx, "items", db.Row{}.With("name", "w")); err != nil {
				return err
			}
			time.Sleep(80 * time.Millisecond)
			writeEnd.Store(time.Now().UnixNano())
			return nil
		})
	})

	<-writeStarted
	eg.Go(func() error {
		return p.Read(ctx, func(r db.Reader) error {
			readStart.Store(time.Now().UnixNano())
			row, _, err := r.FetchOne(ctx, "SELECT COUNT(*) AS n FROM items")
			if err != nil {
				return err
			}
			v, _ := row.Get("n")
			seen = v.(int64)
			return nil
		})
	})

	if err := eg.Wait(); err != nil {
		t.Fatalf("Scope failed: %v", err)
	}
	if readStart.Load() < writeEnd.Load() {
		t.Errorf("Read started while the writer still held the gate")
	}
	if seen != 1 {
		t.Errorf("Expected read after the write to see its row, saw %d rows", seen)
	}
}

// TestLateReadersDoNotExtendWriterWait registers a reader while a writer drains older readers.
// The writer must only wait for the older reader.
func TestLateReadersDoNotExtendWriterWait(t *testing.T) {
	opener := &fakeOpener{}
	p, err := NewPool("fake.db", &Options{ReaderCapacity: 4, Opener: opener.open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	releaseOld := make(chan struct{})
	oldStarted := make(chan struct{})
	writeDone := make(chan struct{})

	eg := errgroup.Group{}
	eg.Go(func() error {
		return p.Read(ctx, func(db.Reader) error {
			close(oldStarted)
			<-releaseOld
			return nil
		})
	})
	<-oldStarted

	eg.Go(func() error {
		defer close(writeDone)
		return p.Write(ctx, func(db.Writer) error { return nil })
	})
	waitFor(t, time.Second, func() bool { return p.Stats().WriteActive })

	// the late reader waits for the gate, it never becomes part of the writer's wait set
	lateDone := make(chan struct{})
	eg.Go(func() error {
		defer close(lateDone)
		return p.Read(ctx, func(db.Reader) error { return nil })
	})

	select {
	case <-writeDone:
		t.Fatalf("Writer finished before the older reader")
	case <-lateDone:
		t.Fatalf("Late reader finished while the writer held the gate")
	case <-time.After(30 * time.Millisecond):
	}

	close(releaseOld)
	select {
	case <-writeDone:
	case <-time.After(time.Second):
		t.Fatalf("Writer did not finish after the older reader was done")
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Scope failed: %v", err)
	}
}

// TestWriteExclusivity runs two 50ms writes at once. Their bodies never overlap.
func TestWriteExclusivity(t *testing.T) {
	p, _ := newSQLitePool(t, 1)
	ctx := context.Background()

	var g gauge
	start := time.Now()
	eg := errgroup.Group{}
	for i := 0; i < 2; i++ {
		eg.Go(func() error {
			return p.Write(ctx, func(w db.Writer) error {
				g.enter()
				defer g.leave()
				if _, err := w.Insert(ctx, "items", db.Row{}.With("name", "x")); err != nil {
					return err
				}
				time.Sleep(50 * time.Millisecond)
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if m := g.max.Load(); m != 1 {
		t.Errorf("Expected write bodies to be serialized, %d ran at once", m)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected at least 100ms for two serialized writes, took %s", elapsed)
	}
	if n := countItems(t, p); n != 2 {
		t.Errorf("Expected 2 rows, got %d", n)
	}
}

// TestRollbackOnError inserts a row and fails the scope. The row must be gone
// and the original error returned.
func TestRollbackOnError(t *testing.T) {
	p, _ := newSQLitePool(t, 1)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := p.Write(ctx, func(w db.Writer) error {
		if _, err := w.Insert(ctx, "items", db.Row{}.With("name", "doomed")); err != nil {
			return err
		}
		return errBoom
	})
	if err != errBoom {
		t.Errorf("Expected the original error, got %v", err)
	}
	if n := countItems(t, p); n != 0 {
		t.Errorf("Expected rollback to discard the insert, found %d rows", n)
	}

	// the pool is immediately usable again
	err = p.Write(ctx, func(w db.Writer) error {
		_, err := w.Insert(ctx, "items", db.Row{}.With("name", "kept"))
		return err
	})
	if err != nil {
		t.Fatalf("Write after rollback failed: %v", err)
	}
	if n := countItems(t, p); n != 1 {
		t.Errorf("Expected 1 row, found %d", n)
	}

	stats := p.Stats()
	if stats.Rollbacks != 1 || stats.Commits != 2 { // schema + kept
		t.Errorf("Expected 1 rollback and 2 commits, got %+v", stats)
	}
}

func TestRollbackOnPanic(t *testing.T) {
	p, _ := newSQLitePool(t, 1)
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("Expected panic value to be re-raised, got %v", r)
			}
		}()
		_ = p.Write(ctx, func(w db.Writer) error {
			if _, err := w.Insert(ctx, "items", db.Row{}.With("name", "doomed")); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	if n := countItems(t, p); n != 0 {
		t.Errorf("Expected rollback to discard the insert, found %d rows", n)
	}
	if p.Stats().WriteActive {
		t.Errorf("Expected the write gate to be released after a panic")
	}
	if err := p.Write(ctx, func(db.Writer) error { return nil }); err != nil {
		t.Errorf("Write after panic failed: %v", err)
	}
}

func TestCommitFailure(t *testing.T) {
	errCommit := errors.New("disk full")
	opener := &fakeOpener{commitErr: errCommit}
	p, err := NewPool("fake.db", &Options{ReaderCapacity: 1, Opener: opener.open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	err = p.Write(ctx, func(db.Writer) error { return nil })
	if !errors.Is(err, errCommit) {
		t.Fatalf("Expected commit error, got %v", err)
	}

	conns := opener.all()
	if len(conns) != 1 || conns[0].rollbacks != 1 {
		t.Fatalf("Expected one rollback after the failed commit, got %d conns", len(conns))
	}
	if p.Stats().WriteActive {
		t.Errorf("Expected the write gate to be released after a failed commit")
	}

	// the next writer gets the gate
	done := make(chan error, 1)
	go func() { done <- p.Write(ctx, func(db.Writer) error { return nil }) }()
	select {
	case err := <-done:
		if !errors.Is(err, errCommit) {
			t.Errorf("Expected commit error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Second writer is stuck on the gate")
	}
}

// TestCommitFailureOnSQLite makes COMMIT fail on a deferred foreign key. The pool rolls back,
// the rejected row is gone and the next write scope works on the same connection.
func TestCommitFailureOnSQLite(t *testing.T) {
	ctx := context.Background()
	opener := sqlite.NewOpener(&sqlite.Options{ForeignKeys: true})
	p, err := NewPool(filepath.Join(t.TempDir(), "fk.db"), &Options{ReaderCapacity: 1, Opener: opener})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()

	err = p.Write(ctx, func(w db.Writer) error {
		for _, stmt := range []string{
			`CREATE TABLE parent (id INTEGER PRIMARY KEY)`,
			`CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parent(id) DEFERRABLE INITIALLY DEFERRED)`,
		} {
			if _, err := w.Execute(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	err = p.Write(ctx, func(w db.Writer) error {
		_, err := w.Insert(ctx, "child", db.Row{}.With("id", 1).With("parent_id", 99))
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit write transaction") {
		t.Fatalf("Expected the commit to fail, got %v", err)
	}

	err = p.Write(ctx, func(w db.Writer) error {
		_, err := w.Insert(ctx, "parent", db.Row{}.With("id", 1))
		return err
	})
	if err != nil {
		t.Fatalf("Write after failed commit failed: %v", err)
	}

	var child, parent any
	err = p.Read(ctx, func(r db.Reader) error {
		row, _, err := r.FetchOne(ctx, "SELECT (SELECT COUNT(*) FROM child) AS child, (SELECT COUNT(*) FROM parent) AS parent")
		child, _ = row.Get("child")
		parent, _ = row.Get("parent")
		return err
	})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if child != int64(0) || parent != int64(1) {
		t.Errorf("Expected child=0 parent=1, got child=%v parent=%v", child, parent)
	}
	if s := p.Stats(); s.Rollbacks != 1 {
		t.Errorf("Expected 1 rollback, got %d", s.Rollbacks)
	}
}

// --------------------------------------------------------------------------
// Failures, cancellation and bookkeeping
// --------------------------------------------------------------------------

func TestOpenFailure(t *testing.T) {
	opener := &fakeOpener{failFirst: 2}
	p, err := NewPool("fake.db", &Options{ReaderCapacity: 1, Opener: opener.open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	if err := p.Read(ctx, func(db.Reader) error { return nil }); !errors.Is(err, errOpen) {
		t.Errorf("Expected open error from Read, got %v", err)
	}
	if err := p.Write(ctx, func(db.Writer) error { return nil }); !errors.Is(err, errOpen) {
		t.Errorf("Expected open error from Write, got %v", err)
	}

	stats := p.Stats()
	if stats.PendingReaders != 0 || stats.InUseReaders != 0 || stats.WriteActive {
		t.Errorf("Failed acquisitions must not leave state behind, got %+v", stats)
	}

	// the single reader slot was given back
	if err := p.Read(ctx, func(db.Reader) error { return nil }); err != nil {
		t.Errorf("Read after failed open failed: %v", err)
	}
	if err := p.Write(ctx, func(db.Writer) error { return nil }); err != nil {
		t.Errorf("Write after failed open failed: %v", err)
	}
}

func TestReadCancellation(t *testing.T) {
	opener := &fakeOpener{}
	p, err := NewPool("fake.db", &Options{ReaderCapacity: 1, Opener: opener.open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = p.Read(context.Background(), func(db.Reader) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Read(ctx, func(db.Reader) error {
		t.Errorf("Cancelled read must not run its body")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}

	stats := p.Stats()
	if stats.PendingReaders != 1 || stats.WaitingReaders != 0 {
		t.Errorf("Expected only the holder to be registered, got %+v", stats)
	}

	close(hold)
	waitFor(t, time.Second, func() bool { return p.Stats().PendingReaders == 0 })
	if err := p.Read(context.Background(), func(db.Reader) error { return nil }); err != nil {
		t.Errorf("Read after cancellation failed: %v", err)
	}
}

func TestWriteCancellation(t *testing.T) {
	opener := &fakeOpener{}
	p, err := NewPool("fake.db", &Options{ReaderCapacity: 1, Opener: opener.open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()

	hold := make(chan struct{})
	held := make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = p.Read(context.Background(), func(db.Reader) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	// the writer times out while draining the reader
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Write(ctx, func(db.Writer) error {
		t.Errorf("Cancelled write must not run its body")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if p.Stats().WriteActive {
		t.Errorf("Expected cancelled writer to release the gate")
	}

	// a new reader registers right away, it only waits for the single connection
	nextRead := make(chan error, 1)
	go func() {
		nextRead <- p.Read(context.Background(), func(db.Reader) error { return nil })
	}()
	waitFor(t, time.Second, func() bool { return p.Stats().PendingReaders == 2 })

	close(hold)
	<-readDone
	if err := <-nextRead; err != nil {
		t.Errorf("Read after cancelled write failed: %v", err)
	}

	if err := p.Write(context.Background(), func(db.Writer) error { return nil }); err != nil {
		t.Errorf("Write after cancellation failed: %v", err)
	}
}

func TestResourceRestoration(t *testing.T) {
	p, _ := newSQLitePool(t, 3)
	ctx := context.Background()
	errBody := errors.New("body failed")

	before := p.Stats()
	_ = p.Read(ctx, func(db.Reader) error { return errBody })
	_ = p.Read(ctx, func(db.Reader) error { return nil })
	_ = p.Write(ctx, func(db.Writer) error { return errBody })
	_ = p.Write(ctx, func(db.Writer) error { return nil })
	after := p.Stats()

	if after.InUseReaders != before.InUseReaders || after.PendingReaders != before.PendingReaders {
		t.Errorf("Expected bookkeeping to be restored, before=%+v after=%+v", before, after)
	}
	if after.IdleReaders != after.OpenReaders {
		t.Errorf("Expected every opened reader to be idle, got %+v", after)
	}
	if after.WriteActive || after.WaitingReaders != 0 {
		t.Errorf("Expected no active writer and no waiting readers, got %+v", after)
	}
}

func TestClose(t *testing.T) {
	opener := &fakeOpener{}
	p, err := NewPool("fake.db", &Options{ReaderCapacity: 3, Opener: opener.open})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	ctx := context.Background()

	// open two readers and the writer
	var wg sync.WaitGroup
	ready := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Read(ctx, func(db.Reader) error { <-ready; return nil })
		}()
	}
	waitFor(t, time.Second, func() bool { return p.Stats().InUseReaders == 2 })
	close(ready)
	wg.Wait()
	if err := p.Write(ctx, func(db.Writer) error { return nil }); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	conns := opener.all()
	if len(conns) != 3 {
		t.Fatalf("Expected 3 opened connections, got %d", len(conns))
	}
	for i, c := range conns {
		if !c.closed {
			t.Errorf("Connection %d (%s) was not closed", i, c.mode)
		}
	}

	if err := p.Read(ctx, func(db.Reader) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed from Read, got %v", err)
	}
	if err := p.Write(ctx, func(db.Writer) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed from Write, got %v", err)
	}

	stats := p.Stats()
	if !stats.Closed || stats.OpenReaders != 0 || stats.WriterOpen {
		t.Errorf("Expected closed pool without open connections, got %+v", stats)
	}
}

func TestMetrics(t *testing.T) {
	p, _ := newSQLitePool(t, 1)
	countItems(t, p)

	var buf bytes.Buffer
	p.WriteMetrics(&buf)
	out := buf.String()

	for _, want := range []string{
		"litepool_reads_total 1",
		"litepool_writes_total 1",
		"litepool_commits_total 1",
		"litepool_readers_open 1",
		"litepool_readers_pending 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics to contain %q, got:\n%s", want, out)
		}
	}
}
