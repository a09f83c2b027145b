package pool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/litepool/lib/db"
)

// fakeConn is a db.Conn that records lifecycle calls and can inject failures
type fakeConn struct {
	mode      db.Mode
	commitErr error

	mu        sync.Mutex
	inTx      bool
	begins    int
	commits   int
	rollbacks int
	closed    bool
}

func (c *fakeConn) Query(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("fake: query not supported")
}

func (c *fakeConn) FetchOne(context.Context, string, ...any) (db.Row, bool, error) {
	return db.Row{}, false, nil
}

func (c *fakeConn) FetchAll(context.Context, string, ...any) ([]db.Row, error) {
	return []db.Row{}, nil
}

func (c *fakeConn) Insert(context.Context, string, db.Row) (int64, error) { return 1, nil }

func (c *fakeConn) InsertMany(context.Context, string, []db.Row) error { return nil }

func (c *fakeConn) InsertOrReplace(context.Context, string, db.Row) error { return nil }

func (c *fakeConn) Execute(context.Context, string, ...any) (int64, error) { return 0, nil }

func (c *fakeConn) Begin(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTx {
		return db.ErrTxActive
	}
	c.inTx = true
	c.begins++
	return nil
}

func (c *fakeConn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.inTx = false
	c.commits++
	return nil
}

func (c *fakeConn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTx = false
	c.rollbacks++
	return nil
}

func (c *fakeConn) Mode() db.Mode { return c.mode }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeOpener opens fakeConns and fails the first failFirst opens
type fakeOpener struct {
	failFirst int32
	commitErr error

	opens atomic.Int32
	mu    sync.Mutex
	conns []*fakeConn
}

var errOpen = errors.New("fake: open failed")

func (o *fakeOpener) open(_ context.Context, _ string, mode db.Mode) (db.Conn, error) {
	if o.opens.Add(1) <= o.failFirst {
		return nil, errOpen
	}
	c := &fakeConn{mode: mode, commitErr: o.commitErr}
	o.mu.Lock()
	o.conns = append(o.conns, c)
	o.mu.Unlock()
	return c, nil
}

func (o *fakeOpener) all() []*fakeConn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeConn(nil), o.conns...)
}
