package testing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/litepool/lib/db"
)

// RunConnTests runs a comprehensive test suite for a db.Conn implementation.
// Every sub test works on its own database file inside t.TempDir().
func RunConnTests(t *testing.T, name string, opener db.Opener) {
	t.Run(name, func(t *testing.T) {
		t.Run("FetchOne&FetchAll", func(t *testing.T) {
			testFetch(t, opener)
		})

		t.Run("Insert", func(t *testing.T) {
			testInsert(t, opener)
		})

		t.Run("InsertMany", func(t *testing.T) {
			testInsertMany(t, opener)
		})

		t.Run("InsertOrReplace", func(t *testing.T) {
			testInsertOrReplace(t, opener)
		})

		t.Run("Execute", func(t *testing.T) {
			testExecute(t, opener)
		})

		t.Run("Commit", func(t *testing.T) {
			testCommit(t, opener)
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, opener)
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, opener)
		})

		t.Run("ReadDuringWrite", func(t *testing.T) {
			testReadDuringWrite(t, opener)
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, opener)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const schema = `CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL, qty INTEGER NOT NULL DEFAULT 0)`

// setup creates a fresh database with the items table and returns its path and a writer
func setup(t *testing.T, opener db.Opener) (string, db.Conn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	w, err := opener(context.Background(), path, db.ModeReadWrite)
	if err != nil {
		t.Fatalf("Failed to open writer: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if _, err := w.Execute(context.Background(), schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return path, w
}

// openReader opens a read connection that is closed at the end of the test
func openReader(t *testing.T, opener db.Opener, path string) db.Conn {
	t.Helper()
	r, err := opener(context.Background(), path, db.ModeRead)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func item(name string, qty int64) db.Row {
	return db.Row{}.With("name", name).With("qty", qty)
}

// count returns the number of rows in items as seen by conn
func count(t *testing.T, conn db.Reader) int64 {
	t.Helper()
	row, found, err := conn.FetchOne(context.Background(), "SELECT COUNT(*) AS n FROM items")
	if err != nil || !found {
		t.Fatalf("Failed to count items: found=%v err=%v", found, err)
	}
	n, _ := row.Get("n")
	return n.(int64)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testFetch(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	_, w := setup(t, opener)

	for i := 0; i < 3; i++ {
		if _, err := w.Insert(ctx, "items", item(fmt.Sprintf("item-%d", i), int64(i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	rows, err := w.FetchAll(ctx, "SELECT name, qty FROM items ORDER BY qty")
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if cols := rows[0].Columns(); len(cols) != 2 || cols[0] != "name" || cols[1] != "qty" {
		t.Errorf("Expected columns [name qty], got %v", cols)
	}
	if qty, _ := rows[2].Get("qty"); qty != int64(2) {
		t.Errorf("Expected qty 2, got %v", qty)
	}

	row, found, err := w.FetchOne(ctx, "SELECT name FROM items WHERE qty = ?", 1)
	if err != nil || !found {
		t.Fatalf("FetchOne failed: found=%v err=%v", found, err)
	}
	if name, _ := row.Get("name"); name != "item-1" {
		t.Errorf("Expected item-1, got %v", name)
	}

	_, found, err = w.FetchOne(ctx, "SELECT name FROM items WHERE qty = ?", 99)
	if err != nil {
		t.Fatalf("FetchOne failed: %v", err)
	}
	if found {
		t.Errorf("Expected no row for qty 99")
	}

	empty, err := w.FetchAll(ctx, "SELECT name FROM items WHERE qty > 100")
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", empty)
	}

	if _, err := w.FetchAll(ctx, "SELECT * FROM missing_table"); err == nil {
		t.Errorf("Expected error for missing table")
	}
}

func testInsert(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	_, w := setup(t, opener)

	id1, err := w.Insert(ctx, "items", item("a", 1))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	id2, err := w.Insert(ctx, "items", item("b", 2))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("Expected increasing ids, got %d then %d", id1, id2)
	}

	if _, err := w.Insert(ctx, "items", item("a", 3)); err == nil {
		t.Errorf("Expected unique constraint violation")
	}

	if _, err := w.Insert(ctx, "items", db.Row{}); !errors.Is(err, db.ErrEmptyRow) {
		t.Errorf("Expected ErrEmptyRow, got %v", err)
	}

	// identifiers are quoted
	if _, err := w.Execute(ctx, `CREATE TABLE "odd ""table""" ("my col" TEXT)`); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if _, err := w.Insert(ctx, `odd "table"`, db.Row{}.With("my col", "x")); err != nil {
		t.Errorf("Insert with quoted identifiers failed: %v", err)
	}
}

func testInsertMany(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	_, w := setup(t, opener)

	rows := make([]db.Row, 100)
	for i := range rows {
		rows[i] = item(fmt.Sprintf("bulk-%d", i), int64(i))
	}
	if err := w.InsertMany(ctx, "items", rows); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	if n := count(t, w); n != 100 {
		t.Errorf("Expected 100 rows, got %d", n)
	}

	if err := w.InsertMany(ctx, "items", nil); err != nil {
		t.Errorf("InsertMany with no rows should be a no-op, got %v", err)
	}

	mixed := []db.Row{item("x", 1), db.Row{}.With("name", "y")}
	if err := w.InsertMany(ctx, "items", mixed); !errors.Is(err, db.ErrColumnMismatch) {
		t.Errorf("Expected ErrColumnMismatch, got %v", err)
	}
}

func testInsertOrReplace(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	_, w := setup(t, opener)

	if err := w.InsertOrReplace(ctx, "items", item("k", 1)); err != nil {
		t.Fatalf("InsertOrReplace failed: %v", err)
	}
	if err := w.InsertOrReplace(ctx, "items", item("k", 2)); err != nil {
		t.Fatalf("InsertOrReplace failed: %v", err)
	}

	if n := count(t, w); n != 1 {
		t.Errorf("Expected 1 row after replace, got %d", n)
	}
	row, _, err := w.FetchOne(ctx, "SELECT qty FROM items WHERE name = ?", "k")
	if err != nil {
		t.Fatalf("FetchOne failed: %v", err)
	}
	if qty, _ := row.Get("qty"); qty != int64(2) {
		t.Errorf("Expected replaced qty 2, got %v", qty)
	}
}

func testExecute(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	_, w := setup(t, opener)

	for i := 0; i < 5; i++ {
		if _, err := w.Insert(ctx, "items", item(fmt.Sprintf("e-%d", i), int64(i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	affected, err := w.Execute(ctx, "UPDATE items SET qty = qty + 10 WHERE qty >= ?", 3)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if affected != 2 {
		t.Errorf("Expected 2 affected rows, got %d", affected)
	}

	affected, err = w.Execute(ctx, "DELETE FROM items WHERE qty > 100")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if affected != 0 {
		t.Errorf("Expected 0 affected rows, got %d", affected)
	}
}

func testCommit(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	path, w := setup(t, opener)
	r := openReader(t, opener, path)

	if err := w.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := w.Begin(ctx); !errors.Is(err, db.ErrTxActive) {
		t.Errorf("Expected ErrTxActive, got %v", err)
	}
	if _, err := w.Insert(ctx, "items", item("committed", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if n := count(t, r); n != 1 {
		t.Errorf("Expected committed row to be visible to reader, got %d rows", n)
	}

	// commit without transaction is a no-op
	if err := w.Commit(); err != nil {
		t.Errorf("Commit without transaction should be a no-op, got %v", err)
	}
}

func testRollback(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	path, w := setup(t, opener)
	r := openReader(t, opener, path)

	if err := w.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := w.Insert(ctx, "items", item("discarded", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := w.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if n := count(t, r); n != 0 {
		t.Errorf("Expected no rows after rollback, got %d", n)
	}
	if n := count(t, w); n != 0 {
		t.Errorf("Expected no rows after rollback on writer, got %d", n)
	}
	if err := w.Rollback(); err != nil {
		t.Errorf("Rollback without transaction should be a no-op, got %v", err)
	}
}

func testReadOnly(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	path, _ := setup(t, opener)
	r := openReader(t, opener, path)

	if r.Mode() != db.ModeRead {
		t.Errorf("Expected ModeRead, got %s", r.Mode())
	}
	if _, err := r.Execute(ctx, "DELETE FROM items"); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Execute, got %v", err)
	}
	if _, err := r.Insert(ctx, "items", item("x", 1)); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Insert, got %v", err)
	}
	if err := r.Begin(ctx); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Begin, got %v", err)
	}

	// writes smuggled through Query are refused by the engine
	rows, err := r.Query(ctx, "INSERT INTO items (name) VALUES ('smuggled') RETURNING id")
	if err == nil {
		for rows.Next() {
		}
		err = rows.Err()
		_ = rows.Close()
	}
	if err == nil {
		t.Errorf("Expected write through read connection to fail")
	}
}

func testReadDuringWrite(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	path, w := setup(t, opener)
	r := openReader(t, opener, path)

	if _, err := w.Insert(ctx, "items", item("before", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := w.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := w.Insert(ctx, "items", item("during", 2)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// uncommitted writes are not visible and the reader is not blocked
	if n := count(t, r); n != 1 {
		t.Errorf("Expected reader to see 1 row during open write, got %d", n)
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if n := count(t, r); n != 2 {
		t.Errorf("Expected reader to see 2 rows after commit, got %d", n)
	}
}

func testClose(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	path, w := setup(t, opener)
	r := openReader(t, opener, path)

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if _, _, err := r.FetchOne(ctx, "SELECT 1"); !errors.Is(err, db.ErrConnClosed) {
		t.Errorf("Expected ErrConnClosed, got %v", err)
	}

	// closing with an open transaction discards it
	if err := w.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := w.Insert(ctx, "items", item("lost", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r2 := openReader(t, opener, path)
	if n := count(t, r2); n != 0 {
		t.Errorf("Expected open transaction to be discarded on close, got %d rows", n)
	}
}
