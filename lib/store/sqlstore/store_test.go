package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/ValentinKolb/litepool/lib/store"
	storetesting "github.com/ValentinKolb/litepool/lib/store/testing"
)

// newStore opens a pool and a store on path. Both are closed when the test ends.
func newStore(t *testing.T, path string, opts *Options) (*Store, *pool.Pool) {
	t.Helper()
	p, err := pool.NewPool(path, &pool.Options{ReaderCapacity: 4})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	s, err := NewSQLStore(context.Background(), p, opts)
	if err != nil {
		_ = p.Close()
		t.Fatalf("NewSQLStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = p.Close()
	})
	return s, p
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "store.db")
}

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "SQLStore", func(t *testing.T) store.IStore {
		s, _ := newStore(t, tempDB(t), &Options{GCInterval: 10 * time.Millisecond})
		return s
	})
}

func TestGarbageCollect(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, tempDB(t), &Options{GCInterval: -1})

	if err := s.SetE(ctx, "short", []byte("value"), 1, 2); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	if err := s.SetE(ctx, "expiring", []byte("value"), 1, 0); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	if err := s.Set(ctx, "kept", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// short: written at 1, expires at 2, deleted at 3. expiring: written at 2, expires at 3.
	res, err := s.GarbageCollect(ctx)
	if err != nil {
		t.Fatalf("GarbageCollect failed: %v", err)
	}
	if res.Deleted != 1 || res.Expired != 1 {
		t.Errorf("Expected 1 deleted and 1 expired entry, got %+v", res)
	}

	info, err := s.GetDBInfo(ctx)
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	meta := info.Metadata.(Metadata)
	if meta.Entries != 2 || meta.DeletedBacklog != 0 || meta.ExpiredBacklog != 0 {
		t.Errorf("Expected 2 entries without backlog, got %+v", meta)
	}
	if meta.CurrentWriteIndex != 3 {
		t.Errorf("Expected write index 3, got %d", meta.CurrentWriteIndex)
	}

	// a second run finds nothing and does not move the write index
	if res, err = s.GarbageCollect(ctx); err != nil || res != (GCResult{}) {
		t.Errorf("Expected an empty second run, got %+v (%v)", res, err)
	}
	if ok, _ := s.Has(ctx, "expiring"); !ok {
		t.Errorf("Collected expired key must stay findable")
	}
}

func TestBackgroundGC(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, tempDB(t), &Options{GCInterval: 5 * time.Millisecond})

	if err := s.SetE(ctx, "doomed", []byte("value"), 0, 1); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	if err := s.Set(ctx, "other", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		info, err := s.GetDBInfo(ctx)
		if err != nil {
			t.Fatalf("GetDBInfo failed: %v", err)
		}
		if info.Metadata.(Metadata).Entries == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Background gc did not remove the deleted entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	p, err := pool.NewPool(path, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	s, err := NewSQLStore(ctx, p, nil)
	if err != nil {
		t.Fatalf("NewSQLStore failed: %v", err)
	}
	if err := s.SetE(ctx, "key", []byte("value"), 1, 0); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	_ = s.Close()
	_ = p.Close()

	// the write index survives a restart, so the next write expires the key
	s2, _ := newStore(t, path, nil)
	if value, ok, _ := s2.Get(ctx, "key"); !ok || !bytes.Equal(value, []byte("value")) {
		t.Fatalf("Expected value after reopening, got %q (found=%v)", value, ok)
	}
	if err := s2.Set(ctx, "other", nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := s2.Get(ctx, "key"); ok {
		t.Errorf("Expected key to expire with the persisted write index")
	}
}

func TestClosedPool(t *testing.T) {
	s, p := newStore(t, tempDB(t), nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	_ = p.Close()

	err := s.Set(context.Background(), "key", []byte("value"))
	if !errors.Is(err, pool.ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCInternalError {
		t.Errorf("Expected an internal *store.Error, got %v", err)
	}
}
