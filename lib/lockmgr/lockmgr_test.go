package lockmgr

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/ValentinKolb/litepool/lib/store"
	"github.com/ValentinKolb/litepool/lib/store/sqlstore"
	"golang.org/x/sync/errgroup"
)

func newStore(t *testing.T) store.IStore {
	t.Helper()
	p, err := pool.NewPool(filepath.Join(t.TempDir(), "locks.db"), nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	s, err := sqlstore.NewSQLStore(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("NewSQLStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = p.Close()
	})
	return s
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager(newStore(t))

	ok, owner, err := locks.AcquireLock(ctx, "res", 0)
	if err != nil || !ok {
		t.Fatalf("Expected to acquire a free lock, got ok=%v err=%v", ok, err)
	}
	if len(owner) != 2*ownerIDBytes {
		t.Errorf("Expected a hex owner ID of %d chars, got %d", 2*ownerIDBytes, len(owner))
	}

	// a second manager on the same store sees the lock
	other := NewLockManager(locks.(*lockMgrImpl).store)
	if ok, _, err := other.AcquireLock(ctx, "res", 0); err != nil || ok {
		t.Errorf("Expected a held lock to not be acquired again, got ok=%v err=%v", ok, err)
	}

	if ok, err := locks.ReleaseLock(ctx, "res", []byte("not-the-owner")); err != nil || ok {
		t.Errorf("Expected release by a stranger to fail, got ok=%v err=%v", ok, err)
	}
	if ok, err := locks.ReleaseLock(ctx, "res", owner); err != nil || !ok {
		t.Errorf("Expected release by the owner to succeed, got ok=%v err=%v", ok, err)
	}
	if ok, err := locks.ReleaseLock(ctx, "res", owner); err != nil || !ok {
		t.Errorf("Expected release of a free lock to report true, got ok=%v err=%v", ok, err)
	}

	if ok, _, err := other.AcquireLock(ctx, "res", 0); err != nil || !ok {
		t.Errorf("Expected released lock to be free, got ok=%v err=%v", ok, err)
	}
}

func TestLockTimeout(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	locks := NewLockManager(s)

	// the lock disappears 3 writes after it was taken
	if ok, _, err := locks.AcquireLock(ctx, "res", 3); err != nil || !ok {
		t.Fatalf("AcquireLock failed: ok=%v err=%v", ok, err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Set(ctx, "unrelated", nil); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if ok, _, err := locks.AcquireLock(ctx, "res", 0); err != nil || !ok {
		t.Errorf("Expected timed out lock to be free, got ok=%v err=%v", ok, err)
	}
}

func TestMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager(newStore(t))

	var holders, maxHolders atomic.Int32
	eg := errgroup.Group{}
	for i := 0; i < 6; i++ {
		eg.Go(func() error {
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			owner, err := locks.WaitLock(waitCtx, "res", 0, time.Millisecond)
			if err != nil {
				return err
			}

			n := holders.Add(1)
			for {
				m := maxHolders.Load()
				if n <= m || maxHolders.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			holders.Add(-1)

			ok, err := locks.ReleaseLock(ctx, "res", owner)
			if err == nil && !ok {
				err = errors.New("release failed")
			}
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Lock worker failed: %v", err)
	}
	if m := maxHolders.Load(); m != 1 {
		t.Errorf("Expected exactly one holder at a time, got %d", m)
	}
}

func TestWaitLockCancellation(t *testing.T) {
	locks := NewLockManager(newStore(t))
	if ok, _, err := locks.AcquireLock(context.Background(), "res", 0); err != nil || !ok {
		t.Fatalf("AcquireLock failed: ok=%v err=%v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locks.WaitLock(ctx, "res", 0, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}
