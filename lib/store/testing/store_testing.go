package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/litepool/lib/store"
	"golang.org/x/sync/errgroup"
)

// StoreFactory creates a fresh, empty store for one sub test.
// The factory is responsible for cleaning up (e.g. with t.Cleanup).
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the standard test suite for a store.IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory(t))
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory(t))
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, factory(t))
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory(t))
		})

		t.Run("ConcurrentSetEIfUnset", func(t *testing.T) {
			testConcurrentSetEIfUnset(t, factory(t))
		})

		t.Run("CancelledContext", func(t *testing.T) {
			testCancelledContext(t, factory(t))
		})

		t.Run("DBInfo", func(t *testing.T) {
			testDBInfo(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// advance performs n unrelated writes, moving the write index of s forward by n
func advance(t *testing.T, s store.IStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.Set(context.Background(), "__advance", []byte{byte(i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
}

func mustGet(t *testing.T, s store.IStore, key string) ([]byte, bool) {
	t.Helper()
	value, ok, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return value, ok
}

func mustHas(t *testing.T, s store.IStore, key string) bool {
	t.Helper()
	ok, err := s.Has(context.Background(), key)
	if err != nil {
		t.Fatalf("Has(%s) failed: %v", key, err)
	}
	return ok
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	ctx := context.Background()

	if _, ok := mustGet(t, s, "missing"); ok {
		t.Errorf("Expected missing key to not be found")
	}

	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok := mustGet(t, s, "key")
	if !ok || !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected value 'value', got %q (found=%v)", value, ok)
	}

	if err := s.Set(ctx, "key", []byte("updated")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok = mustGet(t, s, "key")
	if !ok || !bytes.Equal(value, []byte("updated")) {
		t.Errorf("Expected updated value, got %q (found=%v)", value, ok)
	}

	// empty values are values
	if err := s.Set(ctx, "empty", nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok = mustGet(t, s, "empty")
	if !ok || len(value) != 0 {
		t.Errorf("Expected empty value to be found, got %q (found=%v)", value, ok)
	}

	// binary data survives unchanged
	binary := []byte{0, 1, 2, 255, 0}
	if err := s.Set(ctx, "binary", binary); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if value, _ = mustGet(t, s, "binary"); !bytes.Equal(value, binary) {
		t.Errorf("Expected binary value %v, got %v", binary, value)
	}
}

func testKeyExpiry(t *testing.T, s store.IStore) {
	ctx := context.Background()

	// expire after 3 writes, delete after 6 writes
	if err := s.SetE(ctx, "expiring", []byte("value"), 3, 6); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}

	advance(t, s, 2)
	if value, ok := mustGet(t, s, "expiring"); !ok || !bytes.Equal(value, []byte("value")) {
		t.Errorf("Key should still be valid after 2 writes, got %q (found=%v)", value, ok)
	}

	advance(t, s, 1)
	if _, ok := mustGet(t, s, "expiring"); ok {
		t.Errorf("Key should be expired after 3 writes (get)")
	}
	if !mustHas(t, s, "expiring") {
		t.Errorf("Expired key should still be findable with Has")
	}

	advance(t, s, 2)
	if !mustHas(t, s, "expiring") {
		t.Errorf("Key should still exist after 5 writes")
	}

	advance(t, s, 1)
	if mustHas(t, s, "expiring") {
		t.Errorf("Key should be deleted after 6 writes")
	}

	// zero offsets never expire
	if err := s.SetE(ctx, "forever", []byte("value"), 0, 0); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	advance(t, s, 20)
	if _, ok := mustGet(t, s, "forever"); !ok {
		t.Errorf("Key without offsets should never expire")
	}
}

func testExpire(t *testing.T, s store.IStore) {
	ctx := context.Background()

	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Expire(ctx, "key"); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	if _, ok := mustGet(t, s, "key"); ok {
		t.Errorf("Expected expired key to have no value")
	}
	if !mustHas(t, s, "key") {
		t.Errorf("Expected expired key to still exist")
	}

	if err := s.Expire(ctx, "missing"); err != nil {
		t.Errorf("Expire of a missing key should not fail: %v", err)
	}
	if mustHas(t, s, "missing") {
		t.Errorf("Expire must not create keys")
	}

	// a new Set revives the key
	if err := s.Set(ctx, "key", []byte("again")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if value, ok := mustGet(t, s, "key"); !ok || !bytes.Equal(value, []byte("again")) {
		t.Errorf("Expected revived value, got %q (found=%v)", value, ok)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	ctx := context.Background()

	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := mustGet(t, s, "key"); ok {
		t.Errorf("Expected deleted key to have no value")
	}
	if mustHas(t, s, "key") {
		t.Errorf("Expected deleted key to not exist")
	}

	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of a missing key should not fail: %v", err)
	}
}

func testHas(t *testing.T, s store.IStore) {
	ctx := context.Background()

	if mustHas(t, s, "key") {
		t.Errorf("Expected Has to return false for a missing key")
	}
	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mustHas(t, s, "key") {
		t.Errorf("Expected Has to return true after Set")
	}
	if err := s.Expire(ctx, "key"); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if !mustHas(t, s, "key") {
		t.Errorf("Expected Has to return true after Expire")
	}
	if err := s.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mustHas(t, s, "key") {
		t.Errorf("Expected Has to return false after Delete")
	}
}

func testSetEIfUnset(t *testing.T, s store.IStore) {
	ctx := context.Background()

	// deleted 3 writes after creation
	if err := s.SetEIfUnset(ctx, "key", []byte("first"), 0, 3); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if err := s.SetEIfUnset(ctx, "key", []byte("second"), 0, 0); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if value, _ := mustGet(t, s, "key"); !bytes.Equal(value, []byte("first")) {
		t.Errorf("Expected the first value to be kept, got %q", value)
	}

	// the second SetEIfUnset was write 1 after creation
	advance(t, s, 2)
	if mustHas(t, s, "key") {
		t.Fatalf("Expected key to be deleted after 3 writes")
	}

	if err := s.SetEIfUnset(ctx, "key", []byte("third"), 0, 0); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if value, _ := mustGet(t, s, "key"); !bytes.Equal(value, []byte("third")) {
		t.Errorf("Expected a deleted key to be settable again, got %q", value)
	}

	// an expired key still counts as set
	if err := s.Expire(ctx, "key"); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if err := s.SetEIfUnset(ctx, "key", []byte("fourth"), 0, 0); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if _, ok := mustGet(t, s, "key"); ok {
		t.Errorf("Expected SetEIfUnset to leave the expired key alone")
	}
}

func testConcurrentWrites(t *testing.T, s store.IStore) {
	ctx := context.Background()
	const workers, perWorker = 8, 20

	eg := errgroup.Group{}
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := s.Set(ctx, key, []byte(key)); err != nil {
					return err
				}
				if _, _, err := s.Get(ctx, key); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Concurrent writes failed: %v", err)
	}

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			if value, ok := mustGet(t, s, key); !ok || string(value) != key {
				t.Errorf("Expected %s to hold its own name, got %q (found=%v)", key, value, ok)
			}
		}
	}
}

func testConcurrentSetEIfUnset(t *testing.T, s store.IStore) {
	ctx := context.Background()
	const contenders = 10

	eg := errgroup.Group{}
	for i := 0; i < contenders; i++ {
		eg.Go(func() error {
			return s.SetEIfUnset(ctx, "contended", []byte(fmt.Sprintf("owner-%d", i)), 0, 0)
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}

	value, ok := mustGet(t, s, "contended")
	if !ok {
		t.Fatalf("Expected one contender to win")
	}
	var winner int
	if _, err := fmt.Sscanf(string(value), "owner-%d", &winner); err != nil || winner < 0 || winner >= contenders {
		t.Errorf("Unexpected winner value %q", value)
	}
}

func testCancelledContext(t *testing.T, s store.IStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "key", []byte("value")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected Set to fail with context.Canceled, got %v", err)
	}
	if _, _, err := s.Get(ctx, "key"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected Get to fail with context.Canceled, got %v", err)
	}

	var storeErr *store.Error
	if err := s.Delete(ctx, "key"); !errors.As(err, &storeErr) {
		t.Errorf("Expected a *store.Error, got %T", err)
	}

	// the store is still usable afterwards
	if err := s.Set(context.Background(), "key", []byte("value")); err != nil {
		t.Errorf("Set after cancellation failed: %v", err)
	}
}

func testDBInfo(t *testing.T, s store.IStore) {
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := s.Set(ctx, fmt.Sprintf("key-%d", i), bytes.Repeat([]byte("x"), 100)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	info, err := s.GetDBInfo(ctx)
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.DbType == "" {
		t.Errorf("Expected a database type")
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size, got %d", info.SizeBytes)
	}
}
