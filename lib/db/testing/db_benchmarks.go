package testing

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/litepool/lib/db"
)

// RunConnBenchmarks runs all benchmarks for a db.Conn implementation
func RunConnBenchmarks(b *testing.B, name string, opener db.Opener) {
	b.Run(name, func(b *testing.B) {
		b.Run("Insert", func(b *testing.B) {
			benchmarkInsert(b, opener)
		})

		b.Run("InsertTx", func(b *testing.B) {
			benchmarkInsertTx(b, opener)
		})

		b.Run("InsertMany", func(b *testing.B) {
			benchmarkInsertMany(b, opener)
		})

		b.Run("FetchOne", func(b *testing.B) {
			benchmarkFetchOne(b, opener)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// setupBench creates a fresh database with the items table
func setupBench(b *testing.B, opener db.Opener) (string, db.Conn) {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.db")

	w, err := opener(context.Background(), path, db.ModeReadWrite)
	if err != nil {
		b.Fatalf("Failed to open writer: %v", err)
	}
	b.Cleanup(func() { _ = w.Close() })

	if _, err := w.Execute(context.Background(), schema); err != nil {
		b.Fatalf("Failed to create schema: %v", err)
	}
	return path, w
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Insert in autocommit mode (one transaction per row)
func benchmarkInsert(b *testing.B, opener db.Opener) {
	ctx := context.Background()
	_, w := setupBench(b, opener)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := w.Insert(ctx, "items", item(fmt.Sprintf("bench-%d", i), int64(i))); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}
}

// Benchmark for Insert inside one transaction
func benchmarkInsertTx(b *testing.B, opener db.Opener) {
	ctx := context.Background()
	_, w := setupBench(b, opener)

	if err := w.Begin(ctx); err != nil {
		b.Fatalf("Begin failed: %v", err)
	}
	b.Cleanup(func() { _ = w.Commit() })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := w.Insert(ctx, "items", item(fmt.Sprintf("bench-%d", i), int64(i))); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}
}

// Benchmark for InsertMany with batches of 100 rows
func benchmarkInsertMany(b *testing.B, opener db.Opener) {
	ctx := context.Background()
	_, w := setupBench(b, opener)

	batch := make([]db.Row, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range batch {
			batch[j] = item(fmt.Sprintf("bench-%d-%d", i, j), int64(j))
		}
		if err := w.InsertMany(ctx, "items", batch); err != nil {
			b.Fatalf("InsertMany failed: %v", err)
		}
	}
}

// Benchmark for FetchOne on a read connection
func benchmarkFetchOne(b *testing.B, opener db.Opener) {
	ctx := context.Background()
	path, w := setupBench(b, opener)

	rows := make([]db.Row, 1000)
	for i := range rows {
		rows[i] = item(fmt.Sprintf("bench-%d", i), int64(i))
	}
	if err := w.InsertMany(ctx, "items", rows); err != nil {
		b.Fatalf("InsertMany failed: %v", err)
	}

	r, err := opener(ctx, path, db.ModeRead)
	if err != nil {
		b.Fatalf("Failed to open reader: %v", err)
	}
	b.Cleanup(func() { _ = r.Close() })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := r.FetchOne(ctx, "SELECT qty FROM items WHERE name = ?", fmt.Sprintf("bench-%d", i%len(rows))); err != nil {
			b.Fatalf("FetchOne failed: %v", err)
		}
	}
}
