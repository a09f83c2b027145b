package sqlite

import (
	"testing"

	dbtesting "github.com/ValentinKolb/litepool/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunConnTests(t, "SQLite", NewOpener(nil))
}

func Benchmark(b *testing.B) {
	dbtesting.RunConnBenchmarks(b, "SQLite", NewOpener(nil))
}
