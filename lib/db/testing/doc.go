// Package testing provides standardised tests and benchmarks for
// connection implementations that satisfy the db.Conn interface.
//
// The package contains:
//   - testing: A test suite validating the Reader, Writer and Conn contracts
//   - benchmark: Performance tests for the most common connection operations
//
// Every test and benchmark opens its own database file in a temporary directory through the
// db.Opener under test, so implementations only need to provide an opener.
//
// Example usage:
//
//	// Running the standard test suite
//	dbtesting.RunConnTests(t, "SQLite", sqlite.NewOpener(nil))
//
//	// Running performance benchmarks
//	dbtesting.RunConnBenchmarks(b, "SQLite", sqlite.NewOpener(nil))
package testing
