// Package cmd implements the command-line interface of litepool. Every command opens its
// own pool on the database file given by --db, runs its work through read and write scopes
// and closes the pool again.
//
// The package is organized into several subpackages:
//
//   - sql: Raw statements in read (query) and write (exec, insert) scopes
//   - kv: Commands for key-value store operations (get, set, delete, etc.) and benchmarks
//   - lock: Commands for locking operations (acquire, release)
//   - serve: Serves the key-value store, the pool statistics and metrics over http
//   - stats: Prints the configuration and statistics of a pool
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the LITEPOOL_ prefix, from the
// environment or from .env and .env.local files.
//
// See litepool -help for a list of all commands.
package cmd
