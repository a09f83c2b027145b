// Package common holds the configuration and logging setup shared by the litepool
// command line tools.
//
// PoolConfig collects everything needed to open a pool (database path, reader capacity,
// sqlite pragmas) and the key-value store on top of it, and converts it to the option
// structs of the pool, sqlite and sqlstore packages.
//
// InitLoggers installs a dragonboat logger factory that writes every log line as
// "LEVEL | package | message" to stderr and sets the level of all package loggers.
package common
