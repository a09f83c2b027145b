package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/litepool/lib/db/engines/sqlite"
	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/ValentinKolb/litepool/lib/store/sqlstore"
)

// --------------------------------------------------------------------------
// Pool configuration struct
// --------------------------------------------------------------------------

// PoolConfig holds everything needed to open a pool and the key-value store on top of it
type PoolConfig struct {
	// Database file
	Path string

	// Pool parameters
	ReaderCapacity int

	// sqlite pragmas
	BusyTimeout time.Duration
	JournalMode string
	Synchronous string
	ForeignKeys bool

	// key-value store
	GCInterval time.Duration

	// Logging configuration
	LogLevel string
}

// DefaultPoolConfig returns the configuration used when nothing is set
func DefaultPoolConfig(path string) *PoolConfig {
	engine := sqlite.DefaultOptions()
	return &PoolConfig{
		Path:           path,
		ReaderCapacity: pool.DefaultReaderCapacity,
		BusyTimeout:    engine.BusyTimeout,
		JournalMode:    engine.JournalMode,
		Synchronous:    engine.Synchronous,
		ForeignKeys:    engine.ForeignKeys,
		GCInterval:     sqlstore.DefaultOptions().GCInterval,
		LogLevel:       "warn",
	}
}

// Validate checks the configuration for values no component would accept
func (c *PoolConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.ReaderCapacity < 1 {
		return fmt.Errorf("%w: got %d", pool.ErrInvalidCapacity, c.ReaderCapacity)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ToSQLiteOptions converts the configuration to sqlite engine options
func (c *PoolConfig) ToSQLiteOptions() *sqlite.Options {
	return &sqlite.Options{
		BusyTimeout: c.BusyTimeout,
		JournalMode: c.JournalMode,
		Synchronous: c.Synchronous,
		ForeignKeys: c.ForeignKeys,
	}
}

// ToPoolOptions converts the configuration to pool options
func (c *PoolConfig) ToPoolOptions() *pool.Options {
	return &pool.Options{
		ReaderCapacity: c.ReaderCapacity,
		Opener:         sqlite.NewOpener(c.ToSQLiteOptions()),
	}
}

// ToStoreOptions converts the configuration to key-value store options
func (c *PoolConfig) ToStoreOptions() *sqlstore.Options {
	return &sqlstore.Options{
		GCInterval: c.GCInterval,
	}
}

// String returns a formatted string representation of the configuration
func (c *PoolConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Database")
	addField("Path", c.Path)

	addSection("Pool")
	addField("Reader Capacity", strconv.Itoa(c.ReaderCapacity))
	addField("Writers", "1")

	addSection("SQLite")
	addField("Busy Timeout", c.BusyTimeout.String())
	addField("Journal Mode", c.JournalMode)
	addField("Synchronous", c.Synchronous)
	addField("Foreign Keys", strconv.FormatBool(c.ForeignKeys))

	addSection("Key-Value Store")
	if c.GCInterval < 0 {
		addField("GC Interval", "disabled")
	} else {
		addField("GC Interval", c.GCInterval.String())
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
