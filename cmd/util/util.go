package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/litepool/lib/common"
	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/ValentinKolb/litepool/lib/store/sqlstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the cli
	EnvPrefix = "litepool"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// SetupPoolFlags adds the flags needed to open a pool to a command
func SetupPoolFlags(cmd *cobra.Command) {
	defaults := common.DefaultPoolConfig("litepool.db")

	key := "db"
	cmd.PersistentFlags().String(key, defaults.Path, WrapString("Path of the sqlite database file"))

	key = "readers"
	cmd.PersistentFlags().Int(key, defaults.ReaderCapacity, WrapString("Maximum number of read connections of the pool"))

	key = "busy-timeout"
	cmd.PersistentFlags().Duration(key, defaults.BusyTimeout, WrapString("How long sqlite retries a locked database before failing"))

	key = "journal-mode"
	cmd.PersistentFlags().String(key, defaults.JournalMode, WrapString("The sqlite journal mode set by the writer (WAL, DELETE, TRUNCATE, ...)"))

	key = "synchronous"
	cmd.PersistentFlags().String(key, defaults.Synchronous, WrapString("The sqlite synchronous level (OFF, NORMAL, FULL, EXTRA)"))

	key = "foreign-keys"
	cmd.PersistentFlags().Bool(key, defaults.ForeignKeys, WrapString("Whether sqlite enforces foreign key constraints"))

	key = "gc-interval"
	cmd.PersistentFlags().Duration(key, defaults.GCInterval, WrapString("Interval of the key-value garbage collector (negative to disable)"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 10*time.Second, WrapString("Timeout of a single command"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetPoolConfig reads the pool configuration from viper
func GetPoolConfig() *common.PoolConfig {
	return &common.PoolConfig{
		Path:           viper.GetString("db"),
		ReaderCapacity: viper.GetInt("readers"),
		BusyTimeout:    viper.GetDuration("busy-timeout"),
		JournalMode:    viper.GetString("journal-mode"),
		Synchronous:    viper.GetString("synchronous"),
		ForeignKeys:    viper.GetBool("foreign-keys"),
		GCInterval:     viper.GetDuration("gc-interval"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// CommandContext returns a context bounded by the --timeout flag
func CommandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := viper.GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// --------------------------------------------------------------------------
// Shared pool and store
// --------------------------------------------------------------------------

// Session holds the pool (and optionally the key-value store) of one cli invocation
type Session struct {
	Config *common.PoolConfig
	Pool   *pool.Pool
	Store  *sqlstore.Store
}

// OpenSession binds the flags of cmd, initializes the loggers and opens the pool.
// If withStore is set, the key-value store is opened on top of the pool.
func OpenSession(cmd *cobra.Command, withStore bool) (*Session, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	conf := GetPoolConfig()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return nil, err
	}

	p, err := pool.NewPool(conf.Path, conf.ToPoolOptions())
	if err != nil {
		return nil, err
	}
	s := &Session{Config: conf, Pool: p}

	if withStore {
		ctx, cancel := CommandContext(cmd)
		defer cancel()
		s.Store, err = sqlstore.NewSQLStore(ctx, p, conf.ToStoreOptions())
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("open key-value store: %w", err)
		}
	}
	return s, nil
}

// Close stops the store (if open) and closes the pool
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
	return s.Pool.Close()
}

// Probe runs one read and one write scope against the pool
func Probe(ctx context.Context, p *pool.Pool) error {
	if err := p.Read(ctx, func(r db.Reader) error {
		_, _, err := r.FetchOne(ctx, "SELECT 1")
		return err
	}); err != nil {
		return fmt.Errorf("read scope: %w", err)
	}
	if err := p.Write(ctx, func(w db.Writer) error {
		_, _, err := w.FetchOne(ctx, "SELECT 1")
		return err
	}); err != nil {
		return fmt.Errorf("write scope: %w", err)
	}
	return nil
}
