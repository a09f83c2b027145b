package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	_ "modernc.org/sqlite"
)

var log = logger.GetLogger("sqlite")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5 * time.Second
	defaultJournalMode = "WAL"
	defaultSynchronous = "NORMAL"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the pragmas applied to every connection opened by the engine
type Options struct {
	BusyTimeout time.Duration // How long sqlite retries on SQLITE_BUSY (0 = use default: 5 sec)
	JournalMode string        // Journal mode set by read-write connections ("" = WAL)
	Synchronous string        // Synchronous level ("" = NORMAL)
	ForeignKeys bool          // Enforce foreign key constraints
}

// DefaultOptions returns the default engine options
func DefaultOptions() *Options {
	return &Options{
		BusyTimeout: defaultBusyTimeout,
		JournalMode: defaultJournalMode,
		Synchronous: defaultSynchronous,
		ForeignKeys: true,
	}
}

// dsn builds the modernc connection string for path and mode.
// Read connections never change the journal mode, they only enable query_only.
func (o *Options) dsn(path string, mode db.Mode) string {
	busy := o.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	journal := o.JournalMode
	if journal == "" {
		journal = defaultJournalMode
	}
	synchronous := o.Synchronous
	if synchronous == "" {
		synchronous = defaultSynchronous
	}

	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	params.Add("_pragma", fmt.Sprintf("synchronous(%s)", synchronous))
	if o.ForeignKeys {
		params.Add("_pragma", "foreign_keys(ON)")
	}

	switch mode {
	case db.ModeReadWrite:
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", journal))
		params.Set("_txlock", "immediate")
	default:
		params.Add("_pragma", "query_only(1)")
	}

	return "file:" + path + "?" + params.Encode()
}

// --------------------------------------------------------------------------
// Opening connections
// --------------------------------------------------------------------------

// NewOpener returns a db.Opener that opens sqlite connections with the given options (optional)
func NewOpener(opts *Options) db.Opener {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(ctx context.Context, path string, mode db.Mode) (db.Conn, error) {
		return Open(ctx, path, mode, opts)
	}
}

// Open opens one physical sqlite connection.
// The returned handle is never shared: the underlying sql.DB is limited to a single connection
// so that transactions and pragmas always apply to the same sqlite handle.
func Open(ctx context.Context, path string, mode db.Mode, opts *Options) (db.Conn, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	handle, err := sql.Open(driverName, opts.dsn(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open %s connection to %s: %w", mode, path, err)
	}
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	handle.SetConnMaxLifetime(0)
	handle.SetConnMaxIdleTime(0)

	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ping %s connection to %s: %w", mode, path, err)
	}

	log.Debugf("opened %s connection to %s", mode, path)

	return &connImpl{
		handle: handle,
		mode:   mode,
		path:   path,
	}, nil
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// connImpl implements db.Conn for one sqlite handle
type connImpl struct {
	handle *sql.DB
	mode   db.Mode
	path   string
	closed atomic.Bool

	mu      sync.Mutex // protects tx and aborted
	tx      *sql.Tx
	aborted bool // a failed COMMIT may leave the sqlite transaction open
}

// querier is the subset shared by sql.DB and sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// target returns the open transaction or the plain handle
func (c *connImpl) target() (querier, error) {
	if c.closed.Load() {
		return nil, db.ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return c.tx, nil
	}
	return c.handle, nil
}

func (c *connImpl) writable() (querier, error) {
	if c.mode != db.ModeReadWrite {
		return nil, db.ErrReadOnly
	}
	return c.target()
}

// --------------------------------------------------------------------------
// Interface Methods - Reader (docu see db/db.go)
// --------------------------------------------------------------------------

func (c *connImpl) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := c.target()
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

func (c *connImpl) FetchOne(ctx context.Context, query string, args ...any) (db.Row, bool, error) {
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return db.Row{}, false, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return db.Row{}, false, err
	}
	if !rows.Next() {
		return db.Row{}, false, rows.Err()
	}
	row, err := scanRow(rows, columns)
	if err != nil {
		return db.Row{}, false, err
	}
	return row, true, rows.Err()
}

func (c *connImpl) FetchAll(ctx context.Context, query string, args ...any) ([]db.Row, error) {
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]db.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// scanRow reads the current row of rows into a db.Row
func scanRow(rows *sql.Rows, columns []string) (db.Row, error) {
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return db.Row{}, err
	}
	return db.NewRow(columns, values), nil
}

// --------------------------------------------------------------------------
// Interface Methods - Writer (docu see db/db.go)
// --------------------------------------------------------------------------

func (c *connImpl) Insert(ctx context.Context, table string, row db.Row) (int64, error) {
	q, err := c.writable()
	if err != nil {
		return 0, err
	}
	stmt, err := insertStatement("INSERT", table, row)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, stmt, row.Values()...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (c *connImpl) InsertMany(ctx context.Context, table string, rows []db.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if !db.SameColumns(rows) {
		return db.ErrColumnMismatch
	}
	q, err := c.writable()
	if err != nil {
		return err
	}
	query, err := insertStatement("INSERT", table, rows[0])
	if err != nil {
		return err
	}

	stmt, err := q.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Values()...); err != nil {
			return err
		}
	}
	return nil
}

func (c *connImpl) InsertOrReplace(ctx context.Context, table string, row db.Row) error {
	q, err := c.writable()
	if err != nil {
		return err
	}
	stmt, err := insertStatement("INSERT OR REPLACE", table, row)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, stmt, row.Values()...)
	return err
}

func (c *connImpl) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := c.writable()
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertStatement builds "<verb> INTO table (cols...) VALUES (?...)" with quoted identifiers
func insertStatement(verb, table string, row db.Row) (string, error) {
	if row.Len() == 0 {
		return "", db.ErrEmptyRow
	}

	columns := row.Columns()
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")

	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, quoteIdent(table), strings.Join(quoted, ","), placeholders), nil
}

// quoteIdent quotes an sqlite identifier
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// --------------------------------------------------------------------------
// Interface Methods - Lifecycle (docu see db/db.go)
// --------------------------------------------------------------------------

func (c *connImpl) Begin(ctx context.Context) error {
	if c.closed.Load() {
		return db.ErrConnClosed
	}
	if c.mode != db.ModeReadWrite {
		return db.ErrReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return db.ErrTxActive
	}
	// the context only guards BEGIN itself, a cancelled scope context must not
	// roll back a transaction behind the pool's back
	tx, err := c.handle.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *connImpl) Commit() error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()

	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		c.mu.Lock()
		c.aborted = true
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *connImpl) Rollback() error {
	c.mu.Lock()
	tx, aborted := c.tx, c.aborted
	c.tx, c.aborted = nil, false
	c.mu.Unlock()

	if tx != nil {
		return tx.Rollback()
	}
	if aborted {
		_, err := c.handle.Exec("ROLLBACK")
		if err != nil && strings.Contains(err.Error(), "no transaction is active") {
			return nil
		}
		return err
	}
	return nil
}

func (c *connImpl) Mode() db.Mode {
	return c.mode
}

func (c *connImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.Rollback(); err != nil {
		log.Warningf("rollback on close of %s failed: %v", c.path, err)
	}
	log.Debugf("closing %s connection to %s", c.mode, c.path)
	return c.handle.Close()
}
