package sqlstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/ValentinKolb/litepool/lib/db/util"
	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/ValentinKolb/litepool/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Constants & Schema
// --------------------------------------------------------------------------

const (
	defaultGCInterval = time.Second // Default interval between GC runs
	infoSampleSize    = 1000        // Number of values sampled by GetDBInfo
	dbType            = "sqlite"
	entriesTable      = "kv_entries"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_entries (
		key       TEXT PRIMARY KEY,
		value     BLOB,
		write_idx INTEGER NOT NULL,
		expire_at INTEGER NOT NULL DEFAULT 0,
		delete_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS kv_entries_expire_at ON kv_entries (expire_at) WHERE expire_at > 0`,
	`CREATE INDEX IF NOT EXISTS kv_entries_delete_at ON kv_entries (delete_at) WHERE delete_at > 0`,
	`CREATE TABLE IF NOT EXISTS kv_meta (
		id        INTEGER PRIMARY KEY CHECK (id = 0),
		write_idx INTEGER NOT NULL
	)`,
	`INSERT OR IGNORE INTO kv_meta (id, write_idx) VALUES (0, 0)`,
}

const (
	selectEntry = `SELECT e.value AS value, e.expire_at AS expire_at, e.delete_at AS delete_at, m.write_idx AS write_idx
		FROM kv_entries e JOIN kv_meta m ON m.id = 0 WHERE e.key = ?`
	selectIndex  = `SELECT write_idx FROM kv_meta WHERE id = 0`
	advanceIndex = `UPDATE kv_meta SET write_idx = write_idx + 1 WHERE id = 0`
	deleteEntry  = `DELETE FROM kv_entries WHERE key = ?`
	expireEntry  = `UPDATE kv_entries SET value = NULL, expire_at = ?, write_idx = ? WHERE key = ?`

	collectDeleted = `DELETE FROM kv_entries WHERE delete_at > 0 AND delete_at <= ?`
	collectExpired = `UPDATE kv_entries SET value = NULL WHERE expire_at > 0 AND expire_at <= ? AND value IS NOT NULL`

	selectInfo = `SELECT m.write_idx AS write_idx,
		(SELECT COUNT(*) FROM kv_entries) AS entries,
		(SELECT COUNT(*) FROM kv_entries e WHERE e.expire_at > 0 AND e.expire_at <= m.write_idx AND e.value IS NOT NULL) AS expired_backlog,
		(SELECT COUNT(*) FROM kv_entries e WHERE e.delete_at > 0 AND e.delete_at <= m.write_idx) AS deleted_backlog
		FROM kv_meta m WHERE m.id = 0`
	selectValueSizes = `SELECT LENGTH(value) AS size FROM kv_entries WHERE value IS NOT NULL LIMIT ?`
	selectFileSize   = `SELECT page_count * page_size AS size FROM pragma_page_count(), pragma_page_size()`
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Store during initialization
type Options struct {
	GCInterval time.Duration // Time between GC runs (0 = use default: 1 sec, < 0 = no background GC)
}

// DefaultOptions returns the default store options
func DefaultOptions() *Options {
	return &Options{
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store implements store.IStore on top of a pool.Pool.
// The pool is owned by the caller, the store never closes it.
//
// Thread-safety: all methods are safe for concurrent use. Writes are serialized by the pool.
type Store struct {
	pool *pool.Pool

	gcInterval time.Duration
	gcCtx      context.Context
	gcCancel   context.CancelFunc
	gcWg       sync.WaitGroup
	closed     atomic.Bool
}

var _ store.IStore = (*Store)(nil)

// NewSQLStore creates the key-value tables (if missing) in the database of p and starts
// the background garbage collector. Options are optional.
func NewSQLStore(ctx context.Context, p *pool.Pool, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	interval := opts.GCInterval
	if interval == 0 {
		interval = defaultGCInterval
	}

	err := p.Write(ctx, func(w db.Writer) error {
		for _, stmt := range schema {
			if _, err := w.Execute(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError, "create schema", err)
	}

	s := &Store{
		pool:       p,
		gcInterval: interval,
	}
	s.gcCtx, s.gcCancel = context.WithCancel(context.Background())

	if interval > 0 {
		s.gcWg.Add(1)
		go s.garbageCollector()
	}

	log.Infof("opened key-value store in %s (gc interval %s)", p.Path(), interval)
	return s, nil
}

// Close stops the background garbage collector and waits for a running collection to end.
// Calling Close again is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.gcCancel()
	s.gcWg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// entry is the stored state of one key together with the write index it was read at
type entry struct {
	value    []byte
	expireAt uint64
	deleteAt uint64
	writeIdx uint64
}

// ttlInfo reports whether the entry is expired and or deleted at its write index
func (e entry) ttlInfo() (isExpired, isDeleted bool) {
	isExpired = e.expireAt != 0 && e.writeIdx >= e.expireAt
	isDeleted = e.deleteAt != 0 && e.writeIdx >= e.deleteAt
	return isExpired, isDeleted
}

// loadEntry reads key in the scope of r. Inside a write scope the write index
// is the one of the running write.
func loadEntry(ctx context.Context, r db.Reader, key string) (entry, bool, error) {
	row, ok, err := r.FetchOne(ctx, selectEntry, key)
	if err != nil || !ok {
		return entry{}, false, err
	}
	value, _ := row.Get("value")
	expireAt, _ := row.Get("expire_at")
	deleteAt, _ := row.Get("delete_at")
	writeIdx, _ := row.Get("write_idx")

	return entry{
		value:    toBytes(value),
		expireAt: toUint64(expireAt),
		deleteAt: toUint64(deleteAt),
		writeIdx: toUint64(writeIdx),
	}, true, nil
}

// currentIndex returns the write index as seen by r
func currentIndex(ctx context.Context, r db.Reader) (uint64, error) {
	row, ok, err := r.FetchOne(ctx, selectIndex)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("write index row missing")
	}
	v, _ := row.Get("write_idx")
	return toUint64(v), nil
}

// nextIndex advances the write index inside the running write scope and returns the new value
func nextIndex(ctx context.Context, w db.Writer) (uint64, error) {
	if _, err := w.Execute(ctx, advanceIndex); err != nil {
		return 0, err
	}
	return currentIndex(ctx, w)
}

// write runs fn in a write scope after advancing the write index.
// Every write operation advances the index, even when fn ends up changing nothing.
func (s *Store) write(ctx context.Context, op string, fn func(w db.Writer, idx uint64) error) error {
	err := s.pool.Write(ctx, func(w db.Writer) error {
		idx, err := nextIndex(ctx, w)
		if err != nil {
			return err
		}
		return fn(w, idx)
	})
	return store.WrapError(store.RetCInternalError, op, err)
}

// read runs fn in a read scope
func (s *Store) read(ctx context.Context, op string, fn func(r db.Reader) error) error {
	return store.WrapError(store.RetCInternalError, op, s.pool.Read(ctx, fn))
}

// putEntry writes key with offsets relative to idx, replacing any existing row
func putEntry(ctx context.Context, w db.Writer, key string, value []byte, idx, expireIn, deleteIn uint64) error {
	var expireAt, deleteAt uint64
	if expireIn > 0 {
		expireAt = idx + expireIn
	}
	if deleteIn > 0 {
		deleteAt = idx + deleteIn
	}
	if value == nil {
		value = []byte{}
	}

	row := db.Row{}.
		With("key", key).
		With("value", value).
		With("write_idx", int64(idx)).
		With("expire_at", int64(expireAt)).
		With("delete_at", int64(deleteAt))
	return w.InsertOrReplace(ctx, entriesTable, row)
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case int64:
		if n > 0 {
			return uint64(n)
		}
	case float64:
		if n > 0 {
			return uint64(n)
		}
	}
	return 0
}

func toBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, "Set", func(w db.Writer, idx uint64) error {
		return putEntry(ctx, w, key, value, idx, 0, 0)
	})
}

func (s *Store) SetE(ctx context.Context, key string, value []byte, expireIn, deleteIn uint64) error {
	return s.write(ctx, "SetE", func(w db.Writer, idx uint64) error {
		return putEntry(ctx, w, key, value, idx, expireIn, deleteIn)
	})
}

func (s *Store) SetEIfUnset(ctx context.Context, key string, value []byte, expireIn, deleteIn uint64) error {
	return s.write(ctx, "SetEIfUnset", func(w db.Writer, idx uint64) error {
		e, found, err := loadEntry(ctx, w, key)
		if err != nil {
			return err
		}
		// an expired entry still counts as set, only a deleted one can be replaced
		if _, isDeleted := e.ttlInfo(); found && !isDeleted {
			return nil
		}
		return putEntry(ctx, w, key, value, idx, expireIn, deleteIn)
	})
}

func (s *Store) Expire(ctx context.Context, key string) error {
	return s.write(ctx, "Expire", func(w db.Writer, idx uint64) error {
		e, found, err := loadEntry(ctx, w, key)
		if err != nil || !found {
			return err
		}
		if _, isDeleted := e.ttlInfo(); isDeleted {
			_, err = w.Execute(ctx, deleteEntry, key)
			return err
		}
		_, err = w.Execute(ctx, expireEntry, int64(idx), int64(idx), key)
		return err
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.write(ctx, "Delete", func(w db.Writer, _ uint64) error {
		_, err := w.Execute(ctx, deleteEntry, key)
		return err
	})
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value  []byte
		loaded bool
	)
	err := s.read(ctx, "Get", func(r db.Reader) error {
		e, found, err := loadEntry(ctx, r, key)
		if err != nil || !found {
			return err
		}
		if isExpired, isDeleted := e.ttlInfo(); isExpired || isDeleted {
			return nil
		}
		value, loaded = e.value, true
		if value == nil {
			value = []byte{}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, loaded, nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	var loaded bool
	err := s.read(ctx, "Has", func(r db.Reader) error {
		e, found, err := loadEntry(ctx, r, key)
		if err != nil || !found {
			return err
		}
		// expired keys are still findable
		_, isDeleted := e.ttlInfo()
		loaded = !isDeleted
		return nil
	})
	if err != nil {
		return false, err
	}
	return loaded, nil
}

// Metadata is the implementation specific part of store.DatabaseInfo
type Metadata struct {
	CurrentWriteIndex uint64     `json:"current_write_index"`
	Entries           int64      `json:"entries"`
	ExpiredBacklog    int64      `json:"expired_backlog"` // expired entries whose value the gc has not dropped yet
	DeletedBacklog    int64      `json:"deleted_backlog"` // deleted entries the gc has not removed yet
	ValueSizeMedian   int        `json:"value_size_median"`
	ValueSizeAverage  int        `json:"value_size_average"`
	ValueSizeP90      int        `json:"value_size_p90"`
	Pool              pool.Stats `json:"pool"`
	Info              string     `json:"info"`
}

func (s *Store) GetDBInfo(ctx context.Context) (store.DatabaseInfo, error) {
	var (
		meta      Metadata
		sizeBytes int64
	)
	histogram := util.NewSizeHistogram()

	err := s.read(ctx, "GetDBInfo", func(r db.Reader) error {
		row, _, err := r.FetchOne(ctx, selectInfo)
		if err != nil {
			return err
		}
		v, _ := row.Get("write_idx")
		meta.CurrentWriteIndex = toUint64(v)
		v, _ = row.Get("entries")
		meta.Entries = int64(toUint64(v))
		v, _ = row.Get("expired_backlog")
		meta.ExpiredBacklog = int64(toUint64(v))
		v, _ = row.Get("deleted_backlog")
		meta.DeletedBacklog = int64(toUint64(v))

		sizes, err := r.FetchAll(ctx, selectValueSizes, infoSampleSize)
		if err != nil {
			return err
		}
		for _, size := range sizes {
			n, _ := size.Get("size")
			histogram.AddSample(int(toUint64(n)))
		}

		row, _, err = r.FetchOne(ctx, selectFileSize)
		if err != nil {
			return err
		}
		v, _ = row.Get("size")
		sizeBytes = int64(toUint64(v))
		return nil
	})
	if err != nil {
		return store.DatabaseInfo{}, err
	}

	meta.ValueSizeMedian = histogram.MedianEstimate()
	meta.ValueSizeAverage = histogram.AverageSize()
	meta.ValueSizeP90 = histogram.PercentileEstimate(90)
	meta.Pool = s.pool.Stats()
	meta.Info = "Value sizes are estimated from a sample of at most 1000 entries."

	return store.DatabaseInfo{
		SizeBytes: int(sizeBytes),
		DbType:    dbType,
		Metadata:  meta,
	}, nil
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// GCResult reports what one garbage collection run removed
type GCResult struct {
	Deleted int64 `json:"deleted"` // rows removed because their delete index was reached
	Expired int64 `json:"expired"` // values dropped because their expire index was reached
}

// GarbageCollect removes every deleted entry and drops the value of every expired entry.
// It runs in a single write scope but does not advance the write index.
func (s *Store) GarbageCollect(ctx context.Context) (GCResult, error) {
	var res GCResult
	err := s.pool.Write(ctx, func(w db.Writer) error {
		idx, err := currentIndex(ctx, w)
		if err != nil {
			return err
		}
		if res.Deleted, err = w.Execute(ctx, collectDeleted, int64(idx)); err != nil {
			return err
		}
		res.Expired, err = w.Execute(ctx, collectExpired, int64(idx))
		return err
	})
	if err != nil {
		return GCResult{}, store.WrapError(store.RetCInternalError, "GarbageCollect", err)
	}
	return res, nil
}

// garbageCollector is the background gc loop. It ends when the store is closed.
// A collection that fails is logged and retried on the next tick.
func (s *Store) garbageCollector() {
	defer s.gcWg.Done()

	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcCtx.Done():
			return
		case <-ticker.C:
		}

		res, err := s.GarbageCollect(s.gcCtx)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			return
		case errors.Is(err, pool.ErrPoolClosed):
			log.Infof("pool closed, stopping gc for %s", s.pool.Path())
			return
		case err != nil:
			log.Warningf("gc run on %s failed: %v", s.pool.Path(), err)
		case res.Deleted > 0 || res.Expired > 0:
			log.Debugf("gc removed %d deleted and dropped %d expired entries", res.Deleted, res.Expired)
		}
	}
}
