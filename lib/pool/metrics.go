package pool

import (
	"github.com/VictoriaMetrics/metrics"
)

// poolMetrics holds the metrics of one pool. Every pool owns its own metrics.Set,
// so several pools in one process never share counters.
type poolMetrics struct {
	set *metrics.Set

	reads     *metrics.Counter
	writes    *metrics.Counter
	commits   *metrics.Counter
	rollbacks *metrics.Counter

	readWait  *metrics.Histogram // time from Read call until the connection is handed out
	writeWait *metrics.Histogram // time from Write call until the transaction is open
}

func newPoolMetrics(p *Pool) *poolMetrics {
	set := metrics.NewSet()
	m := &poolMetrics{
		set:       set,
		reads:     set.NewCounter("litepool_reads_total"),
		writes:    set.NewCounter("litepool_writes_total"),
		commits:   set.NewCounter("litepool_commits_total"),
		rollbacks: set.NewCounter("litepool_rollbacks_total"),
		readWait:  set.NewHistogram("litepool_read_wait_seconds"),
		writeWait: set.NewHistogram("litepool_write_wait_seconds"),
	}

	set.NewGauge("litepool_readers_open", func() float64 {
		return float64(p.readers.stats().open)
	})
	set.NewGauge("litepool_readers_idle", func() float64 {
		return float64(p.readers.stats().idle)
	})
	set.NewGauge("litepool_readers_in_use", func() float64 {
		return float64(p.readers.stats().inUse)
	})
	set.NewGauge("litepool_readers_waiting", func() float64 {
		return float64(p.readers.stats().waiting)
	})
	set.NewGauge("litepool_readers_pending", func() float64 {
		return float64(p.writer.stats().pending)
	})

	return m
}
