package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/litepool/cmd/util"
	dbutil "github.com/ValentinKolb/litepool/lib/db/util"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the pool and the key-value store",
		Long:    util.WrapString("Runs a series of concurrent workloads against the key-value store and reports throughput, latency percentiles and how evenly the operations were spread over the workers."),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfDuration         = 2 * time.Second
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers per benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "duration"
	perfTestCmd.Flags().Duration(key, 2*time.Second, util.WrapString("How long each benchmark runs"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfDuration = viper.GetDuration("duration")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// benchmark is one named workload. op is called by every worker with a running counter.
type benchmark struct {
	name    string
	prepare func(ctx context.Context, keys []string) error
	op      func(ctx context.Context, keys []string, i int) error
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	name         string
	skipped      bool
	ops          int64
	errors       int64
	elapsed      time.Duration
	timer        gometrics.Timer
	distribution dbutil.DistributionStats
}

func (r perfResult) opsPerSec() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.ops) / r.elapsed.Seconds()
}

func benchmarks() []benchmark {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	fill := func(ctx context.Context, keys []string) error {
		for _, k := range keys {
			if err := session.Store.Set(ctx, k, value); err != nil {
				return err
			}
		}
		return nil
	}

	return []benchmark{
		{name: "set", op: func(ctx context.Context, keys []string, i int) error {
			return session.Store.Set(ctx, keys[i%len(keys)], value)
		}},
		{name: "set-large", op: func(ctx context.Context, keys []string, i int) error {
			return session.Store.Set(ctx, keys[i%len(keys)], largeValue)
		}},
		{name: "get", prepare: fill, op: func(ctx context.Context, keys []string, i int) error {
			_, _, err := session.Store.Get(ctx, keys[i%len(keys)])
			return err
		}},
		{name: "delete", prepare: fill, op: func(ctx context.Context, keys []string, i int) error {
			return session.Store.Delete(ctx, keys[i%len(keys)])
		}},
		{name: "has", prepare: fill, op: func(ctx context.Context, keys []string, i int) error {
			_, err := session.Store.Has(ctx, keys[i%len(keys)])
			return err
		}},
		{name: "has-not", op: func(ctx context.Context, keys []string, i int) error {
			_, err := session.Store.Has(ctx, keys[i%len(keys)]+"-missing")
			return err
		}},
		{name: "mixed", prepare: fill, op: func(ctx context.Context, keys []string, i int) error {
			key := keys[i%len(keys)]
			var err error
			switch i % 4 {
			case 0:
				err = session.Store.Set(ctx, key, value)
			case 1:
				_, _, err = session.Store.Get(ctx, key)
			case 2:
				err = session.Store.Delete(ctx, key)
			case 3:
				_, err = session.Store.Has(ctx, key)
			}
			return err
		}},
		{name: "read-heavy", prepare: fill, op: func(ctx context.Context, keys []string, i int) error {
			// one write per ten operations
			if i%10 == 0 {
				return session.Store.Set(ctx, keys[i%len(keys)], value)
			}
			_, _, err := session.Store.Get(ctx, keys[i%len(keys)])
			return err
		}},
	}
}

// runBenchmark runs b with perfNumThreads workers for perfDuration
func runBenchmark(ctx context.Context, b benchmark) (perfResult, error) {
	res := perfResult{name: b.name, timer: gometrics.NewTimer()}
	defer res.timer.Stop()

	keys := getKeys(b.name)
	if b.prepare != nil {
		if err := b.prepare(ctx, keys); err != nil {
			return res, fmt.Errorf("(%s) prepare: %w", b.name, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, perfDuration)
	defer cancel()

	perWorker := make([]int64, perfNumThreads)
	errCounts := make([]int64, perfNumThreads)
	start := time.Now()

	eg, egCtx := errgroup.WithContext(runCtx)
	for w := 0; w < perfNumThreads; w++ {
		eg.Go(func() error {
			// spread workers over the key space
			for i := w * len(keys) / perfNumThreads; egCtx.Err() == nil; i++ {
				opStart := time.Now()
				err := b.op(egCtx, keys, i)
				if egCtx.Err() != nil {
					return nil
				}
				res.timer.UpdateSince(opStart)
				if err != nil {
					errCounts[w]++
					continue
				}
				perWorker[w]++
			}
			return nil
		})
	}
	_ = eg.Wait()
	res.elapsed = time.Since(start)

	sizes := make([]float64, len(perWorker))
	for w, n := range perWorker {
		res.ops += n
		res.errors += errCounts[w]
		sizes[w] = float64(n)
	}
	res.distribution = dbutil.NewDistributionStats(sizes)

	// cleanup
	for _, k := range keys {
		_ = session.Store.Delete(ctx, k)
	}
	return res, nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for litepool")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(session.Config.String())
	fmt.Printf("Threads: %d, Duration: %s, Keys: %d\n", perfNumThreads, perfDuration, perfKeySpread)
	fmt.Println()

	var results []perfResult
	for _, b := range benchmarks() {
		if shouldSkip(b.name) {
			res := perfResult{name: b.name, skipped: true}
			results = append(results, res)
			printResult(res)
			continue
		}
		res, err := runBenchmark(ctx, b)
		if err != nil {
			return err
		}
		results = append(results, res)
		printResult(res)
	}

	stats := session.Pool.Stats()
	fmt.Printf("\npool: reads=%d writes=%d commits=%d rollbacks=%d open-readers=%d/%d\n",
		stats.Reads, stats.Writes, stats.Commits, stats.Rollbacks, stats.OpenReaders, stats.ReaderCapacity)

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of one benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

// latencies returns mean, p50, p99 and max of the timer
func latencies(t gometrics.Timer) (mean, p50, p99, maximum time.Duration) {
	snap := t.Snapshot()
	ps := snap.Percentiles([]float64{0.5, 0.99})
	return time.Duration(snap.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(snap.Max())
}

// printResult prints the result of a benchmark in a formatted way
func printResult(r perfResult) {
	if r.skipped || r.ops == 0 {
		fmt.Printf("%-12sskipped\n", r.name)
		return
	}
	mean, p50, p99, maximum := latencies(r.timer)
	fmt.Printf("%-12s%8.0f ops/sec  mean=%-10s p50=%-10s p99=%-10s max=%-10s fairness=%.2f errors=%d\n",
		r.name, r.opsPerSec(), mean, p50, p99, maximum, r.distribution.DistributionQuality, r.errors)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Ops", "OpsPerSec", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "Errors", "Fairness", "Skipped",
		"Database", "Readers", "JournalMode", "Synchronous", "Threads", "DurationSec", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	conf := session.Config
	for _, r := range results {
		var mean, p50, p99, maximum time.Duration
		if !r.skipped && r.timer != nil {
			mean, p50, p99, maximum = latencies(r.timer)
		}
		row := []string{
			r.name,
			strconv.FormatInt(r.ops, 10),
			fmt.Sprintf("%.0f", r.opsPerSec()),
			strconv.FormatInt(mean.Nanoseconds(), 10),
			strconv.FormatInt(p50.Nanoseconds(), 10),
			strconv.FormatInt(p99.Nanoseconds(), 10),
			strconv.FormatInt(maximum.Nanoseconds(), 10),
			strconv.FormatInt(r.errors, 10),
			fmt.Sprintf("%.3f", r.distribution.DistributionQuality),
			strconv.FormatBool(r.skipped),
			conf.Path,
			strconv.Itoa(conf.ReaderCapacity),
			conf.JournalMode,
			conf.Synchronous,
			strconv.Itoa(perfNumThreads),
			fmt.Sprintf("%.1f", perfDuration.Seconds()),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}
	return nil
}
