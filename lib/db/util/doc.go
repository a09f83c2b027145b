// Package util provides statistics helpers shared by the store and the command line tools.
//
//   - SizeHistogram: tracks value sizes in exponential buckets (16 B to 4 GB) and estimates
//     median and percentiles without keeping the samples. The key-value store uses it to
//     report value sizes.
//   - Stats and DistributionStats: summarize a series of values and rate how evenly it is
//     distributed. The benchmarks use it to show how fair the pool hands out connections.
package util
