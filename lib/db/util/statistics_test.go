package util

import (
	"math"
	"sync"
	"testing"
)

func TestNewStats(t *testing.T) {
	if s := NewStats(nil); s != (Stats{}) {
		t.Errorf("Expected zero stats for no values, got %+v", s)
	}

	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Mean != 5 || s.StdDeviation != 2 {
		t.Errorf("Expected mean 5 and std deviation 2, got %+v", s)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Expected min 2 and max 9, got %+v", s)
	}
	if math.Abs(s.MinMaxRatio-2.0/9.0) > 1e-9 {
		t.Errorf("Expected min/max ratio 2/9, got %f", s.MinMaxRatio)
	}
}

func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("Expected quality 1 for an even distribution, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{40, 0, 0, 0})
	if skewed.DistributionQuality != 0 {
		t.Errorf("Expected quality 0 when one share did everything, got %f", skewed.DistributionQuality)
	}

	uneven := NewDistributionStats([]float64{10, 12, 8, 10})
	if uneven.DistributionQuality <= skewed.DistributionQuality || uneven.DistributionQuality >= 1 {
		t.Errorf("Expected quality between 0 and 1, got %f", uneven.DistributionQuality)
	}
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if h.MedianEstimate() != 0 || h.AverageSize() != 0 {
		t.Errorf("Expected zero estimates for an empty histogram")
	}

	// a single sample lands in its own bucket
	h.AddSample(100)
	if got := h.MedianEstimate(); got != (64+256)/2 {
		t.Errorf("Expected median %d, got %d", (64+256)/2, got)
	}

	for i := 0; i < 8; i++ {
		h.AddSample(10)
	}
	h.AddSample(5 << 30)

	if h.Count() != 10 {
		t.Errorf("Expected 10 samples, got %d", h.Count())
	}
	if got := h.MedianEstimate(); got != 8 {
		t.Errorf("Expected median estimate 8, got %d", got)
	}
	if got := h.PercentileEstimate(100); got != 4294967296*2 {
		t.Errorf("Expected p100 in the overflow bucket, got %d", got)
	}
	if got := h.PercentileEstimate(101); got != 0 {
		t.Errorf("Expected 0 for an invalid percentile, got %d", got)
	}
	if want := (8*10 + 100 + 5<<30) / 10; h.AverageSize() != want {
		t.Errorf("Expected average %d, got %d", want, h.AverageSize())
	}
}

func TestSizeHistogramConcurrent(t *testing.T) {
	h := NewSizeHistogram()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.AddSample(i)
			}
		}()
	}
	wg.Wait()

	if h.Count() != 8000 {
		t.Errorf("Expected 8000 samples, got %d", h.Count())
	}
}
