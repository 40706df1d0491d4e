// Package stats provides the deterministic statistics kernel used by all
// capacity analysis: percentiles, burst classification, and spike ratios.
// Every function is pure and total; callers decide what missing data means.
package stats

import (
	"fmt"
	"math"
	"sort"
)

// extremeBurstRatio is the max/median ratio beyond which a workload is
// considered bursty regardless of its p95 shape.
const extremeBurstRatio = 500.0

// Average returns the arithmetic mean of samples.
func Average(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("average of empty sample set")
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples)), nil
}

// Percentile returns the p-th percentile of samples using linear
// interpolation between closest ranks. The input slice is not mutated.
func Percentile(samples []float64, p float64) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("percentile of empty sample set")
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %v out of range [0, 100]", p)
	}
	if len(samples) == 1 {
		return samples[0], nil
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// nearestRank returns the p-th percentile by the nearest-rank method:
// rank = ceil((p/100)*n) - 1, clamped to the valid index range.
func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := int(math.Ceil((p/100)*float64(n))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= n {
		rank = n - 1
	}
	return sorted[rank]
}

// SpikeRatio returns max/p95 where p95 uses the nearest-rank method.
// A flat-zero series yields 1.0; a zero p95 with a nonzero max yields +Inf.
func SpikeRatio(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("spike ratio of empty sample set")
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	p95 := nearestRank(sorted, 95)
	p100 := sorted[len(sorted)-1]

	if p95 == 0 {
		if p100 == 0 {
			return 1.0, nil
		}
		return math.Inf(1), nil
	}
	return p100 / p95, nil
}

// IsBursty reports whether a series shows burst behavior: its max exceeds
// p95 by the given threshold, or exceeds the median by an extreme margin.
// An empty series is never bursty.
func IsBursty(samples []float64, threshold float64) bool {
	if len(samples) == 0 {
		return false
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	p100 := sorted[len(sorted)-1]
	median, _ := Percentile(samples, 50)
	p95Interp, _ := Percentile(samples, 95)

	if p95Interp > 0 && p100/p95Interp >= threshold {
		return true
	}
	if median > 0 && p100/median >= extremeBurstRatio {
		return true
	}

	// A handful of samples can hide a spike from the interpolated p95;
	// the nearest-rank p95 catches it when the median confirms.
	p95Rank := nearestRank(sorted, 95)
	if p95Rank > 0 && p100/p95Rank >= threshold && median > 0 && p100/median >= extremeBurstRatio {
		return true
	}
	return false
}

// Max returns the maximum of samples.
func Max(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("max of empty sample set")
	}
	m := samples[0]
	for _, v := range samples[1:] {
		if v > m {
			m = v
		}
	}
	return m, nil
}
