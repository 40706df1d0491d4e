// Package series holds timestamped metric series and the hygiene rules
// applied before any statistics are computed: invalid samples are dropped,
// order and duplicates preserved, and observation windows validated.
package series

import (
	"math"
	"time"

	"github.com/prometheus/common/model"

	"github.com/kubefit/kubefit/internal/stats"
)

// Point is a single metric sample.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series is an ordered sequence of samples for one entity and resource.
type Series []Point

// FromSampleStream converts a Prometheus range-query stream into a Series.
func FromSampleStream(stream *model.SampleStream) Series {
	if stream == nil {
		return nil
	}
	out := make(Series, 0, len(stream.Values))
	for _, sp := range stream.Values {
		out = append(out, Point{
			Timestamp: sp.Timestamp.Time(),
			Value:     float64(sp.Value),
		})
	}
	return out
}

// Clean drops NaN and infinite samples. Order and duplicates are preserved;
// cleaning never reorders a series.
func Clean(s Series) Series {
	out := make(Series, 0, len(s))
	for _, p := range s {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Values extracts the sample values in order.
func (s Series) Values() []float64 {
	vals := make([]float64, len(s))
	for i, p := range s {
		vals[i] = p.Value
	}
	return vals
}

// Span returns the time covered between the earliest and latest sample.
func (s Series) Span() time.Duration {
	if len(s) == 0 {
		return 0
	}
	min, max := s[0].Timestamp, s[0].Timestamp
	for _, p := range s[1:] {
		if p.Timestamp.Before(min) {
			min = p.Timestamp
		}
		if p.Timestamp.After(max) {
			max = p.Timestamp
		}
	}
	return max.Sub(min)
}

// WindowSufficient reports whether the series meets both the sample count
// and the observed duration minimums. Both must hold.
func WindowSufficient(s Series, minSamples int, minWindow time.Duration) bool {
	if len(s) == 0 || len(s) < minSamples {
		return false
	}
	return s.Span() >= minWindow
}

// Stats summarizes a cleaned series.
type Stats struct {
	Avg  float64 `json:"avg"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	P100 float64 `json:"p100"`
}

// Summarize computes the standard percentile summary of a series.
// Returns an error on an empty series.
func Summarize(s Series) (Stats, error) {
	vals := s.Values()

	avg, err := stats.Average(vals)
	if err != nil {
		return Stats{}, err
	}
	p50, err := stats.Percentile(vals, 50)
	if err != nil {
		return Stats{}, err
	}
	p95, err := stats.Percentile(vals, 95)
	if err != nil {
		return Stats{}, err
	}
	p99, err := stats.Percentile(vals, 99)
	if err != nil {
		return Stats{}, err
	}
	p100, err := stats.Percentile(vals, 100)
	if err != nil {
		return Stats{}, err
	}

	return Stats{Avg: avg, P50: p50, P95: p95, P99: p99, P100: p100}, nil
}
