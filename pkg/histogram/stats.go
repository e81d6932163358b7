package histogram

import (
	"math"

	"github.com/influxdata/tdigest"
)

// Stats summarizes valid latencies in milliseconds.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	Median float64 `json:"median_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	StdDev float64 `json:"stddev_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
}

// Summarizer accumulates latencies. Mean, min, max and standard deviation
// are exact; quantiles are estimated with a t-digest.
type Summarizer struct {
	digest *tdigest.TDigest
	count  int
	mean   float64
	m2     float64
	min    float64
	max    float64
}

// NewSummarizer creates an empty Summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{
		digest: tdigest.NewWithCompression(100),
		min:    math.Inf(1),
		max:    math.Inf(-1),
	}
}

// Add records one latency.
func (s *Summarizer) Add(ms float64) {
	s.digest.Add(ms, 1)
	s.count++

	// Welford's online update.
	delta := ms - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (ms - s.mean)

	s.min = math.Min(s.min, ms)
	s.max = math.Max(s.max, ms)
}

// Stats returns the summary. All fields are zero when nothing was added.
func (s *Summarizer) Stats() Stats {
	if s.count == 0 {
		return Stats{}
	}
	var stdDev float64
	if s.count > 1 {
		stdDev = math.Sqrt(s.m2 / float64(s.count-1))
	}
	return Stats{
		Count:  s.count,
		Mean:   s.mean,
		Median: s.quantile(0.50),
		Min:    s.min,
		Max:    s.max,
		StdDev: stdDev,
		P95:    s.quantile(0.95),
		P99:    s.quantile(0.99),
	}
}

// quantile clamps the digest estimate to the observed range.
func (s *Summarizer) quantile(q float64) float64 {
	v := s.digest.Quantile(q)
	return math.Max(s.min, math.Min(s.max, v))
}

// Summarize is a convenience wrapper over Summarizer.
func Summarize(latencies []float64) Stats {
	s := NewSummarizer()
	for _, v := range latencies {
		s.Add(v)
	}
	return s.Stats()
}
