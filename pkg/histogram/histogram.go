// Package histogram buckets pair latencies into a loss-aware distribution
// and summarizes them.
package histogram

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ccollicutt/latlog/pkg/matcher"
)

// Labels for the non-latency buckets.
const (
	LabelLoss    = "loss"
	LabelInvalid = "invalid"
)

// ErrInvalidEdges is returned for edges that are not strictly increasing
// positive finite numbers.
var ErrInvalidEdges = errors.New("invalid bucket edges")

// DefaultEdges are the bucket boundaries in milliseconds used when none are
// configured.
var DefaultEdges = []float64{10, 100, 500}

// Bucket is one latency range [Lower, Upper).
type Bucket struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower_ms"`
	// Upper is +Inf for the last bucket; JSON output omits it there.
	Upper float64 `json:"-"`
	Count int     `json:"count"`
}

// Histogram is a snapshot of an Aggregator.
type Histogram struct {
	// Buckets are ordered by Lower.
	Buckets []Bucket `json:"buckets"`
	Loss    int      `json:"loss"`
	Invalid int      `json:"invalid,omitempty"`
}

// Total returns the number of pairs counted.
func (h Histogram) Total() int {
	n := h.Loss + h.Invalid
	for _, b := range h.Buckets {
		n += b.Count
	}
	return n
}

// Map returns the label to count mapping. "invalid" is only present when
// skewed pairs were seen.
func (h Histogram) Map() map[string]int {
	m := make(map[string]int, len(h.Buckets)+2)
	for _, b := range h.Buckets {
		m[b.Label] = b.Count
	}
	m[LabelLoss] = h.Loss
	if h.Invalid > 0 {
		m[LabelInvalid] = h.Invalid
	}
	return m
}

// Labels returns bucket labels in order followed by "loss" and, when
// present, "invalid".
func (h Histogram) Labels() []string {
	labels := make([]string, 0, len(h.Buckets)+2)
	for _, b := range h.Buckets {
		labels = append(labels, b.Label)
	}
	labels = append(labels, LabelLoss)
	if h.Invalid > 0 {
		labels = append(labels, LabelInvalid)
	}
	return labels
}

// Percentages returns each bucket's share of all pairs, in percent.
func (h Histogram) Percentages() map[string]float64 {
	total := h.Total()
	out := make(map[string]float64)
	if total == 0 {
		return out
	}
	for label, count := range h.Map() {
		out[label] = float64(count) * 100 / float64(total)
	}
	return out
}

// Aggregator accumulates bucket counts. Adding is commutative, so pairs
// may arrive in any order and partial aggregators can be merged.
type Aggregator struct {
	edges   []float64
	counts  []int
	loss    int
	invalid int
}

// New creates an Aggregator for the given edges. Empty edges give a single
// [0,∞) bucket.
func New(edges []float64) (*Aggregator, error) {
	if err := ValidateEdges(edges); err != nil {
		return nil, err
	}
	return &Aggregator{
		edges:  append([]float64(nil), edges...),
		counts: make([]int, len(edges)+1),
	}, nil
}

// ValidateEdges checks edges without building an Aggregator.
func ValidateEdges(edges []float64) error {
	prev := 0.0
	for i, e := range edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: edge %d is not finite", ErrInvalidEdges, i)
		}
		if e <= prev {
			return fmt.Errorf("%w: edge %d (%s) must be greater than %s",
				ErrInvalidEdges, i, formatEdge(e), formatEdge(prev))
		}
		prev = e
	}
	return nil
}

// Edges returns a copy of the configured edges.
func (a *Aggregator) Edges() []float64 {
	return append([]float64(nil), a.edges...)
}

// Add counts one pair.
func (a *Aggregator) Add(p matcher.Pair) {
	switch p.Status {
	case matcher.StatusSkewed:
		a.invalid++
	case matcher.StatusMatched:
		ms, _ := p.LatencyMs()
		a.AddLatency(ms)
	default:
		a.loss++
	}
}

// AddLatency counts a valid latency in milliseconds. Negative values are
// counted as invalid.
func (a *Aggregator) AddLatency(ms float64) {
	if ms < 0 || math.IsNaN(ms) {
		a.invalid++
		return
	}
	a.counts[a.bucketIndex(ms)]++
}

// AddLoss counts a pair with no latency.
func (a *Aggregator) AddLoss() {
	a.loss++
}

func (a *Aggregator) bucketIndex(ms float64) int {
	return sort.Search(len(a.edges), func(i int) bool { return a.edges[i] > ms })
}

// Merge adds the counts of other, which must use the same edges.
func (a *Aggregator) Merge(other *Aggregator) error {
	if len(other.edges) != len(a.edges) {
		return fmt.Errorf("%w: cannot merge %d edges into %d", ErrInvalidEdges, len(other.edges), len(a.edges))
	}
	for i, e := range a.edges {
		if other.edges[i] != e {
			return fmt.Errorf("%w: edge %d differs (%s vs %s)", ErrInvalidEdges, i, formatEdge(other.edges[i]), formatEdge(e))
		}
	}
	for i, c := range other.counts {
		a.counts[i] += c
	}
	a.loss += other.loss
	a.invalid += other.invalid
	return nil
}

// Histogram returns the current counts.
func (a *Aggregator) Histogram() Histogram {
	h := Histogram{
		Buckets: make([]Bucket, len(a.counts)),
		Loss:    a.loss,
		Invalid: a.invalid,
	}
	for i, c := range a.counts {
		h.Buckets[i] = Bucket{
			Label: BucketLabel(a.edges, i),
			Lower: lowerBound(a.edges, i),
			Upper: upperBound(a.edges, i),
			Count: c,
		}
	}
	return h
}

// Aggregate buckets pairs by latency.
func Aggregate(pairs []matcher.Pair, edges []float64) (map[string]int, error) {
	agg, err := New(edges)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		agg.Add(p)
	}
	return agg.Histogram().Map(), nil
}

// BucketLabel renders the label of bucket i, e.g. "[10,100)" or "[500,∞)".
func BucketLabel(edges []float64, i int) string {
	upper := "∞"
	if i < len(edges) {
		upper = formatEdge(edges[i])
	}
	return "[" + formatEdge(lowerBound(edges, i)) + "," + upper + ")"
}

func lowerBound(edges []float64, i int) float64 {
	if i == 0 {
		return 0
	}
	return edges[i-1]
}

func upperBound(edges []float64, i int) float64 {
	if i < len(edges) {
		return edges[i]
	}
	return math.Inf(1)
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
