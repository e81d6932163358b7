// Package analyzer runs the per-node-pair latency pipeline: read both
// directions, match samples, bucket and summarize latencies.
package analyzer

import (
	"time"

	"github.com/ccollicutt/latlog/pkg/histogram"
	"github.com/ccollicutt/latlog/pkg/parser"
)

// MatchCounts are the matcher counters of one pair, or of all pairs summed.
// Outgoing and Incoming exclude samples counted in OutOfOrder, so Outgoing
// equals the histogram total.
type MatchCounts struct {
	Outgoing   int `json:"outgoing"`
	Incoming   int `json:"incoming"`
	Matched    int `json:"matched"`
	Lost       int `json:"lost"`
	Expired    int `json:"expired"`
	Skewed     int `json:"skewed"`
	Spurious   int `json:"spurious"`
	OutOfOrder int `json:"out_of_order"`
}

// Add returns the sum of two counts.
func (c MatchCounts) Add(o MatchCounts) MatchCounts {
	return MatchCounts{
		Outgoing:   c.Outgoing + o.Outgoing,
		Incoming:   c.Incoming + o.Incoming,
		Matched:    c.Matched + o.Matched,
		Lost:       c.Lost + o.Lost,
		Expired:    c.Expired + o.Expired,
		Skewed:     c.Skewed + o.Skewed,
		Spurious:   c.Spurious + o.Spurious,
		OutOfOrder: c.OutOfOrder + o.OutOfOrder,
	}
}

// LossRate returns lost pairs as a percentage of all pairs.
func (c MatchCounts) LossRate() float64 {
	total := c.Matched + c.Lost + c.Skewed
	if total == 0 {
		return 0
	}
	return float64(c.Lost) * 100 / float64(total)
}

// HasIssues reports loss, clock skew or spurious samples.
func (c MatchCounts) HasIssues() bool {
	return c.Lost > 0 || c.Skewed > 0 || c.Spurious > 0
}

// SlowPair is one of the slowest matched pairs kept for reporting.
type SlowPair struct {
	Token     string    `json:"token"`
	Outgoing  time.Time `json:"outgoing_time"`
	LatencyMs float64   `json:"latency_ms"`

	// MaxStage is the slowest traced stage, empty without trace data.
	MaxStage string `json:"max_stage,omitempty"`

	Source  string `json:"source"`
	LineNum int    `json:"line"`
}

// PairResult is the outcome for one node pair. Individual pairs are not
// retained beyond the slowest few.
type PairResult struct {
	Name  string `json:"name"`
	SrcIP string `json:"src_ip"`
	DstIP string `json:"dst_ip"`

	OutgoingFiles []string `json:"outgoing_files"`
	IncomingFiles []string `json:"incoming_files"`

	// OutgoingStats and IncomingStats report parse errors per direction.
	OutgoingStats parser.SourceStats `json:"outgoing_parse"`
	IncomingStats parser.SourceStats `json:"incoming_parse"`

	Counts MatchCounts `json:"counts"`

	Histogram      histogram.Histogram `json:"histogram"`
	AboveThreshold histogram.Histogram `json:"above_threshold"`
	Latency        histogram.Stats     `json:"latency"`

	// DropReasons counts kernel drops by direction and reason,
	// e.g. OUTGOING_Stage_1_to_2_SKB_Mismatch.
	DropReasons map[string]int `json:"drop_reasons,omitempty"`

	// MaxStages counts the slowest stage of pairs at or above the
	// stage threshold.
	MaxStages map[string]int `json:"max_stages,omitempty"`

	Slowest []SlowPair `json:"slowest,omitempty"`
}

// HasIssues reports whether the pair saw loss, skew or spurious samples.
func (r *PairResult) HasIssues() bool {
	return r.Counts.HasIssues()
}

// AnalysisResult contains the complete analysis output.
type AnalysisResult struct {
	Pairs []*PairResult

	// Overall aggregates every pair.
	Overall *PairResult

	Metadata AnalysisMetadata
}

// AnalysisMetadata provides context about the analysis run.
type AnalysisMetadata struct {
	Name             string
	Buckets          []float64
	Window           time.Duration
	StageThresholdMs float64
	StartTime        time.Time
	EndTime          time.Time
}

// HasIssues returns true if any pair saw loss, skew or spurious samples.
func (r *AnalysisResult) HasIssues() bool {
	return r.Overall != nil && r.Overall.HasIssues()
}

// PairsWithIssues returns the number of pairs that have issues.
func (r *AnalysisResult) PairsWithIssues() int {
	count := 0
	for _, p := range r.Pairs {
		if p.HasIssues() {
			count++
		}
	}
	return count
}
