// Package output provides formatting and output generation for analysis results.
package output

import (
	"time"

	"github.com/ccollicutt/latlog/pkg/analyzer"
)

// Report is the complete latency analysis output.
type Report struct {
	// Summary provides aggregate statistics.
	Summary Summary `json:"summary"`

	// Pairs contains the result of each node pair.
	Pairs []*analyzer.PairResult `json:"pairs"`

	// Overall aggregates every pair.
	Overall *analyzer.PairResult `json:"overall"`

	// Metadata provides context about the analysis.
	Metadata Metadata `json:"metadata"`
}

// Summary provides aggregate statistics.
type Summary struct {
	PairsAnalyzed   int `json:"pairs_analyzed"`
	PairsWithIssues int `json:"pairs_with_issues"`

	Matched  int `json:"matched"`
	Lost     int `json:"lost"`
	Skewed   int `json:"skewed"`
	Spurious int `json:"spurious"`

	LossRate float64 `json:"loss_rate_pct"`

	// ParseErrors counts malformed records in both directions.
	ParseErrors int `json:"parse_errors"`
}

// Metadata provides context about the analysis run.
type Metadata struct {
	// ConfigFile is the path to the configuration file used, if any.
	ConfigFile string `json:"config_file,omitempty"`

	Name             string    `json:"name"`
	Buckets          []float64 `json:"buckets_ms"`
	Window           string    `json:"match_window"`
	StageThresholdMs float64   `json:"stage_threshold_ms"`

	// AnalyzedAt is when the analysis was performed.
	AnalyzedAt time.Time `json:"analyzed_at"`

	// Duration is how long the analysis took.
	Duration time.Duration `json:"duration_ns"`
}

// NewReport creates a Report from analysis results.
func NewReport(result *analyzer.AnalysisResult, configFile string) *Report {
	window := "unbounded"
	if result.Metadata.Window > 0 {
		window = result.Metadata.Window.String()
	}

	report := &Report{
		Pairs:   result.Pairs,
		Overall: result.Overall,
		Metadata: Metadata{
			ConfigFile:       configFile,
			Name:             result.Metadata.Name,
			Buckets:          result.Metadata.Buckets,
			Window:           window,
			StageThresholdMs: result.Metadata.StageThresholdMs,
			AnalyzedAt:       result.Metadata.EndTime,
			Duration:         result.Metadata.EndTime.Sub(result.Metadata.StartTime),
		},
		Summary: Summary{
			PairsAnalyzed:   len(result.Pairs),
			PairsWithIssues: result.PairsWithIssues(),
		},
	}

	if o := result.Overall; o != nil {
		report.Summary.Matched = o.Counts.Matched
		report.Summary.Lost = o.Counts.Lost
		report.Summary.Skewed = o.Counts.Skewed
		report.Summary.Spurious = o.Counts.Spurious
		report.Summary.LossRate = o.Counts.LossRate()
		report.Summary.ParseErrors = o.OutgoingStats.ParseErrors + o.IncomingStats.ParseErrors
	}

	return report
}

// HasIssues returns true if any pair saw loss, skew or spurious samples.
func (r *Report) HasIssues() bool {
	return r.Summary.PairsWithIssues > 0
}
