// Package parser provides log file reading and sample parsing for latlog.
package parser

import "time"

// Direction identifies which side of a node pair produced a sample.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Sample is a single timestamped observation keyed by a correlation token.
// Samples are immutable once parsed.
type Sample struct {
	// Token correlates outgoing and incoming samples (e.g. ICMP id/seq).
	Token string

	// Timestamp is when the sample was observed.
	Timestamp time.Time

	// Direction is the side of the node pair that logged the sample.
	Direction Direction

	// Source is the file path this sample came from.
	Source string

	// LineNum is the 1-based line number where the sample's record starts.
	LineNum int

	// Trace holds ICMP RTT trace details, nil for other formats.
	Trace *TraceDetail
}

// TraceDetail is the per-stage breakdown carried by an ICMP RTT trace block.
// Latencies are in microseconds.
type TraceDetail struct {
	SrcIP     string
	DstIP     string
	SessionID int
	Seq       int

	// SKBPointers maps stage number to the socket buffer address seen there.
	SKBPointers map[int]string

	// Path1 and Path2 map a stage transition ("0->1") to its latency.
	Path1 map[string]float64
	Path2 map[string]float64

	// TotalRTT is the traced round trip, zero if the block had none.
	TotalRTT float64

	// Drop is set when the SKB pointers show the packet was replaced in flight.
	Drop            bool
	DropReason      string
	CorruptedStages []string

	// MaxStage is the slowest non-corrupted stage, e.g. "Path1_0->1".
	MaxStage   string
	MaxLatency float64
}

// Record is one raw log record: a single line, or a whole block for
// multi-line formats.
type Record struct {
	// Text is the record content. Block records keep their newlines.
	Text string

	// Source is the file path this record came from.
	Source string

	// LineNum is the 1-based line number of the record's first line.
	LineNum int
}

// SourceStats counts what a source has read so far.
type SourceStats struct {
	// Records is the number of records offered to the format.
	Records int `json:"records"`

	// Samples is the number of records that parsed into samples.
	Samples int `json:"samples"`

	// ParseErrors is the number of malformed records that were skipped.
	ParseErrors int `json:"parse_errors"`
}

// Add returns the sum of two stats.
func (s SourceStats) Add(o SourceStats) SourceStats {
	return SourceStats{
		Records:     s.Records + o.Records,
		Samples:     s.Samples + o.Samples,
		ParseErrors: s.ParseErrors + o.ParseErrors,
	}
}
