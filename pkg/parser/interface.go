package parser

import (
	"context"
	"errors"
)

// ErrMalformed marks a record that could not be parsed into a sample.
// Sources skip such records and count them instead of failing.
var ErrMalformed = errors.New("malformed record")

// SampleSource provides an iterator over parsed samples.
// Implementations must be safe for sequential access (not concurrent).
type SampleSource interface {
	// Next returns the next parsed sample.
	// Returns io.EOF when no more samples are available.
	// Malformed records are skipped and counted in Stats.
	Next(ctx context.Context) (*Sample, error)

	// Stats reports record, sample and parse error counts so far.
	Stats() SourceStats

	// Close releases any resources held by the source.
	Close() error
}

// Format parses one log format into samples. Each supported log layout
// (ICMP traces, JSON lines, regex-described text) implements it.
type Format interface {
	// Name returns the format name used in configuration.
	Name() string

	// RecordStart returns the marker that opens a multi-line record.
	// Line formats return "" and receive one record per line.
	RecordStart() string

	// ParseRecord parses one record. Errors wrap ErrMalformed.
	ParseRecord(rec Record, dir Direction) (*Sample, error)
}
