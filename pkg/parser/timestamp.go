package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// LayoutUnix is a pseudo layout for epoch seconds with an optional
// fractional part, as printed by ping -D and most tracers.
const LayoutUnix = "unix"

// maxEpochSeconds is 9999-12-31T23:59:59Z, the last second Go time
// layouts can print.
const maxEpochSeconds = 253402300799

// TimestampExtractor extracts and parses timestamps from log lines.
type TimestampExtractor struct {
	pattern *regexp.Regexp
	layout  string
}

// NewTimestampExtractor creates a new timestamp extractor.
func NewTimestampExtractor(pattern *regexp.Regexp, layout string) *TimestampExtractor {
	return &TimestampExtractor{
		pattern: pattern,
		layout:  layout,
	}
}

// Extract attempts to extract and parse a timestamp from a log line.
// The first capture group of the pattern holds the timestamp text.
func (e *TimestampExtractor) Extract(line string) (time.Time, error) {
	matches := e.pattern.FindStringSubmatch(line)
	if len(matches) < 2 {
		return time.Time{}, fmt.Errorf("timestamp pattern did not match")
	}

	return ParseTimestamp(matches[1], e.layout)
}

// ParseTimestamp parses s with a Go time layout or LayoutUnix.
func ParseTimestamp(s, layout string) (time.Time, error) {
	if layout == LayoutUnix {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing epoch timestamp %q: %w", s, err)
		}
		return epochToTime(secs)
	}

	ts, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts, nil
}

// epochToTime converts fractional epoch seconds to a UTC time with
// microsecond precision. NaN, infinities and values past year 9999 wrap
// ErrMalformed.
func epochToTime(secs float64) (time.Time, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > maxEpochSeconds {
		return time.Time{}, fmt.Errorf("%w: epoch timestamp %v out of range", ErrMalformed, secs)
	}
	whole := int64(secs)
	micros := int64((secs-float64(whole))*1e6 + 0.5)
	return time.Unix(whole, micros*int64(time.Microsecond)).UTC(), nil
}
