package parser

import (
	"fmt"
	"regexp"
)

// RegexFormat parses plain-text lines described by two regular
// expressions: one capturing the timestamp, one capturing the token.
type RegexFormat struct {
	extractor    *TimestampExtractor
	tokenPattern *regexp.Regexp
}

// NewRegexFormat creates a line format. Both patterns need at least one
// capture group; the first group is used.
func NewRegexFormat(tsPattern *regexp.Regexp, layout string, tokenPattern *regexp.Regexp) *RegexFormat {
	return &RegexFormat{
		extractor:    NewTimestampExtractor(tsPattern, layout),
		tokenPattern: tokenPattern,
	}
}

// Name returns the format name.
func (f *RegexFormat) Name() string {
	return FormatRegex
}

// RecordStart returns "" since every line is a record.
func (f *RegexFormat) RecordStart() string {
	return ""
}

// ParseRecord extracts the timestamp and token from a line.
func (f *RegexFormat) ParseRecord(rec Record, dir Direction) (*Sample, error) {
	ts, err := f.extractor.Extract(rec.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := f.tokenPattern.FindStringSubmatch(rec.Text)
	if len(m) < 2 || m[1] == "" {
		return nil, fmt.Errorf("%w: token pattern did not match", ErrMalformed)
	}

	return &Sample{
		Token:     m[1],
		Timestamp: ts,
		Direction: dir,
		Source:    rec.Source,
		LineNum:   rec.LineNum,
	}, nil
}
