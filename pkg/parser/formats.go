package parser

import (
	"fmt"
	"regexp"
)

// Format names accepted in configuration.
const (
	FormatICMPTrace = "icmp-trace"
	FormatJSON      = "json"
	FormatRegex     = "regex"
)

// FormatOptions carries the settings only some formats need.
type FormatOptions struct {
	// TimestampPattern and TimestampLayout describe timestamps for the regex format.
	TimestampPattern *regexp.Regexp
	TimestampLayout  string

	// TokenPattern captures the correlation token for the regex format.
	TokenPattern *regexp.Regexp
}

// NewFormat returns the Format registered under name.
func NewFormat(name string, opts FormatOptions) (Format, error) {
	switch name {
	case FormatICMPTrace:
		return NewICMPTraceFormat(), nil
	case FormatJSON:
		return NewJSONFormat(), nil
	case FormatRegex:
		if opts.TimestampPattern == nil || opts.TokenPattern == nil {
			return nil, fmt.Errorf("format %q needs a timestamp pattern and a token pattern", name)
		}
		return NewRegexFormat(opts.TimestampPattern, opts.TimestampLayout, opts.TokenPattern), nil
	default:
		return nil, fmt.Errorf("unknown format %q (use %s, %s or %s)", name, FormatICMPTrace, FormatJSON, FormatRegex)
	}
}

// OpenSource expands patterns and returns a source over every matching
// file, merged by timestamp when there is more than one.
func OpenSource(patterns []string, format Format, dir Direction) (SampleSource, []string, error) {
	files, err := ExpandGlobs(patterns)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no log files matched patterns: %v", patterns)
	}

	if len(files) == 1 {
		return NewFileSource(files, format, dir), files, nil
	}

	sources := make([]SampleSource, len(files))
	for i, file := range files {
		sources[i] = NewFileSource([]string{file}, format, dir)
	}
	return NewMergedSource(sources...), files, nil
}
