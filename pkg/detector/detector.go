// Package detector sniffs which latlog log layout a file uses.
package detector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ccollicutt/latlog/pkg/parser"
)

// DetectionResult holds the result of analyzing a log file.
type DetectionResult struct {
	Matches      []FormatMatch // Formats that matched, sorted by confidence descending
	SampledLines int           // Number of non-empty lines sampled

	// Timestamp is the best timestamp layout when no structured format
	// matched, for a regex format configuration.
	Timestamp *TimestampMatch
}

// FormatMatch represents a format that matched with its confidence score.
type FormatMatch struct {
	Format     *LogFormat
	Confidence float64 // 0.0 to 1.0 (share of sampled lines covered)
	MatchCount int     // Records that matched
	SampleLine string  // First line of the first matching record
}

// TimestampMatch is a timestamp layout found at the start of lines.
type TimestampMatch struct {
	Format     *TimestampFormat
	Confidence float64
	MatchCount int
	SampleLine string
}

// Detector analyzes log files to identify their format.
type Detector struct {
	formats    []*LogFormat
	timestamps []*TimestampFormat
	sampleSize int
}

// Option configures the Detector.
type Option func(*Detector)

// WithSampleSize sets the number of lines to sample (default 100).
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// New creates a new Detector with default formats.
func New(opts ...Option) *Detector {
	d := &Detector{
		formats:    DefaultFormats(),
		timestamps: DefaultTimestampFormats(),
		sampleSize: 100,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFromFile analyzes the head of a log file.
func (d *Detector) DetectFromFile(ctx context.Context, path string) (*DetectionResult, error) {
	lines, err := d.sampleFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return d.DetectFromLines(lines), nil
}

// DetectFromLines analyzes a slice of log lines.
func (d *Detector) DetectFromLines(lines []string) *DetectionResult {
	var sampled []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			sampled = append(sampled, trimmed)
		}
	}

	result := &DetectionResult{SampledLines: len(sampled)}
	if len(sampled) == 0 {
		return result
	}

	for _, f := range d.formats {
		var m FormatMatch
		if f.Block {
			m = matchBlocks(f, sampled)
		} else {
			m = matchLines(f, sampled)
		}
		if m.MatchCount > 0 {
			result.Matches = append(result.Matches, m)
		}
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Confidence > result.Matches[j].Confidence
	})

	if len(result.Matches) == 0 {
		result.Timestamp = d.detectTimestamp(sampled)
	}
	return result
}

func matchLines(f *LogFormat, lines []string) FormatMatch {
	m := FormatMatch{Format: f}
	for _, line := range lines {
		if f.Match(line) {
			if m.MatchCount == 0 {
				m.SampleLine = line
			}
			m.MatchCount++
		}
	}
	m.Confidence = float64(m.MatchCount) / float64(len(lines))
	return m
}

// matchBlocks splits lines at the ICMP trace marker and scores the share
// of lines inside blocks that parse.
func matchBlocks(f *LogFormat, lines []string) FormatMatch {
	m := FormatMatch{Format: f}
	covered := 0

	var block []string
	flush := func() {
		if len(block) > 0 && f.Match(strings.Join(block, "\n")) {
			if m.MatchCount == 0 {
				m.SampleLine = block[0]
			}
			m.MatchCount++
			covered += len(block)
		}
		block = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, parser.ICMPTraceMarker) {
			flush()
			block = []string{line}
			continue
		}
		if block != nil {
			block = append(block, line)
		}
	}
	flush()

	m.Confidence = float64(covered) / float64(len(lines))
	return m
}

func (d *Detector) detectTimestamp(lines []string) *TimestampMatch {
	var best *TimestampMatch
	for _, f := range d.timestamps {
		m := TimestampMatch{Format: f}
		for _, line := range lines {
			sub := f.Pattern.FindStringSubmatch(line)
			if len(sub) < 2 {
				continue
			}
			if _, err := parser.ParseTimestamp(sub[1], f.Layout); err != nil {
				continue
			}
			if m.MatchCount == 0 {
				m.SampleLine = line
			}
			m.MatchCount++
		}
		if m.MatchCount == 0 {
			continue
		}
		m.Confidence = float64(m.MatchCount) / float64(len(lines))
		if best == nil || m.Confidence > best.Confidence {
			best = &m
		}
	}
	return best
}

// sampleFile reads up to sampleSize non-empty lines from a file.
func (d *Detector) sampleFile(ctx context.Context, path string) ([]string, error) {
	// #nosec G304 - path is provided by user via CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for len(lines) < d.sampleSize && scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(scanner.Text()) != "" {
			lines = append(lines, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

// BestMatch returns the highest confidence match, or nil if none found.
func (r *DetectionResult) BestMatch() *FormatMatch {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// HasMatch returns true if at least one format matched.
func (r *DetectionResult) HasMatch() bool {
	return len(r.Matches) > 0
}

// FormatName returns the best format name, FormatRegex when only a
// timestamp layout was found, or FormatUnknown.
func (r *DetectionResult) FormatName() string {
	switch {
	case r.HasMatch():
		return r.Matches[0].Format.Name
	case r.Timestamp != nil:
		return FormatRegex
	default:
		return FormatUnknown
	}
}
