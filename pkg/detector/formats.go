package detector

import (
	"regexp"
	"strings"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/monitor"
	"github.com/ccollicutt/latlog/pkg/parser"
)

// Log format names reported by the detector.
const (
	FormatICMPTrace      = parser.FormatICMPTrace
	FormatJSON           = parser.FormatJSON
	FormatRegex          = parser.FormatRegex
	FormatNetworkMonitor = "network-monitor"
	FormatPPS            = "pps"
	FormatUnknown        = "unknown"
)

// LogFormat is a log layout latlog can read.
type LogFormat struct {
	Name        string
	Description string

	// Command is the latlog command that consumes the format.
	Command string

	// Block formats span several lines per record; Match is then called
	// with a whole block.
	Block bool

	Match func(record string) bool
}

// DefaultFormats returns the log layouts to detect, most specific first.
func DefaultFormats() []*LogFormat {
	icmp := parser.NewICMPTraceFormat()
	jsonLines := parser.NewJSONFormat()

	return []*LogFormat{
		{
			Name:        FormatICMPTrace,
			Description: "ICMP RTT tracer blocks",
			Command:     "match --format icmp-trace",
			Block:       true,
			Match: func(record string) bool {
				_, err := icmp.ParseRecord(parser.Record{Text: record}, parser.DirectionOutgoing)
				return err == nil
			},
		},
		{
			Name:        FormatNetworkMonitor,
			Description: "cluster network monitor probe results",
			Command:     "monitor",
			Match: func(record string) bool {
				_, err := monitor.ParseLine(record)
				return err == nil
			},
		},
		{
			Name:        FormatPPS,
			Description: "per-device packet rate samples",
			Command:     "alerts --pps",
			Match: func(record string) bool {
				_, ok := alerts.ParsePPSLine(record)
				return ok
			},
		},
		{
			Name:        FormatJSON,
			Description: "JSON lines with timestamp and token",
			Command:     "match --format json",
			Match: func(record string) bool {
				if !strings.HasPrefix(record, "{") {
					return false
				}
				_, err := jsonLines.ParseRecord(parser.Record{Text: record}, parser.DirectionOutgoing)
				return err == nil
			},
		},
	}
}

// TimestampFormat is a known timestamp layout, used to suggest a regex
// format configuration for logs no structured format matched.
type TimestampFormat struct {
	Name       string
	Pattern    *regexp.Regexp
	PatternStr string
	Layout     string
}

// DefaultTimestampFormats returns the timestamp layouts tried for the
// regex fallback, most specific first.
func DefaultTimestampFormats() []*TimestampFormat {
	formats := []*TimestampFormat{
		{
			Name:       "ISO 8601 with fraction",
			PatternStr: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+(?:Z|[+-]\d{2}:\d{2})?)`,
			Layout:     "2006-01-02T15:04:05.999999999Z07:00",
		},
		{
			Name:       "ISO 8601",
			PatternStr: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:Z|[+-]\d{2}:\d{2}))`,
			Layout:     "2006-01-02T15:04:05Z07:00",
		},
		{
			Name:       "Bracketed datetime",
			PatternStr: `^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?)\]`,
			Layout:     "2006-01-02 15:04:05.999999999",
		},
		{
			Name:       "Datetime with fraction",
			PatternStr: `^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d+)`,
			Layout:     "2006-01-02 15:04:05.999999999",
		},
		{
			Name:       "Datetime",
			PatternStr: `^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`,
			Layout:     "2006-01-02 15:04:05",
		},
		{
			// ping -D prints "[1700000000.123456] 64 bytes from ..."
			Name:       "Bracketed epoch (ping -D)",
			PatternStr: `^\[(\d{10}(?:\.\d+)?)\]`,
			Layout:     parser.LayoutUnix,
		},
		{
			Name:       "Epoch seconds",
			PatternStr: `^(\d{10}(?:\.\d+)?)\b`,
			Layout:     parser.LayoutUnix,
		},
	}

	for _, f := range formats {
		f.Pattern = regexp.MustCompile(f.PatternStr)
	}
	return formats
}
