package output

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/monitor"
)

// JSONFormatter formats reports as JSON.
type JSONFormatter struct {
	opts FormatOptions
}

// NewJSONFormatter creates a new JSON formatter with the given options.
func NewJSONFormatter(opts FormatOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Name returns the format name.
func (f *JSONFormatter) Name() string {
	return FormatJSON
}

// Format renders the report as JSON.
func (f *JSONFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		// Quiet mode: just summary
		return encode(w, report.Summary)
	}
	return encode(w, report)
}

// FormatMonitor renders the monitor report as JSON. Daily matrices are
// only included in verbose mode.
func (f *JSONFormatter) FormatMonitor(ctx context.Context, report *monitor.Report, w io.Writer) error {
	if f.opts.Quiet {
		summaries := make([]monitor.Summary, 0, len(report.Networks))
		for _, n := range report.Networks {
			summaries = append(summaries, n.Summary)
		}
		return encode(w, summaries)
	}
	if !f.opts.Verbose {
		trimmed := *report
		trimmed.Networks = make([]monitor.NetworkReport, len(report.Networks))
		for i, n := range report.Networks {
			n.Days = nil
			trimmed.Networks[i] = n
		}
		report = &trimmed
	}
	return encode(w, report)
}

// FormatAlerts renders the alert analysis as JSON.
func (f *JSONFormatter) FormatAlerts(ctx context.Context, result *alerts.Result, w io.Writer) error {
	if f.opts.Quiet {
		return encode(w, result.Summary)
	}
	return encode(w, result)
}

func encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
